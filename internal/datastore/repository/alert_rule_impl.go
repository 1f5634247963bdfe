package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
	"github.com/vulnwatch/vulnwatch-go/internal/errors"
)

// alertRuleStore implements AlertRuleStore on a GORM database.
type alertRuleStore struct {
	db *gorm.DB
}

// NewAlertRuleStore creates a GORM-backed AlertRuleStore.
func NewAlertRuleStore(db *gorm.DB) AlertRuleStore {
	return &alertRuleStore{db: db}
}

// ListRules returns alert rules matching the given filter.
func (s *alertRuleStore) ListRules(ctx context.Context, filter AlertRuleFilter) ([]entities.AlertRule, error) {
	var rules []entities.AlertRule
	query := s.db.WithContext(ctx)

	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.BuiltIn != nil {
		query = query.Where("built_in = ?", *filter.BuiltIn)
	}

	if err := query.Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	return rules, nil
}

// GetRule returns a single alert rule by ID.
// Returns ErrAlertRuleNotFound if the rule does not exist.
func (s *alertRuleStore) GetRule(ctx context.Context, id uint) (*entities.AlertRule, error) {
	var rule entities.AlertRule
	if err := s.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertRuleNotFound
		}
		return nil, fmt.Errorf("failed to get alert rule %d: %w", id, err)
	}
	return &rule, nil
}

// CreateRule creates a new alert rule.
func (s *alertRuleStore) CreateRule(ctx context.Context, rule *entities.AlertRule) error {
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}
	return nil
}

// CountRules returns the total number of alert rules.
func (s *alertRuleStore) CountRules(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&entities.AlertRule{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count alert rules: %w", err)
	}
	return count, nil
}

// GetActiveRules returns up to limit active rules in ID order plus the total
// active count. Callers use the total to report rules deferred past the cap.
func (s *alertRuleStore) GetActiveRules(ctx context.Context, limit int) ([]entities.AlertRule, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&entities.AlertRule{}).Where("is_active = ?", true).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count active alert rules: %w", err)
	}

	var rules []entities.AlertRule
	query := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rules).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to load active alert rules: %w", err)
	}
	return rules, total, nil
}

// RecordTrigger inserts the trigger row and bumps the rule's
// LastTriggered/TriggerCount in one transaction.
func (s *alertRuleStore) RecordTrigger(ctx context.Context, trigger *entities.AlertTrigger, firedAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(trigger).Error; err != nil {
			return fmt.Errorf("failed to create alert trigger: %w", err)
		}
		result := tx.Model(&entities.AlertRule{}).Where("id = ?", trigger.RuleID).Updates(map[string]any{
			"last_triggered": firedAt,
			"trigger_count":  gorm.Expr("trigger_count + 1"),
		})
		if result.Error != nil {
			return fmt.Errorf("failed to update rule %d trigger state: %w", trigger.RuleID, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlertRuleNotFound
		}
		return nil
	})
}

// UpdateTriggerStatus sets the trigger's status and attempts counter.
func (s *alertRuleStore) UpdateTriggerStatus(ctx context.Context, id, status string, attempts int) error {
	result := s.db.WithContext(ctx).Model(&entities.AlertTrigger{}).Where("id = ?", id).Updates(map[string]any{
		"status":   status,
		"attempts": attempts,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update trigger %s status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTriggerNotFound
	}
	return nil
}

// ListTriggers returns trigger records matching the filter with pagination.
func (s *alertRuleStore) ListTriggers(ctx context.Context, filter AlertTriggerFilter) ([]entities.AlertTrigger, int64, error) {
	base := s.db.WithContext(ctx).Model(&entities.AlertTrigger{})
	if filter.RuleID > 0 {
		base = base.Where("rule_id = ?", filter.RuleID)
	}
	if filter.UserID > 0 {
		base = base.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		base = base.Where("status = ?", filter.Status)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alert triggers: %w", err)
	}

	query := base.Order("created_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var triggers []entities.AlertTrigger
	if err := query.Find(&triggers).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alert triggers: %w", err)
	}
	return triggers, total, nil
}

// DeleteTriggersBefore deletes trigger records older than the given time.
func (s *alertRuleStore) DeleteTriggersBefore(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&entities.AlertTrigger{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete alert triggers before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}
