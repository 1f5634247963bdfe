// Package repository provides the persistence interfaces for alert rules,
// triggers, and the email retry queue, with GORM-backed and HTTP-backed
// implementations.
package repository

import (
	"context"
	"time"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
	"github.com/vulnwatch/vulnwatch-go/internal/errors"
)

// ErrAlertRuleNotFound is returned when a rule lookup misses.
var ErrAlertRuleNotFound = errors.Sentinel("alert rule not found")

// ErrTriggerNotFound is returned when a trigger lookup misses.
var ErrTriggerNotFound = errors.Sentinel("alert trigger not found")

// TriggerStore is the narrow interface the trigger coordinator depends on.
// Two implementations exist: the direct GORM store and the remote HTTP
// client, so the coordinator works identically inside and outside a trusted
// execution context.
type TriggerStore interface {
	// GetActiveRules returns up to limit active rules in ascending ID order,
	// plus the total number of active rules so callers can report deferrals.
	GetActiveRules(ctx context.Context, limit int) ([]entities.AlertRule, int64, error)

	// RecordTrigger persists the trigger record and updates the owning
	// rule's LastTriggered/TriggerCount as a pair.
	RecordTrigger(ctx context.Context, trigger *entities.AlertTrigger, firedAt time.Time) error

	// UpdateTriggerStatus sets the trigger's status and attempts counter.
	UpdateTriggerStatus(ctx context.Context, id, status string, attempts int) error
}

// AlertRuleStore handles full alert rule and trigger persistence.
type AlertRuleStore interface {
	TriggerStore

	ListRules(ctx context.Context, filter AlertRuleFilter) ([]entities.AlertRule, error)
	GetRule(ctx context.Context, id uint) (*entities.AlertRule, error)
	CreateRule(ctx context.Context, rule *entities.AlertRule) error
	CountRules(ctx context.Context) (int64, error)

	ListTriggers(ctx context.Context, filter AlertTriggerFilter) ([]entities.AlertTrigger, int64, error)
	DeleteTriggersBefore(ctx context.Context, before time.Time) (int64, error)
}

// AlertRuleFilter controls rule listing queries.
type AlertRuleFilter struct {
	UserID   uint
	IsActive *bool
	BuiltIn  *bool
}

// AlertTriggerFilter controls trigger listing queries.
type AlertTriggerFilter struct {
	RuleID uint
	UserID uint
	Status string
	Limit  int
	Offset int
}

// EmailQueueStore persists deferred email deliveries.
type EmailQueueStore interface {
	Enqueue(ctx context.Context, item *entities.EmailQueueItem) error
	// Due returns items eligible for retry at now: retryCount < maxRetries
	// and last attempt (if any) older than retryDelay. High priority first.
	Due(ctx context.Context, now time.Time, retryDelay time.Duration, limit int) ([]entities.EmailQueueItem, error)
	Update(ctx context.Context, item *entities.EmailQueueItem) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]entities.EmailQueueItem, error)
	Count(ctx context.Context) (int64, error)
}
