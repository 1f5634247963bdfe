package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
)

// emailQueueStore implements EmailQueueStore on a GORM database.
type emailQueueStore struct {
	db *gorm.DB
}

// NewEmailQueueStore creates a GORM-backed EmailQueueStore.
func NewEmailQueueStore(db *gorm.DB) EmailQueueStore {
	return &emailQueueStore{db: db}
}

// Enqueue stores a new deferred delivery item.
func (s *emailQueueStore) Enqueue(ctx context.Context, item *entities.EmailQueueItem) error {
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to enqueue email: %w", err)
	}
	return nil
}

// priorityOrder sorts high before medium before low, oldest first within a tier.
const priorityOrder = "CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at ASC"

// Due returns items eligible for retry at now.
func (s *emailQueueStore) Due(ctx context.Context, now time.Time, retryDelay time.Duration, limit int) ([]entities.EmailQueueItem, error) {
	cutoff := now.Add(-retryDelay)
	query := s.db.WithContext(ctx).
		Where("retry_count < max_retries").
		Where("last_attempt IS NULL OR last_attempt <= ?", cutoff).
		Order(priorityOrder)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []entities.EmailQueueItem
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load due email queue items: %w", err)
	}
	return items, nil
}

// Update persists retry bookkeeping changes for an item.
func (s *emailQueueStore) Update(ctx context.Context, item *entities.EmailQueueItem) error {
	if err := s.db.WithContext(ctx).Save(item).Error; err != nil {
		return fmt.Errorf("failed to update email queue item %s: %w", item.ID, err)
	}
	return nil
}

// Remove deletes an item after successful delivery or retry exhaustion.
func (s *emailQueueStore) Remove(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&entities.EmailQueueItem{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to remove email queue item %s: %w", id, err)
	}
	return nil
}

// List returns queue items for operational inspection.
func (s *emailQueueStore) List(ctx context.Context, limit int) ([]entities.EmailQueueItem, error) {
	query := s.db.WithContext(ctx).Order(priorityOrder)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var items []entities.EmailQueueItem
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list email queue: %w", err)
	}
	return items, nil
}

// Count returns the queue depth.
func (s *emailQueueStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&entities.EmailQueueItem{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count email queue: %w", err)
	}
	return count, nil
}
