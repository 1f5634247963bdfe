package mailer

import (
	"context"
	"time"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
	"github.com/vulnwatch/vulnwatch-go/internal/logger"
)

const sweepTimeout = 2 * time.Minute

// StartQueueSweep launches the retry queue worker: a fixed-interval sweep
// that re-runs the failover chain for each due item. The returned stop
// function is safe to call once.
func (e *Engine) StartQueueSweep() (stop func()) {
	interval := e.settings.QueueSweepEvery.Std()
	if interval <= 0 {
		interval = 10 * time.Second
	}
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
				e.SweepQueue(ctx)
				cancel()
			case <-stopCh:
				return
			}
		}
	}()
	return func() { close(stopCh) }
}

// SweepQueue retries every due queue item once. Exported so tests and
// operators can force a sweep without waiting for the ticker.
func (e *Engine) SweepQueue(ctx context.Context) {
	attempts := e.attempts()
	if len(attempts) == 0 {
		return
	}

	items, err := e.queue.Due(ctx, e.now(), e.settings.RetryDelay.Std(), e.settings.BatchSize)
	if err != nil {
		e.log.Error("failed to load due email queue items", logger.Error(err))
		return
	}

	for i := range items {
		if ctx.Err() != nil {
			return
		}
		e.retryItem(ctx, &items[i], attempts)
		if delay := e.settings.BatchDelay.Std(); delay > 0 && i < len(items)-1 {
			if err := sleepContext(ctx, delay); err != nil {
				return
			}
		}
	}
}

func (e *Engine) retryItem(ctx context.Context, item *entities.EmailQueueItem, attempts []slotAttempt) {
	msg := &Message{
		To:       item.To,
		Subject:  item.Subject,
		HTMLBody: item.HTMLBody,
		TextBody: item.TextBody,
		Priority: item.Priority,
	}

	delivered, errs := e.deliver(ctx, msg, attempts)
	if delivered != "" {
		if err := e.queue.Remove(ctx, item.ID); err != nil {
			e.log.Warn("failed to remove delivered queue item",
				logger.String("queue_id", item.ID),
				logger.Error(err))
		}
		e.log.Info("queued email delivered",
			logger.String("queue_id", item.ID),
			logger.String("slot", delivered),
			logger.Int("retry_count", item.RetryCount))
		return
	}

	item.RetryCount++
	now := e.now()
	item.LastAttempt = &now
	for _, attemptErr := range errs {
		item.Errors = append(item.Errors, attemptErr.Error())
	}

	if item.RetryCount >= item.MaxRetries {
		if err := e.queue.Remove(ctx, item.ID); err != nil {
			e.log.Warn("failed to remove exhausted queue item",
				logger.String("queue_id", item.ID),
				logger.Error(err))
		}
		e.log.Error("email permanently failed after exhausting retries",
			logger.String("queue_id", item.ID),
			logger.String("to", item.To),
			logger.Int("retries", item.RetryCount),
			logger.Int("max_retries", item.MaxRetries))
		return
	}

	if err := e.queue.Update(ctx, item); err != nil {
		e.log.Warn("failed to update queue item after retry",
			logger.String("queue_id", item.ID),
			logger.Error(err))
	}
}
