package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vulnwatch/vulnwatch-go/internal/conf"
	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
	"github.com/vulnwatch/vulnwatch-go/internal/errors"
	"github.com/vulnwatch/vulnwatch-go/internal/logger"
)

// slotAttempt pairs a provider with the stats slot it occupies.
type slotAttempt struct {
	slot     string
	provider Provider
}

// ConfigStatus describes the engine's effective configuration for
// operational dashboards.
type ConfigStatus struct {
	PrimaryProvider    string `json:"primary_provider"`
	SecondaryProvider  string `json:"secondary_provider"`
	FallbackEnabled    bool   `json:"fallback_enabled"`
	RateLimitPerSec    int    `json:"rate_limit_per_second"`
	MaxRetries         int    `json:"max_retries"`
	RetryDelay         string `json:"retry_delay"`
	QueueSweepInterval string `json:"queue_sweep_interval"`
}

// QueueStore is the subset of the email queue repository the engine needs.
type QueueStore interface {
	Enqueue(ctx context.Context, item *entities.EmailQueueItem) error
	Due(ctx context.Context, now time.Time, retryDelay time.Duration, limit int) ([]entities.EmailQueueItem, error)
	Update(ctx context.Context, item *entities.EmailQueueItem) error
	Remove(ctx context.Context, id string) error
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithProviders overrides the providers built from settings. Used by tests
// and by callers that bring their own transport.
func WithProviders(primary, secondary Provider) EngineOption {
	return func(e *Engine) {
		e.primary = primary
		e.secondary = secondary
	}
}

// WithRateLimiter overrides the rate limiter.
func WithRateLimiter(l *RateLimiter) EngineOption {
	return func(e *Engine) { e.limiter = l }
}

// WithEngineClock injects a clock for deterministic tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// Engine orchestrates email delivery: rate limiting, primary→secondary
// failover, per-slot stats, and deferral to the retry queue when both
// providers fail.
type Engine struct {
	settings  conf.EmailSettings
	primary   Provider
	secondary Provider
	limiter   *RateLimiter
	stats     *DeliveryStats
	queue     QueueStore
	log       logger.Logger
	now       func() time.Time
	from      string
}

// NewEngine creates an Engine from settings. Provider slots configured as
// "disabled" are skipped entirely.
func NewEngine(settings *conf.EmailSettings, queue QueueStore, log logger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		settings: *settings,
		limiter:  NewRateLimiter(settings.RateLimitPerSec),
		stats:    NewDeliveryStats(),
		queue:    queue,
		log:      log,
		now:      time.Now,
		from:     formatFrom(settings.FromName, settings.FromAddress),
	}
	e.primary = buildProvider(settings.PrimaryProvider, settings)
	e.secondary = buildProvider(settings.SecondaryProvider, settings)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func formatFrom(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

func buildProvider(kind string, settings *conf.EmailSettings) Provider {
	timeout := settings.SendTimeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	switch kind {
	case conf.EmailProviderAPI:
		return NewAPIProvider(settings.APIBaseURL, settings.APIKey, timeout)
	case conf.EmailProviderSMTP:
		return NewSMTPProvider(settings.SMTPHost, settings.SMTPPort, settings.SMTPUsername, settings.SMTPPassword, timeout)
	default:
		return nil
	}
}

// attempts returns the configured provider slots in failover order.
func (e *Engine) attempts() []slotAttempt {
	var out []slotAttempt
	if e.primary != nil {
		out = append(out, slotAttempt{slot: SlotPrimary, provider: e.primary})
	}
	if e.secondary != nil {
		out = append(out, slotAttempt{slot: SlotSecondary, provider: e.secondary})
	}
	return out
}

// Send delivers one message through the two-tier failover chain. When every
// attempt fails and fallback is enabled, the message is queued for deferred
// retry and the returned error names each provider failure. With no provider
// configured Send is a no-op success so flows keep working in environments
// without email infrastructure.
func (e *Engine) Send(ctx context.Context, msg *Message) error {
	attempts := e.attempts()
	if len(attempts) == 0 {
		e.log.Debug("email delivery disabled, skipping send", logger.String("to", msg.To))
		return nil
	}

	delivered, errs := e.deliver(ctx, msg, attempts)
	if delivered != "" {
		e.log.Info("email delivered",
			logger.String("to", msg.To),
			logger.String("slot", delivered))
		return nil
	}

	combined := errors.Join(errs...)
	if !e.settings.FallbackEnabled {
		return fmt.Errorf("email delivery failed: %w", combined)
	}

	if err := e.enqueue(ctx, msg, errs); err != nil {
		e.log.Error("failed to queue email for retry",
			logger.String("to", msg.To),
			logger.Error(err))
		return fmt.Errorf("email delivery failed and could not be queued: %w", errors.Join(combined, err))
	}
	return fmt.Errorf("email delivery failed, queued for retry: %w", combined)
}

// deliver runs the failover chain once. It returns the slot that delivered,
// or "" plus the ordered attempt errors. Only the first attempt plus, when
// fallback is enabled, the second are made.
func (e *Engine) deliver(ctx context.Context, msg *Message, attempts []slotAttempt) (string, []error) {
	var errs []error
	for i, attempt := range attempts {
		if i > 0 && !e.settings.FallbackEnabled {
			break
		}
		if err := e.limiter.Acquire(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: rate limit wait aborted: %w", attempt.slot, err))
			e.stats.RecordFailure(attempt.slot)
			continue
		}
		err := attempt.provider.Send(ctx, e.from, msg)
		if err == nil {
			e.stats.RecordSuccess(attempt.slot)
			return attempt.slot, errs
		}
		e.stats.RecordFailure(attempt.slot)
		errs = append(errs, fmt.Errorf("%s (%s): %w", attempt.slot, attempt.provider.Name(), err))
		e.log.Warn("email provider attempt failed",
			logger.String("slot", attempt.slot),
			logger.String("provider", attempt.provider.Name()),
			logger.String("to", msg.To),
			logger.Error(err))
	}
	return "", errs
}

func (e *Engine) enqueue(ctx context.Context, msg *Message, attemptErrs []error) error {
	priority := msg.Priority
	if priority == "" {
		priority = entities.EmailPriorityMedium
	}
	item := &entities.EmailQueueItem{
		ID:         uuid.NewString(),
		To:         msg.To,
		Subject:    msg.Subject,
		HTMLBody:   msg.HTMLBody,
		TextBody:   msg.TextBody,
		Priority:   priority,
		MaxRetries: e.settings.MaxRetries,
		CreatedAt:  e.now(),
	}
	for _, err := range attemptErrs {
		item.Errors = append(item.Errors, err.Error())
	}
	if err := e.queue.Enqueue(ctx, item); err != nil {
		return err
	}
	e.log.Info("email queued for deferred retry",
		logger.String("queue_id", item.ID),
		logger.String("to", msg.To),
		logger.String("priority", priority))
	return nil
}

// SendVulnerabilityAlert renders and sends the vulnerability alert email.
// Implements the dispatcher's EmailSender.
func (e *Engine) SendVulnerabilityAlert(ctx context.Context, to string, rule *entities.AlertRule, vuln *entities.Vulnerability) error {
	rendered, err := RenderVulnerabilityAlert(&VulnerabilityAlertData{
		RuleName:    rule.Name,
		CVEID:       vuln.CVEID,
		Severity:    vuln.Severity,
		CVSSScore:   vuln.CVSSScore,
		Description: vuln.Description,
	})
	if err != nil {
		return err
	}
	priority := entities.EmailPriorityMedium
	if vuln.Severity == entities.SeverityCritical || vuln.KEV {
		priority = entities.EmailPriorityHigh
	}
	return e.Send(ctx, &Message{
		To:       to,
		Subject:  rendered.Subject,
		HTMLBody: rendered.HTML,
		TextBody: rendered.Text,
		Priority: priority,
	})
}

// GetConfigStatus reports the engine's effective configuration.
func (e *Engine) GetConfigStatus() ConfigStatus {
	return ConfigStatus{
		PrimaryProvider:    e.settings.PrimaryProvider,
		SecondaryProvider:  e.settings.SecondaryProvider,
		FallbackEnabled:    e.settings.FallbackEnabled,
		RateLimitPerSec:    e.settings.RateLimitPerSec,
		MaxRetries:         e.settings.MaxRetries,
		RetryDelay:         e.settings.RetryDelay.Std().String(),
		QueueSweepInterval: e.settings.QueueSweepEvery.Std().String(),
	}
}

// GetDeliveryStats returns a snapshot of the per-slot counters.
func (e *Engine) GetDeliveryStats() StatsSnapshot {
	return e.stats.Snapshot()
}

// ResetDeliveryStats zeroes the per-slot counters.
func (e *Engine) ResetDeliveryStats() {
	e.stats.Reset()
}
