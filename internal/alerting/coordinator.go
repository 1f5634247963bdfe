package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
	"github.com/vulnwatch/vulnwatch-go/internal/datastore/repository"
	"github.com/vulnwatch/vulnwatch-go/internal/logger"
)

const (
	// persistTimeout is the context deadline for trigger persistence.
	persistTimeout = 3 * time.Second
	// dispatchTimeout bounds the fan-out across all channels for one trigger.
	dispatchTimeout = 2 * time.Minute
	// cleanupTimeout is the context deadline for the periodic trigger pruning.
	cleanupTimeout = 5 * time.Second
	// cleanupInterval is how often the trigger pruning goroutine runs.
	cleanupInterval = 1 * time.Hour

	// defaultMaxRulesPerEvent caps per-vulnerability rule evaluation. Rules
	// past the cap are deferred to the next ingestion cycle, not dropped.
	defaultMaxRulesPerEvent = 10
)

// TriggerDispatcher fans a triggered alert out across notification channels.
type TriggerDispatcher interface {
	Dispatch(ctx context.Context, rule *entities.AlertRule, vuln *entities.Vulnerability) *DispatchReport
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock injects a clock for deterministic cooldown tests.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithMaxRulesPerEvent overrides the per-vulnerability rule cap.
func WithMaxRulesPerEvent(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxRules = n
		}
	}
}

// WithDedupTTL enables duplicate suppression: a (rule, vulnerability) pair is
// remembered for ttl so re-deliveries from the ingestion pipeline produce at
// most one trigger. Off by default; a rule with zero cooldown then triggers
// on every delivery.
func WithDedupTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.dedup = gocache.New(ttl, ttl)
		}
	}
}

// Coordinator consumes newly ingested vulnerabilities, evaluates them against
// active alert rules, enforces cooldown, records triggers, and hands matches
// to the dispatcher. Per-rule failures are isolated: one rule's error never
// prevents the remaining rules from being processed.
type Coordinator struct {
	store      repository.TriggerStore
	dispatcher TriggerDispatcher
	log        logger.Logger
	now        func() time.Time
	maxRules   int
	dedup      *gocache.Cache
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(store repository.TriggerStore, dispatcher TriggerDispatcher, log logger.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:      store,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
		maxRules:   defaultMaxRulesPerEvent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessVulnerability evaluates one vulnerability against the active rules.
// Fire-and-forget: errors are logged internally and never returned to the
// ingestion caller.
func (c *Coordinator) ProcessVulnerability(vuln *entities.Vulnerability) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic while processing vulnerability",
				logger.String("cve_id", vuln.CVEID),
				logger.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	rules, total, err := c.store.GetActiveRules(ctx, c.maxRules)
	cancel()
	if err != nil {
		c.log.Error("failed to load active alert rules",
			logger.String("cve_id", vuln.CVEID),
			logger.Error(err))
		return
	}
	if deferred := total - int64(len(rules)); deferred > 0 {
		c.log.Warn("active rule count exceeds per-event cap, deferring remainder to next cycle",
			logger.Int("cap", c.maxRules),
			logger.Int64("deferred", deferred))
	}

	for i := range rules {
		c.processRule(&rules[i], vuln)
	}
}

// processRule evaluates a single rule with panic isolation.
func (c *Coordinator) processRule(rule *entities.AlertRule, vuln *entities.Vulnerability) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic while processing rule",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.String("cve_id", vuln.CVEID),
				logger.Any("panic", r))
		}
	}()

	if !Matches(vuln, &rule.Conditions) {
		return // non-match: silent, no record
	}
	if rule.InCooldown(c.now()) {
		return // suppressed: silent, no side effect
	}

	if c.dedup != nil {
		dedupKey := fmt.Sprintf("%d:%s", rule.ID, vuln.CVEID)
		if _, seen := c.dedup.Get(dedupKey); seen {
			c.log.Debug("duplicate ingestion delivery suppressed",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.String("cve_id", vuln.CVEID))
			return
		}
		c.dedup.SetDefault(dedupKey, struct{}{})
	}

	if err := c.fireRule(rule, vuln); err != nil {
		c.log.Error("failed to fire alert rule",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.String("cve_id", vuln.CVEID),
			logger.Error(err))
	}
}

// TriggerAlert fires a rule for a vulnerability directly, bypassing condition
// evaluation and cooldown. Used by the rule test endpoint.
func (c *Coordinator) TriggerAlert(rule *entities.AlertRule, vuln *entities.Vulnerability) {
	if err := c.fireRule(rule, vuln); err != nil {
		c.log.Error("failed to fire alert rule directly",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.String("cve_id", vuln.CVEID),
			logger.Error(err))
	}
}

// fireRule records the trigger, updates rule state, and dispatches.
func (c *Coordinator) fireRule(rule *entities.AlertRule, vuln *entities.Vulnerability) error {
	firedAt := c.now()
	trigger := &entities.AlertTrigger{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		UserID:    rule.UserID,
		CVEID:     vuln.CVEID,
		Status:    entities.TriggerStatusPending,
		CreatedAt: firedAt,
	}
	if b, err := json.Marshal(rule.Conditions); err == nil {
		trigger.ConditionsJSON = string(b)
	}
	if b, err := json.Marshal(rule.Actions); err == nil {
		trigger.ActionsJSON = string(b)
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	err := c.store.RecordTrigger(persistCtx, trigger, firedAt)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to record trigger: %w", err)
	}

	dispatchCtx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	report := c.dispatcher.Dispatch(dispatchCtx, rule, vuln)
	cancel()

	status := entities.TriggerStatusSent
	if !report.Succeeded() {
		status = entities.TriggerStatusFailed
	}

	statusCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.store.UpdateTriggerStatus(statusCtx, trigger.ID, status, 1); err != nil {
		c.log.Warn("failed to update trigger status",
			logger.String("trigger_id", trigger.ID),
			logger.String("status", status),
			logger.Error(err))
	}
	return nil
}

// StartTriggerCleanup starts a background goroutine that periodically deletes
// trigger records older than retentionDays. A value of 0 disables cleanup.
// The returned stop function is idempotent.
func (c *Coordinator) StartTriggerCleanup(store repository.AlertRuleStore, retentionDays int) (stop func()) {
	if retentionDays <= 0 {
		return func() {}
	}
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := c.now().AddDate(0, 0, -retentionDays)
				ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
				deleted, err := store.DeleteTriggersBefore(ctx, cutoff)
				cancel()
				if err != nil {
					c.log.Error("trigger cleanup failed", logger.Error(err))
				} else if deleted > 0 {
					c.log.Info("trigger cleanup completed",
						logger.Int64("deleted", deleted),
						logger.Int("retention_days", retentionDays))
				}
			case <-stopCh:
				return
			}
		}
	}()
	var once bool
	return func() {
		if !once {
			once = true
			close(stopCh)
		}
	}
}
