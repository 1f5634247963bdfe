package alerting

import (
	"context"

	"github.com/vulnwatch/vulnwatch-go/internal/conf"
	"github.com/vulnwatch/vulnwatch-go/internal/datastore/repository"
	"github.com/vulnwatch/vulnwatch-go/internal/logger"
)

// Initialize wires the trigger coordinator to the event bus: it seeds the
// built-in rules if the table is empty, creates the coordinator, and
// subscribes it so published vulnerabilities flow through rule evaluation.
func Initialize(
	store repository.AlertRuleStore,
	dispatcher TriggerDispatcher,
	bus *VulnEventBus,
	settings *conf.AlertingSettings,
	log logger.Logger,
) (*Coordinator, error) {
	ctx := context.Background()

	if err := seedDefaultRules(ctx, store, log); err != nil {
		return nil, err
	}

	opts := []CoordinatorOption{
		WithMaxRulesPerEvent(settings.MaxRulesPerEvent),
		WithDedupTTL(settings.DedupTTL.Std()),
	}
	coordinator := NewCoordinator(store, dispatcher, log, opts...)

	bus.Subscribe(coordinator.ProcessVulnerability)

	log.Info("alert coordinator initialized",
		logger.Int("max_rules_per_event", settings.MaxRulesPerEvent))
	return coordinator, nil
}

// seedDefaultRules creates the built-in rules when the table is empty.
// Checking by name lets partial seeds from previous runs self-heal.
func seedDefaultRules(ctx context.Context, store repository.AlertRuleStore, log logger.Logger) error {
	existing, err := store.ListRules(ctx, repository.AlertRuleFilter{})
	if err != nil {
		return err
	}

	existingNames := make(map[string]struct{}, len(existing))
	for i := range existing {
		existingNames[existing[i].Name] = struct{}{}
	}

	defaults := DefaultRules()
	var created int
	for i := range defaults {
		if _, exists := existingNames[defaults[i].Name]; exists {
			continue
		}
		if err := store.CreateRule(ctx, &defaults[i]); err != nil {
			return err
		}
		created++
	}
	if created > 0 {
		log.Info("seeded default alert rules", logger.Int("created", created))
	}
	return nil
}
