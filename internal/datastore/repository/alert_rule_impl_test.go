package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
)

// setupTestDB creates an in-memory SQLite database. Shared-cache mode with a
// single connection so every operation sees the same in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&entities.AlertRule{},
		&entities.AlertTrigger{},
		&entities.EmailQueueItem{},
	))
	return db
}

func seedRule(t *testing.T, store AlertRuleStore, name string, active bool) *entities.AlertRule {
	t.Helper()
	rule := &entities.AlertRule{
		Name:     name,
		UserID:   1,
		IsActive: active,
		Conditions: entities.AlertConditions{
			Severities: []string{entities.SeverityCritical},
		},
		Actions: entities.AlertActions{Push: true},
	}
	require.NoError(t, store.CreateRule(t.Context(), rule))
	return rule
}

func TestAlertRuleStore_ConditionsRoundTrip(t *testing.T) {
	store := NewAlertRuleStore(setupTestDB(t))
	min := 7.5
	exploit := true
	rule := &entities.AlertRule{
		Name:     "round trip",
		IsActive: true,
		Conditions: entities.AlertConditions{
			Severities:       []string{"CRITICAL", "HIGH"},
			CVSSMin:          &min,
			AffectedSoftware: []string{"nginx"},
			ExploitAvailable: &exploit,
		},
		Actions: entities.AlertActions{
			Email:   true,
			Webhook: &entities.WebhookAction{URL: "https://hooks.internal/a"},
		},
	}
	require.NoError(t, store.CreateRule(t.Context(), rule))

	got, err := store.GetRule(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"CRITICAL", "HIGH"}, got.Conditions.Severities)
	require.NotNil(t, got.Conditions.CVSSMin)
	assert.Equal(t, 7.5, *got.Conditions.CVSSMin)
	require.NotNil(t, got.Conditions.ExploitAvailable)
	assert.True(t, *got.Conditions.ExploitAvailable)
	require.NotNil(t, got.Actions.Webhook)
	assert.Equal(t, "https://hooks.internal/a", got.Actions.Webhook.URL)
}

func TestAlertRuleStore_GetRuleNotFound(t *testing.T) {
	store := NewAlertRuleStore(setupTestDB(t))
	_, err := store.GetRule(t.Context(), 404)
	assert.ErrorIs(t, err, ErrAlertRuleNotFound)
}

func TestAlertRuleStore_GetActiveRulesOrderAndCap(t *testing.T) {
	store := NewAlertRuleStore(setupTestDB(t))
	for i := 0; i < 5; i++ {
		seedRule(t, store, "rule", true)
	}
	seedRule(t, store, "inactive", false)

	rules, total, err := store.GetActiveRules(t.Context(), 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total, "total counts all active rules, not just the page")
	require.Len(t, rules, 3)
	assert.Less(t, rules[0].ID, rules[1].ID, "ascending ID order")
	assert.Less(t, rules[1].ID, rules[2].ID)
}

func TestAlertRuleStore_ListRulesFilter(t *testing.T) {
	store := NewAlertRuleStore(setupTestDB(t))
	seedRule(t, store, "on", true)
	seedRule(t, store, "off", false)

	active := true
	rules, err := store.ListRules(t.Context(), AlertRuleFilter{IsActive: &active})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "on", rules[0].Name)
}

func TestAlertRuleStore_RecordTrigger(t *testing.T) {
	store := NewAlertRuleStore(setupTestDB(t))
	rule := seedRule(t, store, "fires", true)

	firedAt := time.Now().UTC().Truncate(time.Second)
	trigger := &entities.AlertTrigger{
		ID:     "11111111-1111-1111-1111-111111111111",
		RuleID: rule.ID,
		UserID: rule.UserID,
		CVEID:  "CVE-2025-600",
		Status: entities.TriggerStatusPending,
	}
	require.NoError(t, store.RecordTrigger(t.Context(), trigger, firedAt))

	got, err := store.GetRule(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TriggerCount)
	require.NotNil(t, got.LastTriggered)

	triggers, total, err := store.ListTriggers(t.Context(), AlertTriggerFilter{RuleID: rule.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, triggers, 1)
	assert.Equal(t, "CVE-2025-600", triggers[0].CVEID)
}

func TestAlertRuleStore_RecordTriggerUnknownRuleRollsBack(t *testing.T) {
	store := NewAlertRuleStore(setupTestDB(t))

	trigger := &entities.AlertTrigger{
		ID:     "22222222-2222-2222-2222-222222222222",
		RuleID: 999,
		CVEID:  "CVE-2025-601",
	}
	err := store.RecordTrigger(t.Context(), trigger, time.Now())
	assert.ErrorIs(t, err, ErrAlertRuleNotFound)

	_, total, err := store.ListTriggers(t.Context(), AlertTriggerFilter{})
	require.NoError(t, err)
	assert.Zero(t, total, "trigger insert must roll back with the rule update")
}

func TestAlertRuleStore_UpdateTriggerStatus(t *testing.T) {
	store := NewAlertRuleStore(setupTestDB(t))
	rule := seedRule(t, store, "fires", true)
	trigger := &entities.AlertTrigger{
		ID:     "33333333-3333-3333-3333-333333333333",
		RuleID: rule.ID,
		CVEID:  "CVE-2025-602",
		Status: entities.TriggerStatusPending,
	}
	require.NoError(t, store.RecordTrigger(t.Context(), trigger, time.Now()))

	require.NoError(t, store.UpdateTriggerStatus(t.Context(), trigger.ID, entities.TriggerStatusSent, 1))

	triggers, _, err := store.ListTriggers(t.Context(), AlertTriggerFilter{Status: entities.TriggerStatusSent})
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, 1, triggers[0].Attempts)

	assert.ErrorIs(t, store.UpdateTriggerStatus(t.Context(), "missing", entities.TriggerStatusSent, 1), ErrTriggerNotFound)
}

func TestAlertRuleStore_DeleteTriggersBefore(t *testing.T) {
	db := setupTestDB(t)
	store := NewAlertRuleStore(db)
	rule := seedRule(t, store, "fires", true)

	old := entities.AlertTrigger{ID: "old-1", RuleID: rule.ID, CVEID: "CVE-2025-603",
		CreatedAt: time.Now().AddDate(0, 0, -120)}
	fresh := entities.AlertTrigger{ID: "new-1", RuleID: rule.ID, CVEID: "CVE-2025-604",
		CreatedAt: time.Now()}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&fresh).Error)

	deleted, err := store.DeleteTriggersBefore(t.Context(), time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, total, err := store.ListTriggers(t.Context(), AlertTriggerFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestEmailQueueStore_DueAndPriorityOrder(t *testing.T) {
	store := NewEmailQueueStore(setupTestDB(t))
	now := time.Now()

	mk := func(id, priority string, retryCount int, lastAttempt *time.Time) *entities.EmailQueueItem {
		return &entities.EmailQueueItem{
			ID: id, To: "sec@example.com", Subject: "s", HTMLBody: "<p/>", TextBody: "t",
			Priority: priority, RetryCount: retryCount, MaxRetries: 3, LastAttempt: lastAttempt,
		}
	}
	recent := now.Add(-10 * time.Second)
	stale := now.Add(-5 * time.Minute)

	require.NoError(t, store.Enqueue(t.Context(), mk("low-due", entities.EmailPriorityLow, 0, nil)))
	require.NoError(t, store.Enqueue(t.Context(), mk("high-due", entities.EmailPriorityHigh, 1, &stale)))
	require.NoError(t, store.Enqueue(t.Context(), mk("too-recent", entities.EmailPriorityHigh, 1, &recent)))
	require.NoError(t, store.Enqueue(t.Context(), mk("exhausted", entities.EmailPriorityHigh, 3, &stale)))

	due, err := store.Due(t.Context(), now, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "high-due", due[0].ID, "high priority first")
	assert.Equal(t, "low-due", due[1].ID)
}

func TestEmailQueueStore_UpdateAndRemove(t *testing.T) {
	store := NewEmailQueueStore(setupTestDB(t))

	item := &entities.EmailQueueItem{
		ID: "q-1", To: "sec@example.com", Subject: "s", HTMLBody: "<p/>", TextBody: "t",
		Priority: entities.EmailPriorityMedium, MaxRetries: 3,
	}
	require.NoError(t, store.Enqueue(t.Context(), item))

	item.RetryCount = 2
	item.Errors = entities.StringList{"timeout"}
	require.NoError(t, store.Update(t.Context(), item))

	items, err := store.List(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].RetryCount)
	assert.Equal(t, entities.StringList{"timeout"}, items[0].Errors)

	require.NoError(t, store.Remove(t.Context(), "q-1"))
	count, err := store.Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, count)
}
