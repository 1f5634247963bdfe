package mailer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnwatch/vulnwatch-go/internal/conf"
	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
	"github.com/vulnwatch/vulnwatch-go/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

// fakeProvider counts sends and fails the first failUntil attempts.
type fakeProvider struct {
	name  string
	mu    sync.Mutex
	sends int
	errs  []error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Send(_ context.Context, _ string, _ *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return err
	}
	return nil
}

func (p *fakeProvider) sendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sends
}

// fakeQueue is an in-memory QueueStore.
type fakeQueue struct {
	mu    sync.Mutex
	items map[string]*entities.EmailQueueItem
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: make(map[string]*entities.EmailQueueItem)}
}

func (q *fakeQueue) Enqueue(_ context.Context, item *entities.EmailQueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *item
	q.items[item.ID] = &cp
	return nil
}

func (q *fakeQueue) Due(_ context.Context, now time.Time, retryDelay time.Duration, limit int) ([]entities.EmailQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []entities.EmailQueueItem
	for _, item := range q.items {
		if item.Retryable(now, retryDelay) {
			out = append(out, *item)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (q *fakeQueue) Update(_ context.Context, item *entities.EmailQueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *item
	q.items[item.ID] = &cp
	return nil
}

func (q *fakeQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, id)
	return nil
}

func (q *fakeQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *fakeQueue) only() *entities.EmailQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		return item
	}
	return nil
}

func testEmailSettings() *conf.EmailSettings {
	return &conf.EmailSettings{
		PrimaryProvider:   conf.EmailProviderAPI,
		SecondaryProvider: conf.EmailProviderSMTP,
		FallbackEnabled:   true,
		FromAddress:       "alerts@vulnwatch.local",
		FromName:          "VulnWatch",
		MaxRetries:        3,
		RetryDelay:        conf.Duration(time.Minute),
		RateLimitPerSec:   100,
		BatchSize:         50,
		QueueSweepEvery:   conf.Duration(10 * time.Second),
	}
}

func testMessage() *Message {
	return &Message{
		To:       "sec@example.com",
		Subject:  "test",
		HTMLBody: "<p>hi</p>",
		TextBody: "hi",
	}
}

func newTestEngine(settings *conf.EmailSettings, queue QueueStore, primary, secondary Provider) *Engine {
	return NewEngine(settings, queue, testLogger(), WithProviders(primary, secondary))
}

func TestEngine_PrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "api"}
	secondary := &fakeProvider{name: "smtp"}
	queue := newFakeQueue()
	e := newTestEngine(testEmailSettings(), queue, primary, secondary)

	require.NoError(t, e.Send(context.Background(), testMessage()))

	assert.Equal(t, 1, primary.sendCount())
	assert.Zero(t, secondary.sendCount(), "secondary untouched when primary succeeds")
	assert.Zero(t, queue.size())

	stats := e.GetDeliveryStats()
	assert.EqualValues(t, 1, stats.Primary.Success)
	assert.Zero(t, stats.Secondary.Success)
}

func TestEngine_FailoverToSecondary(t *testing.T) {
	primary := &fakeProvider{name: "api", errs: []error{fmt.Errorf("api 500")}}
	secondary := &fakeProvider{name: "smtp"}
	queue := newFakeQueue()
	e := newTestEngine(testEmailSettings(), queue, primary, secondary)

	require.NoError(t, e.Send(context.Background(), testMessage()))

	assert.Equal(t, 1, primary.sendCount())
	assert.Equal(t, 1, secondary.sendCount())
	assert.Zero(t, queue.size(), "successful failover must not queue")

	stats := e.GetDeliveryStats()
	assert.EqualValues(t, 1, stats.Primary.Failed)
	assert.EqualValues(t, 1, stats.Secondary.Success)
}

func TestEngine_DualFailureQueuesOnce(t *testing.T) {
	primary := &fakeProvider{name: "api", errs: []error{fmt.Errorf("api 500")}}
	secondary := &fakeProvider{name: "smtp", errs: []error{fmt.Errorf("dial refused")}}
	queue := newFakeQueue()
	e := newTestEngine(testEmailSettings(), queue, primary, secondary)

	err := e.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.ErrorContains(t, err, "api 500")
	assert.ErrorContains(t, err, "dial refused")

	require.Equal(t, 1, queue.size(), "exactly one queue item per failed message")
	item := queue.only()
	assert.Equal(t, "sec@example.com", item.To)
	assert.Equal(t, 3, item.MaxRetries)
	assert.Equal(t, entities.EmailPriorityMedium, item.Priority)
	assert.Len(t, item.Errors, 2, "both attempt errors recorded on the item")
}

func TestEngine_FallbackDisabledSkipsSecondaryAndQueue(t *testing.T) {
	settings := testEmailSettings()
	settings.FallbackEnabled = false
	primary := &fakeProvider{name: "api", errs: []error{fmt.Errorf("api 500")}}
	secondary := &fakeProvider{name: "smtp"}
	queue := newFakeQueue()
	e := newTestEngine(settings, queue, primary, secondary)

	err := e.Send(context.Background(), testMessage())
	require.Error(t, err)

	assert.Zero(t, secondary.sendCount())
	assert.Zero(t, queue.size(), "no queueing with fallback disabled")
}

func TestEngine_BothDisabledIsNoOpSuccess(t *testing.T) {
	queue := newFakeQueue()
	e := newTestEngine(testEmailSettings(), queue, nil, nil)

	require.NoError(t, e.Send(context.Background(), testMessage()))
	assert.Zero(t, queue.size())
}

func TestEngine_SendVulnerabilityAlertPriority(t *testing.T) {
	primary := &fakeProvider{name: "api", errs: []error{fmt.Errorf("down")}}
	secondary := &fakeProvider{name: "smtp", errs: []error{fmt.Errorf("down")}}
	queue := newFakeQueue()
	e := newTestEngine(testEmailSettings(), queue, primary, secondary)

	rule := &entities.AlertRule{Name: "critical watch"}
	vuln := &entities.Vulnerability{
		CVEID:     "CVE-2025-200",
		Severity:  entities.SeverityCritical,
		CVSSScore: 9.9,
	}
	err := e.SendVulnerabilityAlert(context.Background(), "sec@example.com", rule, vuln)
	require.Error(t, err)

	item := queue.only()
	require.NotNil(t, item)
	assert.Equal(t, entities.EmailPriorityHigh, item.Priority, "critical severity escalates priority")
	assert.Contains(t, item.Subject, "CVE-2025-200")
}

func TestEngine_SweepRetriesAndRemovesOnSuccess(t *testing.T) {
	settings := testEmailSettings()
	primary := &fakeProvider{name: "api", errs: []error{fmt.Errorf("transient")}}
	queue := newFakeQueue()
	e := newTestEngine(settings, queue, primary, nil)

	require.Error(t, e.Send(context.Background(), testMessage()))
	require.Equal(t, 1, queue.size())

	// The sweep runs after the retry delay has elapsed; the provider has
	// recovered, so the item drains.
	now := time.Now().Add(2 * time.Minute)
	e.now = func() time.Time { return now }
	e.SweepQueue(context.Background())

	assert.Zero(t, queue.size(), "delivered item leaves the queue")
	assert.Equal(t, 2, primary.sendCount())
}

func TestEngine_SweepIncrementsRetryCountOnFailure(t *testing.T) {
	primary := &fakeProvider{name: "api", errs: []error{
		fmt.Errorf("fail 1"), fmt.Errorf("fail 2"),
	}}
	queue := newFakeQueue()
	e := newTestEngine(testEmailSettings(), queue, primary, nil)

	require.Error(t, e.Send(context.Background(), testMessage()))

	now := time.Now().Add(2 * time.Minute)
	e.now = func() time.Time { return now }
	e.SweepQueue(context.Background())

	require.Equal(t, 1, queue.size())
	item := queue.only()
	assert.Equal(t, 1, item.RetryCount)
	require.NotNil(t, item.LastAttempt)
	assert.True(t, item.LastAttempt.Equal(now))
}

func TestEngine_SweepDropsItemAtMaxRetries(t *testing.T) {
	settings := testEmailSettings()
	settings.MaxRetries = 2
	primary := &fakeProvider{name: "api", errs: []error{
		fmt.Errorf("fail 0"), fmt.Errorf("fail 1"), fmt.Errorf("fail 2"), fmt.Errorf("fail 3"),
	}}
	queue := newFakeQueue()
	e := newTestEngine(settings, queue, primary, nil)

	require.Error(t, e.Send(context.Background(), testMessage()))

	now := time.Now()
	e.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		now = now.Add(2 * time.Minute)
		e.SweepQueue(context.Background())
	}

	assert.Zero(t, queue.size(), "item dropped after exhausting max retries")
	// Initial send plus two sweep retries; no attempt after the drop.
	assert.Equal(t, 3, primary.sendCount())
}

func TestEngine_SweepRespectsRetryDelay(t *testing.T) {
	primary := &fakeProvider{name: "api", errs: []error{fmt.Errorf("fail"), fmt.Errorf("fail")}}
	queue := newFakeQueue()
	e := newTestEngine(testEmailSettings(), queue, primary, nil)

	require.Error(t, e.Send(context.Background(), testMessage()))
	base := time.Now()
	e.now = func() time.Time { return base.Add(2 * time.Minute) }
	e.SweepQueue(context.Background())
	require.Equal(t, 2, primary.sendCount())

	// A second sweep inside the retry delay leaves the item untouched.
	e.now = func() time.Time { return base.Add(2*time.Minute + 10*time.Second) }
	e.SweepQueue(context.Background())
	assert.Equal(t, 2, primary.sendCount(), "item not retried before the delay elapses")
}

func TestEngine_ConfigStatus(t *testing.T) {
	e := NewEngine(testEmailSettings(), newFakeQueue(), testLogger())
	status := e.GetConfigStatus()

	assert.Equal(t, conf.EmailProviderAPI, status.PrimaryProvider)
	assert.Equal(t, conf.EmailProviderSMTP, status.SecondaryProvider)
	assert.True(t, status.FallbackEnabled)
	assert.Equal(t, 3, status.MaxRetries)
	assert.Equal(t, "1m0s", status.RetryDelay)
}

func TestEngine_StatsReset(t *testing.T) {
	primary := &fakeProvider{name: "api"}
	e := newTestEngine(testEmailSettings(), newFakeQueue(), primary, nil)

	require.NoError(t, e.Send(context.Background(), testMessage()))
	require.EqualValues(t, 1, e.GetDeliveryStats().Primary.Success)

	e.ResetDeliveryStats()
	assert.Zero(t, e.GetDeliveryStats().Primary.Success)
}
