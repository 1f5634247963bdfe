package alerting

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
)

func TestVulnEventBus_DeliversToAllSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewVulnEventBus()
	defer bus.Stop()

	var mu sync.Mutex
	got := map[string]int{}
	done := make(chan struct{}, 2)
	for _, name := range []string{"a", "b"} {
		name := name
		bus.Subscribe(func(vuln *entities.Vulnerability) {
			mu.Lock()
			got[name]++
			mu.Unlock()
			done <- struct{}{}
		})
	}

	require.True(t, bus.Publish(&entities.Vulnerability{CVEID: "CVE-2025-100"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for handler delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, got)
}

func TestVulnEventBus_PanickingHandlerDoesNotKillBus(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewVulnEventBus()
	defer bus.Stop()

	delivered := make(chan string, 2)
	bus.Subscribe(func(_ *entities.Vulnerability) {
		panic("handler bug")
	})
	bus.Subscribe(func(vuln *entities.Vulnerability) {
		delivered <- vuln.CVEID
	})

	bus.Publish(&entities.Vulnerability{CVEID: "CVE-2025-101"})
	bus.Publish(&entities.Vulnerability{CVEID: "CVE-2025-102"})

	for _, want := range []string{"CVE-2025-101", "CVE-2025-102"} {
		select {
		case got := <-delivered:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatal("bus stopped delivering after handler panic")
		}
	}
}

func TestVulnEventBus_PublishAfterStopIsRejected(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewVulnEventBus()
	bus.Stop()
	bus.Stop() // idempotent

	assert.False(t, bus.Publish(&entities.Vulnerability{CVEID: "CVE-2025-103"}))
}

func TestVulnEventBus_StopDrainsBuffered(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewVulnEventBus()

	var mu sync.Mutex
	var seen []string
	blocker := make(chan struct{})
	bus.Subscribe(func(vuln *entities.Vulnerability) {
		<-blocker
		mu.Lock()
		seen = append(seen, vuln.CVEID)
		mu.Unlock()
	})

	// First publish occupies the worker once unblocked; the rest buffer.
	bus.Publish(&entities.Vulnerability{CVEID: "CVE-2025-104"})
	bus.Publish(&entities.Vulnerability{CVEID: "CVE-2025-105"})
	bus.Stop()
	close(blocker)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 10*time.Millisecond, "buffered records should drain on stop")
}
