package alerting

import (
	"sync"

	"github.com/vulnwatch/vulnwatch-go/internal/datastore/entities"
)

// VulnHandler processes one newly ingested vulnerability.
type VulnHandler func(vuln *entities.Vulnerability)

const (
	// vulnBusBufferSize is the capacity of the async vulnerability channel.
	// Publishes are dropped if the buffer is full so the ingestion pipeline
	// is never blocked by rule evaluation or notification dispatch.
	vulnBusBufferSize = 1000
)

// VulnEventBus is an async pub/sub for newly ingested vulnerabilities.
// Publish is non-blocking: records are sent to a buffered channel and
// processed by a worker goroutine.
type VulnEventBus struct {
	handlers []VulnHandler
	mu       sync.RWMutex
	vulnCh   chan *entities.Vulnerability
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewVulnEventBus creates a new vulnerability event bus and starts its worker.
func NewVulnEventBus() *VulnEventBus {
	b := &VulnEventBus{
		handlers: make([]VulnHandler, 0),
		vulnCh:   make(chan *entities.Vulnerability, vulnBusBufferSize),
		stopCh:   make(chan struct{}),
	}
	go b.processLoop()
	return b
}

// Subscribe registers a handler for vulnerability events.
func (b *VulnEventBus) Subscribe(handler VulnHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues a vulnerability for async processing and reports whether
// it was accepted. Non-blocking: if the buffer is full the record is dropped
// to protect callers on hot paths. Records are dropped after Stop().
func (b *VulnEventBus) Publish(vuln *entities.Vulnerability) bool {
	select {
	case <-b.stopCh:
		return false
	default:
	}

	select {
	case b.vulnCh <- vuln:
		return true
	default:
		// Buffer full, drop rather than block the caller
		return false
	}
}

// Stop shuts down the worker goroutine. Safe to call multiple times.
func (b *VulnEventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

// processLoop drains the channel and dispatches to handlers.
func (b *VulnEventBus) processLoop() {
	for {
		select {
		case vuln := <-b.vulnCh:
			b.dispatch(vuln)
		case <-b.stopCh:
			// Drain remaining records before exiting
			for {
				select {
				case vuln := <-b.vulnCh:
					b.dispatch(vuln)
				default:
					return
				}
			}
		}
	}
}

func (b *VulnEventBus) dispatch(vuln *entities.Vulnerability) {
	b.mu.RLock()
	handlers := make([]VulnHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.safeCall(handler, vuln)
	}
}

// safeCall invokes a handler with panic recovery so a panicking handler
// cannot kill the bus goroutine.
func (b *VulnEventBus) safeCall(handler VulnHandler, vuln *entities.Vulnerability) {
	defer func() {
		recover() //nolint:errcheck // intentionally swallowed to keep bus alive
	}()
	handler(vuln)
}
