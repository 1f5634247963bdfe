package mailer

import (
	"sync"
	"time"
)

// Provider slots.
const (
	SlotPrimary   = "primary"
	SlotSecondary = "secondary"
)

// SlotStats are the per-slot delivery counters.
type SlotStats struct {
	Success  int64      `json:"success"`
	Failed   int64      `json:"failed"`
	LastUsed *time.Time `json:"last_used,omitempty"`
}

// StatsSnapshot is a point-in-time copy of both slots' counters.
type StatsSnapshot struct {
	Primary   SlotStats `json:"primary"`
	Secondary SlotStats `json:"secondary"`
}

// DeliveryStats tracks per-slot success/failure counts. Process-wide,
// mutated from delivery goroutines, so access is mutex-guarded. Reset only
// by explicit operator action.
type DeliveryStats struct {
	mu        sync.Mutex
	primary   SlotStats
	secondary SlotStats
	now       func() time.Time
}

// NewDeliveryStats creates zeroed delivery stats.
func NewDeliveryStats() *DeliveryStats {
	return &DeliveryStats{now: time.Now}
}

func (s *DeliveryStats) slot(name string) *SlotStats {
	if name == SlotSecondary {
		return &s.secondary
	}
	return &s.primary
}

// RecordSuccess increments the slot's success counter.
func (s *DeliveryStats) RecordSuccess(slot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.slot(slot)
	st.Success++
	t := s.now()
	st.LastUsed = &t
}

// RecordFailure increments the slot's failure counter.
func (s *DeliveryStats) RecordFailure(slot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.slot(slot)
	st.Failed++
	t := s.now()
	st.LastUsed = &t
}

// Snapshot returns a copy of the current counters.
func (s *DeliveryStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{Primary: s.primary, Secondary: s.secondary}
}

// Reset zeroes all counters.
func (s *DeliveryStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primary = SlotStats{}
	s.secondary = SlotStats{}
}
