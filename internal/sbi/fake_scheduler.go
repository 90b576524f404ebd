package sbi

import (
	"sync"
	"time"
)

// FakeEventScheduler keeps its own time which only moves when a test calls
// AdvanceTo or Advance, making deadline behaviour deterministic.
type FakeEventScheduler struct {
	mu    sync.Mutex
	now   time.Time
	queue timerQueue
}

// NewFakeEventScheduler creates a fake scheduler starting at the given time.
func NewFakeEventScheduler(start time.Time) *FakeEventScheduler {
	return &FakeEventScheduler{now: start, queue: newTimerQueue("fake-ev")}
}

// Now returns the current fake time.
func (s *FakeEventScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule registers a callback to run at the given fake time.
func (s *FakeEventScheduler) Schedule(at time.Time, f func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.push(at, f).id
}

// Cancel drops a scheduled callback.
func (s *FakeEventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.cancel(id)
}

// Pending returns the number of live scheduled callbacks.
func (s *FakeEventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.pending()
}

// RunDue runs every callback whose time is <= now.
func (s *FakeEventScheduler) RunDue() {
	for {
		s.mu.Lock()
		e := s.queue.popDue(s.now)
		s.mu.Unlock()
		if e == nil {
			return
		}
		if e.f != nil {
			e.f()
		}
	}
}

// AdvanceTo moves fake time to t and runs due callbacks. Time never goes
// backwards.
func (s *FakeEventScheduler) AdvanceTo(t time.Time) {
	s.mu.Lock()
	if t.Before(s.now) {
		s.mu.Unlock()
		return
	}
	s.now = t
	s.mu.Unlock()

	s.RunDue()
}

// Advance moves fake time forward by d.
func (s *FakeEventScheduler) Advance(d time.Duration) {
	s.AdvanceTo(s.Now().Add(d))
}
