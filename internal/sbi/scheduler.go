package sbi

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/gnss-adapter/timectrl"
)

// EventScheduler runs callbacks at given instants. The adapter uses it for
// NI and ODCPI deadlines; callbacks only enqueue work and never touch
// adapter state directly.
type EventScheduler interface {
	// Schedule registers f to run at 'at' and returns an id for Cancel.
	Schedule(at time.Time, f func()) (id string)

	// Cancel drops a scheduled callback. Unknown or already-run ids are a no-op.
	Cancel(id string)

	// Now returns the scheduler's notion of the current time.
	Now() time.Time

	// RunDue runs every callback whose time is <= Now(). Callbacks run
	// outside the scheduler lock, so they may schedule or cancel.
	RunDue()
}

type timerEntry struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// timerQueue keeps entries ordered by deadline and indexed by id. It is not
// safe for concurrent use; callers hold their own lock.
type timerQueue struct {
	counter uint64
	prefix  string
	entries []*timerEntry
	index   map[string]*timerEntry
}

func newTimerQueue(prefix string) timerQueue {
	return timerQueue{prefix: prefix, index: make(map[string]*timerEntry)}
}

func (q *timerQueue) push(at time.Time, f func()) *timerEntry {
	q.counter++
	e := &timerEntry{id: fmt.Sprintf("%s-%d", q.prefix, q.counter), when: at, f: f}

	// Equal deadlines keep insertion order.
	idx := sort.Search(len(q.entries), func(i int) bool {
		return q.entries[i].when.After(at)
	})
	q.entries = append(q.entries, nil)
	copy(q.entries[idx+1:], q.entries[idx:])
	q.entries[idx] = e
	q.index[e.id] = e
	return e
}

func (q *timerQueue) cancel(id string) {
	if e, ok := q.index[id]; ok {
		e.cancelled = true
		delete(q.index, id)
	}
}

// popDue removes and returns the earliest live entry due at now, or nil.
func (q *timerQueue) popDue(now time.Time) *timerEntry {
	for len(q.entries) > 0 {
		e := q.entries[0]
		if e.cancelled {
			q.entries = q.entries[1:]
			continue
		}
		if e.when.After(now) {
			return nil
		}
		q.entries = q.entries[1:]
		delete(q.index, e.id)
		return e
	}
	return nil
}

func (q *timerQueue) pending() int {
	return len(q.index)
}

// clockScheduler reads time from a Clock. When armed it also starts a wall
// timer per entry so callbacks fire without an external RunDue loop.
type clockScheduler struct {
	clock timectrl.Clock
	arm   bool

	mu    sync.Mutex
	queue timerQueue
}

// NewEventScheduler creates a scheduler that only runs callbacks when RunDue
// is called, typically from a TimeController listener.
func NewEventScheduler(clock timectrl.Clock) EventScheduler {
	return &clockScheduler{clock: clock, queue: newTimerQueue("ev")}
}

// NewWallScheduler creates a scheduler on the system clock that fires
// callbacks on its own.
func NewWallScheduler() EventScheduler {
	return &clockScheduler{clock: timectrl.WallClock{}, arm: true, queue: newTimerQueue("wall")}
}

func (s *clockScheduler) Schedule(at time.Time, f func()) string {
	s.mu.Lock()
	e := s.queue.push(at, f)
	s.mu.Unlock()

	if s.arm {
		time.AfterFunc(at.Sub(s.clock.Now()), s.RunDue)
	}
	return e.id
}

func (s *clockScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.cancel(id)
}

func (s *clockScheduler) Now() time.Time {
	return s.clock.Now()
}

func (s *clockScheduler) RunDue() {
	for {
		s.mu.Lock()
		e := s.queue.popDue(s.clock.Now())
		s.mu.Unlock()
		if e == nil {
			return
		}
		if e.f != nil {
			e.f()
		}
	}
}
