package adapter

import "time"

type timerOwner int

const (
	timerNiGeneral timerOwner = iota
	timerNiEmergency
	timerOdcpi
	timerOwnerCount
)

func (o timerOwner) String() string {
	switch o {
	case timerNiGeneral:
		return "ni_general"
	case timerNiEmergency:
		return "ni_emergency"
	case timerOdcpi:
		return "odcpi"
	default:
		return "unknown"
	}
}

// timerSlot tracks the single outstanding deadline of one owner. The
// generation changes on every arm and cancel so that callbacks already in
// flight for an older deadline are ignored.
type timerSlot struct {
	id    string
	gen   uint64
	armed bool
}

type timerFired struct {
	owner timerOwner
	gen   uint64
}

func (a *Adapter) armTimer(owner timerOwner, deadline time.Time) {
	a.cancelTimer(owner)
	slot := &a.timers[owner]
	slot.gen++
	gen := slot.gen
	slot.armed = true
	slot.id = a.sched.Schedule(deadline, func() {
		a.queue.Enqueue(work{timer: &timerFired{owner: owner, gen: gen}})
	})
}

func (a *Adapter) cancelTimer(owner timerOwner) {
	slot := &a.timers[owner]
	if slot.armed {
		a.sched.Cancel(slot.id)
	}
	slot.armed = false
	slot.id = ""
	slot.gen++
}

func (a *Adapter) onTimer(t timerFired) {
	slot := &a.timers[t.owner]
	if !slot.armed || slot.gen != t.gen {
		return
	}
	a.fire(t.owner)
}

// expireDue fires every deadline that has passed. It runs before each
// command and event so a due timeout is always applied first, even when its
// scheduler callback has not been dequeued yet.
func (a *Adapter) expireDue() {
	now := a.sched.Now()
	for owner := timerOwner(0); owner < timerOwnerCount; owner++ {
		deadline, ok := a.deadline(owner)
		if ok && !now.Before(deadline) {
			a.fire(owner)
		}
	}
}

func (a *Adapter) deadline(owner timerOwner) (time.Time, bool) {
	switch owner {
	case timerNiGeneral:
		return a.ni.general.pendingDeadline()
	case timerNiEmergency:
		return a.ni.emergency.pendingDeadline()
	case timerOdcpi:
		if a.odcpi.active {
			return a.odcpi.deadline, true
		}
	}
	return time.Time{}, false
}

func (a *Adapter) fire(owner timerOwner) {
	a.cancelTimer(owner)
	switch owner {
	case timerNiGeneral:
		a.niTimedOut(&a.ni.general)
	case timerNiEmergency:
		a.niTimedOut(&a.ni.emergency)
	case timerOdcpi:
		a.odcpiTimedOut()
	}
}
