package adapter

import (
	"context"
	"fmt"
	"sort"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/model"
)

type sessionEntry struct {
	req model.TrackingRequest
	// lastDelivered is the last fix delivered to a distance-based session.
	lastDelivered *model.Location
}

// registry holds every active tracking session, split by mode, and the
// engine session last sent.
type registry struct {
	time     map[model.SessionKey]*sessionEntry
	distance map[model.SessionKey]*sessionEntry
	lastSent model.EngineSession
	nextID   model.SessionID
}

func newRegistry() *registry {
	return &registry{
		time:     make(map[model.SessionKey]*sessionEntry),
		distance: make(map[model.SessionKey]*sessionEntry),
	}
}

func (r *registry) lookup(key model.SessionKey) (*sessionEntry, map[model.SessionKey]*sessionEntry) {
	if e, ok := r.time[key]; ok {
		return e, r.time
	}
	if e, ok := r.distance[key]; ok {
		return e, r.distance
	}
	return nil, nil
}

func (r *registry) mapFor(mode model.TrackingMode) map[model.SessionKey]*sessionEntry {
	if mode == model.TrackingDistanceBased {
		return r.distance
	}
	return r.time
}

func (r *registry) len() int {
	return len(r.time) + len(r.distance)
}

// keys returns every session key in dispatch order.
func (r *registry) keys() []model.SessionKey {
	out := make([]model.SessionKey, 0, r.len())
	for k := range r.time {
		out = append(out, k)
	}
	for k := range r.distance {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (r *registry) entry(key model.SessionKey) *sessionEntry {
	e, _ := r.lookup(key)
	return e
}

// hasSessions reports whether client holds at least one session.
func (r *registry) hasSessions(client model.ClientID) bool {
	for k := range r.time {
		if k.Client == client {
			return true
		}
	}
	for k := range r.distance {
		if k.Client == client {
			return true
		}
	}
	return false
}

// allocateID hands out adapter-wide unique session ids.
func (r *registry) allocateID() model.SessionID {
	r.nextID++
	if r.nextID == 0 {
		r.nextID++
	}
	return r.nextID
}

// reduce derives the single engine session: the smallest interval and the
// union of accepted technologies over every active request.
func (r *registry) reduce() model.EngineSession {
	var out model.EngineSession
	visit := func(m map[model.SessionKey]*sessionEntry) {
		for _, e := range m {
			if !out.Active || e.req.Interval < out.Interval {
				out.Interval = e.req.Interval
			}
			out.Active = true
			out.Capabilities |= e.req.Capabilities
		}
	}
	visit(r.time)
	visit(r.distance)
	return out
}

// NewSessionID allocates a session id that is unique across every client.
// It is safe to call from any goroutine.
func (a *Adapter) NewSessionID(ctx context.Context) (model.SessionID, error) {
	var id model.SessionID
	done := make(chan struct{})
	if !a.queue.Enqueue(work{fn: func() {
		id = a.registry.allocateID()
		close(done)
	}}) {
		return 0, ErrAdapterStopped
	}
	select {
	case <-done:
		return id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func validateRequest(req model.TrackingRequest) (model.TrackingRequest, error) {
	if err := req.Validate(); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return req.Normalize(), nil
}

func (a *Adapter) startTracking(ctx context.Context, c StartTracking) error {
	key := model.SessionKey{Client: c.Client, ID: c.Session}
	if e := a.registry.entry(key); e != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, key)
	}
	req, err := validateRequest(c.Request)
	if err != nil {
		return err
	}
	a.registry.mapFor(req.Mode)[key] = &sessionEntry{req: req}
	a.log.Debug(ctx, "tracking session started",
		logging.String("session", key.String()),
		logging.String("mode", req.Mode.String()),
		logging.Duration("interval", req.Interval),
	)
	a.reconcileSession(ctx)
	return nil
}

func (a *Adapter) updateTracking(ctx context.Context, c UpdateTracking) error {
	key := model.SessionKey{Client: c.Client, ID: c.Session}
	e, m := a.registry.lookup(key)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}
	req, err := validateRequest(c.Request)
	if err != nil {
		return err
	}
	delete(m, key)
	next := &sessionEntry{req: req}
	if req.Mode == model.TrackingDistanceBased && e.req.Mode == model.TrackingDistanceBased {
		next.lastDelivered = e.lastDelivered
	}
	a.registry.mapFor(req.Mode)[key] = next
	a.reconcileSession(ctx)
	return nil
}

func (a *Adapter) stopTracking(ctx context.Context, c StopTracking) error {
	key := model.SessionKey{Client: c.Client, ID: c.Session}
	e, m := a.registry.lookup(key)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}
	delete(m, key)
	a.log.Debug(ctx, "tracking session stopped", logging.String("session", key.String()))
	a.reconcileSession(ctx)
	return nil
}

func (a *Adapter) stopClientSessions(ctx context.Context, client model.ClientID) {
	removed := 0
	for _, m := range []map[model.SessionKey]*sessionEntry{a.registry.time, a.registry.distance} {
		for k := range m {
			if k.Client == client {
				delete(m, k)
				removed++
			}
		}
	}
	if removed > 0 {
		a.reconcileSession(ctx)
	}
}

// reconcileSession brings the engine in line with the reduced session. An
// identical session is never re-sent, and lastSent only moves when the
// engine accepted the command.
func (a *Adapter) reconcileSession(ctx context.Context) {
	want := a.registry.reduce()
	a.metrics.SetActiveSessions(a.registry.len())
	if !a.engineUp {
		return
	}
	have := a.registry.lastSent
	if want == have {
		return
	}

	var cmd sbi.Command
	switch {
	case want.Active && !have.Active:
		cmd = sbi.StartSession{Session: want}
	case want.Active:
		cmd = sbi.UpdateSession{Session: want}
	default:
		cmd = sbi.StopSession{}
	}
	if err := a.send(ctx, cmd); err != nil {
		a.log.Warn(ctx, "engine session not updated", logging.String("engine_command", cmd.Name()), logging.Err(err))
		return
	}
	a.registry.lastSent = want
	a.metrics.SetEngineSession(want.Active, want.Interval)
	a.log.Debug(ctx, "engine session reconciled",
		logging.String("engine_command", cmd.Name()),
		logging.Duration("interval", want.Interval),
	)
}

// EngineSessionFor computes the engine session for a set of requests. It is
// the pure form of the reduction the adapter applies on every change.
func EngineSessionFor(reqs ...model.TrackingRequest) model.EngineSession {
	r := newRegistry()
	for i, req := range reqs {
		key := model.SessionKey{ID: model.SessionID(i + 1)}
		r.mapFor(req.Mode)[key] = &sessionEntry{req: req.Normalize()}
	}
	return r.reduce()
}
