package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/model"
)

// NiState is the state of one NI authorization machine. Responded and
// TimedOut hold the outcome of the last request until the next one arrives
// or the engine goes away.
type NiState int

const (
	NiIdle NiState = iota
	NiAwaitingResponse
	NiResponded
	NiTimedOut
)

func (s NiState) String() string {
	switch s {
	case NiAwaitingResponse:
		return "awaiting_response"
	case NiResponded:
		return "responded"
	case NiTimedOut:
		return "timed_out"
	default:
		return "idle"
	}
}

// niSession is one NI authorization state machine. General and emergency
// requests each own one.
type niSession struct {
	kind     string
	owner    timerOwner
	state    NiState
	request  model.NiRequest
	deadline time.Time
}

type niMachines struct {
	general   niSession
	emergency niSession
}

func (s *niSession) pendingDeadline() (time.Time, bool) {
	if s.state != NiAwaitingResponse {
		return time.Time{}, false
	}
	return s.deadline, true
}

func (s *niSession) reset() {
	s.state = NiIdle
	s.request = model.NiRequest{}
	s.deadline = time.Time{}
}

// finish leaves the awaiting state for a terminal one, keeping the request id.
func (s *niSession) finish(state NiState) {
	s.state = state
	s.request = model.NiRequest{ID: s.request.ID, Emergency: s.request.Emergency}
	s.deadline = time.Time{}
}

func (a *Adapter) initNi() {
	a.ni.general = niSession{kind: "general", owner: timerNiGeneral}
	a.ni.emergency = niSession{kind: "emergency", owner: timerNiEmergency}
}

func (a *Adapter) niHandlers() []NiHandler {
	var out []NiHandler
	for _, c := range a.sortedClients() {
		if h, ok := c.(NiHandler); ok {
			out = append(out, h)
		}
	}
	return out
}

func (a *Adapter) sendNiResponse(ctx context.Context, req model.NiRequest, resp model.NiResponse) {
	err := a.send(ctx, sbi.RespondNi{ID: req.ID, Response: resp, Payload: req.Payload})
	if err != nil {
		a.log.Warn(ctx, "ni response not delivered",
			logging.Uint64("ni_id", uint64(req.ID)),
			logging.String("response", resp.String()),
			logging.Err(err),
		)
	}
}

func (a *Adapter) onNiRequested(ctx context.Context, req model.NiRequest) {
	handlers := a.niHandlers()

	// The user cannot be asked during an emergency call or while the device
	// is not interactive: emergency requests are accepted on the spot.
	if req.Emergency && (a.aux.network.InEmergencyCall || !a.aux.power.Interactive()) {
		for _, h := range handlers {
			h.OnNiRequest(req)
		}
		a.sendNiResponse(ctx, req, model.NiResponseAccept)
		a.metrics.NiOutcome("emergency", "auto_accepted")
		a.log.Info(ctx, "emergency ni request auto-accepted", logging.Uint64("ni_id", uint64(req.ID)))
		return
	}

	m := &a.ni.general
	timeout := a.cfg.niTimeout
	if req.Emergency {
		m = &a.ni.emergency
		timeout = a.cfg.niEmergencyTimeout
	}

	if len(handlers) == 0 {
		a.sendNiResponse(ctx, req, a.cfg.niDefault)
		a.metrics.NiOutcome(m.kind, "no_handler")
		a.log.Info(ctx, "ni request answered with default, no handler registered",
			logging.Uint64("ni_id", uint64(req.ID)),
			logging.String("response", a.cfg.niDefault.String()),
		)
		return
	}

	if m.state == NiAwaitingResponse {
		if !req.Emergency {
			a.sendNiResponse(ctx, req, model.NiResponseDeny)
			a.metrics.NiOutcome(m.kind, "busy")
			a.log.Info(ctx, "ni request denied, another request is pending",
				logging.Uint64("ni_id", uint64(req.ID)),
				logging.Uint64("pending_id", uint64(m.request.ID)),
			)
			return
		}
		a.cancelTimer(m.owner)
		a.metrics.NiOutcome(m.kind, "replaced")
		a.log.Info(ctx, "emergency ni request replaced",
			logging.Uint64("ni_id", uint64(m.request.ID)),
			logging.Uint64("replaced_by", uint64(req.ID)),
		)
	}

	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	m.state = NiAwaitingResponse
	m.request = req
	m.deadline = a.sched.Now().Add(timeout)
	a.armTimer(m.owner, m.deadline)

	for _, h := range handlers {
		h.OnNiRequest(req)
	}
	a.log.Debug(ctx, "ni request awaiting response",
		logging.String("kind", m.kind),
		logging.Uint64("ni_id", uint64(req.ID)),
		logging.Duration("timeout", timeout),
	)
}

func (a *Adapter) respondToNi(ctx context.Context, c RespondToNi) error {
	switch c.Response {
	case model.NiResponseAccept, model.NiResponseDeny, model.NiResponseNoResponse:
	default:
		return fmt.Errorf("%w: ni response %d", ErrInvalidParameter, c.Response)
	}

	var m *niSession
	for _, s := range []*niSession{&a.ni.general, &a.ni.emergency} {
		if s.state == NiAwaitingResponse && s.request.ID == c.ID {
			m = s
			break
		}
	}
	if m == nil {
		return fmt.Errorf("%w: ni id %d", ErrStaleOrUnknownRequest, c.ID)
	}

	req := m.request
	a.cancelTimer(m.owner)
	m.finish(NiResponded)

	if err := a.send(ctx, sbi.RespondNi{ID: req.ID, Response: c.Response, Payload: req.Payload}); err != nil {
		return err
	}
	a.metrics.NiOutcome(m.kind, "responded")
	a.log.Info(ctx, "ni request answered",
		logging.String("kind", m.kind),
		logging.Uint64("ni_id", uint64(req.ID)),
		logging.String("response", c.Response.String()),
	)
	return nil
}

// niTimedOut sends the default response once for an unanswered prompt.
func (a *Adapter) niTimedOut(m *niSession) {
	if m.state != NiAwaitingResponse {
		return
	}
	ctx := context.Background()
	req := m.request
	m.finish(NiTimedOut)

	a.sendNiResponse(ctx, req, a.cfg.niDefault)
	a.metrics.NiOutcome(m.kind, "timeout")
	a.log.Info(ctx, "ni request timed out",
		logging.String("kind", m.kind),
		logging.Uint64("ni_id", uint64(req.ID)),
		logging.String("response", a.cfg.niDefault.String()),
	)
}

func (a *Adapter) resetNi(ctx context.Context) {
	for _, m := range []*niSession{&a.ni.general, &a.ni.emergency} {
		if m.state == NiAwaitingResponse {
			a.log.Info(ctx, "ni request dropped with engine", logging.Uint64("ni_id", uint64(m.request.ID)))
		}
		a.cancelTimer(m.owner)
		m.reset()
	}
}
