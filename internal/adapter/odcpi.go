package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/model"
)

// odcpiState is the on-demand coarse position injection controller.
type odcpiState struct {
	provider  model.ClientID
	priority  model.OdcpiPriority
	active    bool
	emergency bool
	deadline  time.Time
	// request is the outstanding request as the provider last saw it.
	request   model.OdcpiRequest
}

func (a *Adapter) setOdcpiCallback(ctx context.Context, c SetOdcpiCallback) error {
	switch c.Priority {
	case model.OdcpiPriorityLow, model.OdcpiPriorityHigh:
	default:
		return fmt.Errorf("%w: odcpi priority %d", ErrInvalidParameter, c.Priority)
	}
	client := a.clients[c.Client]
	handler, ok := client.(OdcpiHandler)
	if !ok {
		return fmt.Errorf("%w: client %q has no odcpi handler", ErrCallbackMissing, c.Client)
	}
	if a.odcpi.provider != "" && a.odcpi.provider != c.Client && c.Priority < a.odcpi.priority {
		return fmt.Errorf("%w: %q holds priority %d", ErrPriorityTooLow, a.odcpi.provider, a.odcpi.priority)
	}
	replaced := a.odcpi.provider != c.Client
	a.odcpi.provider = c.Client
	a.odcpi.priority = c.Priority
	a.log.Info(ctx, "odcpi provider registered",
		logging.String("client_id", string(c.Client)),
		logging.Int("priority", int(c.Priority)),
	)
	if replaced && a.odcpi.active {
		a.log.Info(ctx, "odcpi request handed to new provider", logging.String("client_id", string(c.Client)))
		handler.OnOdcpiRequest(a.odcpi.request)
	}
	return nil
}

func (a *Adapter) clearOdcpiProvider(ctx context.Context, reason string) {
	a.log.Info(ctx, "odcpi provider cleared",
		logging.String("client_id", string(a.odcpi.provider)),
		logging.String("reason", reason),
	)
	a.odcpi.provider = ""
	a.odcpi.priority = model.OdcpiPriorityLow
	if a.odcpi.active {
		a.deactivateOdcpi()
	}
}

func (a *Adapter) odcpiProvider() (OdcpiHandler, bool) {
	if a.odcpi.provider == "" {
		return nil, false
	}
	h, ok := a.clients[a.odcpi.provider].(OdcpiHandler)
	return h, ok
}

func (a *Adapter) onOdcpiRequested(ctx context.Context, req model.OdcpiRequest) {
	provider, ok := a.odcpiProvider()
	if !ok {
		a.metrics.OdcpiOutcome("no_provider")
		a.log.Warn(ctx, "odcpi request dropped, no provider registered", logging.Bool("emergency", req.Emergency))
		return
	}

	a.odcpi.deadline = a.sched.Now().Add(a.cfg.odcpiTimeout)
	a.armTimer(timerOdcpi, a.odcpi.deadline)

	if a.odcpi.active {
		// The provider is already working on a fix; only the deadline moves.
		if req.Emergency && !a.odcpi.emergency {
			a.odcpi.emergency = true
			a.odcpi.request.Emergency = true
		}
		a.metrics.OdcpiOutcome("coalesced")
		a.log.Debug(ctx, "odcpi request coalesced", logging.Bool("emergency", a.odcpi.emergency))
		return
	}

	a.odcpi.active = true
	a.odcpi.emergency = req.Emergency
	a.odcpi.request = req
	a.metrics.OdcpiOutcome("requested")
	a.log.Info(ctx, "odcpi request forwarded",
		logging.String("client_id", string(a.odcpi.provider)),
		logging.Bool("emergency", req.Emergency),
	)
	provider.OnOdcpiRequest(req)
}

func (a *Adapter) injectOdcpi(ctx context.Context, c InjectOdcpi) Result {
	if !c.Location.Valid() {
		return Result{Err: fmt.Errorf("%w: location out of range", ErrInvalidParameter)}
	}
	if err := a.send(ctx, sbi.InjectLocation{Location: c.Location}); err != nil {
		return Result{Err: err}
	}
	if !a.odcpi.active {
		return Result{Unsolicited: true}
	}
	a.deactivateOdcpi()
	a.metrics.OdcpiOutcome("satisfied")
	a.log.Debug(ctx, "odcpi request satisfied", logging.String("client_id", string(c.Client)))
	return Result{}
}

func (a *Adapter) odcpiTimedOut() {
	if !a.odcpi.active {
		return
	}
	a.deactivateOdcpi()
	a.metrics.OdcpiOutcome("timeout")
	a.log.Debug(context.Background(), "odcpi request expired")
}

func (a *Adapter) deactivateOdcpi() {
	a.cancelTimer(timerOdcpi)
	a.odcpi.active = false
	a.odcpi.emergency = false
	a.odcpi.deadline = time.Time{}
	a.odcpi.request = model.OdcpiRequest{}
}

func (a *Adapter) resetOdcpi(ctx context.Context) {
	if a.odcpi.active {
		a.log.Debug(ctx, "odcpi request dropped with engine")
		a.deactivateOdcpi()
	}
}
