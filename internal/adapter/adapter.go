// Package adapter implements the GNSS control-plane adapter: it multiplexes
// many clients onto a single positioning engine. Every command, engine event
// and timer expiry is applied by one executor goroutine in arrival order, so
// the state below is never shared.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/observability"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/model"
)

// errAlreadyRunning is returned by a second concurrent Run.
var errAlreadyRunning = errors.New("adapter already running")

// work is one item of the executor queue. Exactly one field is set.
type work struct {
	cmd   *pending
	event sbi.Event
	timer *timerFired
	fn    func()
}

// Adapter is the GNSS control-plane adapter.
type Adapter struct {
	engine  sbi.Engine
	sched   sbi.EventScheduler
	log     logging.Logger
	metrics MetricsRecorder
	ids     RequestIDGenerator
	tracer  trace.Tracer
	cfg     settings

	queue   *workQueue
	running atomic.Bool
	corr    atomic.Uint64

	// Executor-owned state below.
	engineUp bool
	clients  map[model.ClientID]Client
	registry *registry
	ni       niMachines
	odcpi    odcpiState
	sv       svReconciler
	aux      auxState
	timers   [timerOwnerCount]timerSlot
}

// New creates an adapter bound to engine. Engine events must be delivered
// through Post; the engine is considered down until an EngineUp event.
func New(engine sbi.Engine, sched sbi.EventScheduler, log logging.Logger, opts ...Option) *Adapter {
	if log == nil {
		log = logging.Noop()
	}
	if sched == nil {
		sched = sbi.NewWallScheduler()
	}
	a := &Adapter{
		engine:   engine,
		sched:    sched,
		log:      log,
		metrics:  noopMetrics{},
		ids:      UUIDv7Generator{},
		tracer:   observability.Tracer(),
		cfg:      defaultSettings(),
		queue:    newWorkQueue(),
		clients:  make(map[model.ClientID]Client),
		registry: newRegistry(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.sv = newSvReconciler(a.cfg.initialSv)
	a.aux = newAuxState()
	a.initNi()
	a.metrics.SetEngineUp(false)
	return a
}

// Run executes queued work until ctx is cancelled or Stop is called. Work
// still queued at that point is completed with ErrAdapterStopped.
func (a *Adapter) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	a.log.Info(ctx, "adapter executor started")
	defer a.log.Info(ctx, "adapter executor stopped")

	for {
		if a.queue.Closed() {
			a.drain()
			return nil
		}
		if w, ok := a.queue.TryDequeue(); ok {
			a.process(w)
			continue
		}
		a.metrics.SetQueueDepth(0)

		select {
		case <-ctx.Done():
			a.queue.Close()
			a.drain()
			return ctx.Err()
		case <-a.queue.Wait():
		}
	}
}

// Stop closes the queue. Run returns after draining it.
func (a *Adapter) Stop() {
	a.queue.Close()
}

// Submit queues cmd and returns a handle that completes once the command
// has been applied. It never blocks on the executor.
func (a *Adapter) Submit(ctx context.Context, cmd Command) (*Handle, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", ErrInvalidParameter)
	}
	if a.queue.Closed() {
		return nil, ErrAdapterStopped
	}
	name := cmd.commandName()
	id := a.ids.Generate()
	h := newHandle(id, name)

	ctx = logging.ContextWithRequestID(ctx, id)
	ctx = logging.ContextWithClientID(ctx, string(cmd.clientID()))
	ctx, span := a.tracer.Start(ctx, "adapter."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("gnss.command", name),
			attribute.String("gnss.client_id", string(cmd.clientID())),
			attribute.String("gnss.request_id", id),
		),
	)

	p := &pending{
		cmd:       cmd,
		handle:    h,
		ctx:       context.WithoutCancel(ctx),
		span:      span,
		submitted: time.Now(),
	}
	if !a.queue.Enqueue(work{cmd: p}) {
		span.End()
		return nil, ErrAdapterStopped
	}
	a.metrics.SetQueueDepth(a.queue.Len())
	return h, nil
}

// Execute submits cmd and waits for it. The returned error is the command's
// Result.Err, or the submission or context error.
func (a *Adapter) Execute(ctx context.Context, cmd Command) (Result, error) {
	h, err := a.Submit(ctx, cmd)
	if err != nil {
		return Result{Err: err}, err
	}
	res, err := h.Wait(ctx)
	if err != nil {
		return res, err
	}
	return res, res.Err
}

// Post queues an engine event. It implements sbi.EventSink and never blocks.
func (a *Adapter) Post(ev sbi.Event) {
	if ev == nil {
		return
	}
	a.queue.Enqueue(work{event: ev})
}

// Flush waits until everything queued before the call has been applied.
func (a *Adapter) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !a.queue.Enqueue(work{fn: func() { close(done) }}) {
		return ErrAdapterStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) process(w work) {
	switch {
	case w.cmd != nil:
		a.execute(w.cmd)
	case w.event != nil:
		a.handleEvent(w.event)
	case w.timer != nil:
		a.onTimer(*w.timer)
	case w.fn != nil:
		w.fn()
	}
}

// drain fails everything still outstanding once the queue is closed.
func (a *Adapter) drain() {
	for {
		w, ok := a.queue.TryDequeue()
		if !ok {
			break
		}
		switch {
		case w.cmd != nil:
			a.complete(w.cmd, Result{Err: ErrAdapterStopped})
		case w.fn != nil:
			w.fn()
		}
	}
	for owner := range a.timers {
		a.cancelTimer(timerOwner(owner))
	}
	a.failConfigBatches(model.LocationGeneralFailure, ErrAdapterStopped)
	a.failAuxPending(ErrAdapterStopped)
}

func (a *Adapter) execute(p *pending) {
	a.expireDue()

	cmd := p.cmd
	if _, ok := cmd.(SetControlCallbacks); !ok {
		if _, known := a.clients[cmd.clientID()]; !known {
			a.complete(p, Result{Err: fmt.Errorf("%w: %q", ErrUnknownClient, cmd.clientID())})
			return
		}
	}

	switch c := cmd.(type) {
	case StartTracking:
		a.complete(p, Result{Err: a.startTracking(p.ctx, c)})
	case UpdateTracking:
		a.complete(p, Result{Err: a.updateTracking(p.ctx, c)})
	case StopTracking:
		a.complete(p, Result{Err: a.stopTracking(p.ctx, c)})
	case SetControlCallbacks:
		a.complete(p, Result{Err: a.setControlCallbacks(p.ctx, c)})
	case RemoveClient:
		a.complete(p, Result{Err: a.removeClient(p.ctx, c.Client)})
	case RespondToNi:
		a.complete(p, Result{Err: a.respondToNi(p.ctx, c)})
	case SetOdcpiCallback:
		a.complete(p, Result{Err: a.setOdcpiCallback(p.ctx, c)})
	case InjectOdcpi:
		a.complete(p, a.injectOdcpi(p.ctx, c))
	case SetSvConfig:
		a.setSvConfig(p, c)
	case ResetSvConfig:
		a.resetSvConfig(p)
	case UpdateConfig:
		a.updateConfig(p, c.Items)
	case DeleteAidingData:
		a.deleteAidingData(p, c)
	case GetCapabilities:
		a.getCapabilities(p)
	case GetEnergyConsumed:
		a.getEnergyConsumed(p)
	case SetPowerState:
		a.complete(p, Result{Err: a.setPowerState(p.ctx, c.State)})
	case SetNetworkState:
		a.complete(p, Result{Err: a.setNetworkState(p.ctx, c.State)})
	case InjectLocation:
		a.complete(p, Result{Err: a.injectLocation(p.ctx, c.Location)})
	case InjectTime:
		a.complete(p, Result{Err: a.injectTime(p.ctx, c)})
	case RespondAgpsConnection:
		a.complete(p, Result{Err: a.respondAgpsConnection(p.ctx, c)})
	default:
		a.complete(p, Result{Err: fmt.Errorf("%w: unsupported command %T", ErrInvalidParameter, cmd)})
	}
}

// complete resolves p exactly once.
func (a *Adapter) complete(p *pending, res Result) {
	if p == nil || p.completed {
		return
	}
	p.completed = true
	p.handle.result = res
	close(p.handle.done)

	code := ErrorCode(res.Err)
	name := p.cmd.commandName()
	a.metrics.ObserveCommand(name, code, time.Since(p.submitted))

	p.span.SetAttributes(attribute.String("gnss.result", code))
	if res.Err != nil {
		p.span.RecordError(res.Err)
		p.span.SetStatus(codes.Error, code)
		a.log.Debug(p.ctx, "command failed",
			logging.String("command", name),
			logging.String("code", code),
			logging.Err(res.Err),
		)
	}
	p.span.End()

	if c, ok := a.clients[p.cmd.clientID()]; ok {
		if rh, ok := c.(ResponseHandler); ok {
			rh.OnResponse(p.handle.RequestID, res)
		}
	}
}

func (a *Adapter) nextCorrelation() sbi.Correlation {
	return sbi.Correlation(a.corr.Add(1))
}

// send forwards cmd to the engine when it is up.
func (a *Adapter) send(ctx context.Context, cmd sbi.Command) error {
	if !a.engineUp {
		return ErrEngineUnavailable
	}
	if err := a.engine.Send(ctx, cmd); err != nil {
		a.log.Warn(ctx, "engine rejected command",
			logging.String("engine_command", cmd.Name()),
			logging.Err(err),
		)
		return fmt.Errorf("%w: %s: %v", ErrEngineFailure, cmd.Name(), err)
	}
	return nil
}

func (a *Adapter) setControlCallbacks(ctx context.Context, c SetControlCallbacks) error {
	if c.Client == nil || c.Client.ID() == "" {
		return fmt.Errorf("%w: client without id", ErrInvalidParameter)
	}
	id := c.Client.ID()
	_, existed := a.clients[id]
	a.clients[id] = c.Client

	if a.odcpi.provider == id {
		if _, ok := c.Client.(OdcpiHandler); !ok {
			a.clearOdcpiProvider(ctx, "provider dropped its handler")
		}
	}
	a.log.Info(ctx, "client callbacks registered",
		logging.String("client_id", string(id)),
		logging.Bool("replaced", existed),
	)
	return nil
}

func (a *Adapter) removeClient(ctx context.Context, id model.ClientID) error {
	a.stopClientSessions(ctx, id)
	if a.odcpi.provider == id {
		a.clearOdcpiProvider(ctx, "provider removed")
	}
	delete(a.clients, id)
	a.log.Info(ctx, "client removed", logging.String("client_id", string(id)))
	return nil
}

// sortedClients returns registered clients in id order.
func (a *Adapter) sortedClients() []Client {
	out := make([]Client, 0, len(a.clients))
	for _, c := range a.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (a *Adapter) handleEvent(ev sbi.Event) {
	a.expireDue()

	ctx := context.Background()
	switch e := ev.(type) {
	case sbi.EngineUp:
		a.onEngineUp(ctx)
	case sbi.EngineDown:
		a.onEngineDown(ctx, e.Reason)
	case sbi.PositionReport:
		a.dispatchPosition(e.Location)
	case sbi.SvReport:
		a.dispatchSv(e.Report)
	case sbi.MeasurementReport:
		a.dispatchMeasurements(e.Report)
	case sbi.NmeaReport:
		a.dispatchNmea(e.Report)
	case sbi.NiRequested:
		a.onNiRequested(ctx, e.Request)
	case sbi.OdcpiRequested:
		a.onOdcpiRequested(ctx, e.Request)
	case sbi.ConfigAck:
		a.onConfigAck(ctx, e)
	case sbi.CommandAck:
		a.onCommandAck(ctx, e)
	case sbi.EnergyReport:
		a.onEnergyReport(ctx, e)
	case sbi.CapabilitiesReport:
		a.onCapabilitiesReport(ctx, e)
	case sbi.AgpsConnRequested:
		a.onAgpsConnRequested(ctx, e.Request)
	default:
		a.log.Warn(ctx, "ignoring unknown engine event", logging.String("event", ev.Name()))
	}
}

func (a *Adapter) onEngineUp(ctx context.Context) {
	if a.engineUp {
		// Restarted without an EngineDown: the old engine's acks never come.
		a.log.Warn(ctx, "engine restarted while up")
		a.abandonEngineWork(ctx)
	}
	a.engineUp = true
	a.metrics.SetEngineUp(true)
	a.log.Info(ctx, "engine up")

	// A restarted engine holds no session; rebuild from the registry.
	a.registry.lastSent = model.EngineSession{}
	a.reconcileSession(ctx)
	a.reapplySvConfig(ctx)
	a.resendLatched(ctx)
	a.refreshCapabilities(ctx)
}

func (a *Adapter) onEngineDown(ctx context.Context, reason string) {
	if !a.engineUp {
		return
	}
	a.engineUp = false
	a.metrics.SetEngineUp(false)
	a.log.Warn(ctx, "engine down", logging.String("reason", reason))

	a.registry.lastSent = model.EngineSession{}
	a.metrics.SetEngineSession(false, 0)
	a.abandonEngineWork(ctx)
}

// abandonEngineWork fails every command waiting on the engine and drops the
// NI and ODCPI exchanges it started.
func (a *Adapter) abandonEngineWork(ctx context.Context) {
	a.failConfigBatches(model.LocationEngineUnavailable, ErrEngineUnavailable)
	a.failAuxPending(ErrEngineUnavailable)
	a.resetNi(ctx)
	a.resetOdcpi(ctx)
}
