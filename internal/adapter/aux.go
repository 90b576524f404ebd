package adapter

import (
	"context"
	"fmt"
	"sort"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/model"
)

type auxKind int

const (
	auxAidingData auxKind = iota
	auxCapabilities
	auxEnergy
)

// auxPending is a correlated command waiting for a single engine answer.
type auxPending struct {
	kind auxKind
	p    *pending
}

// auxState holds latched device state, engine caches and pending
// single-answer commands.
type auxState struct {
	power      model.PowerState
	powerSet   bool
	network    model.NetworkState
	networkSet bool

	capabilities model.Capabilities
	capsKnown    bool
	energy       model.EnergyReport
	energyKnown  bool

	pending     map[sbi.Correlation]auxPending
	capsRefresh sbi.Correlation
	agps        map[uint32]model.AgpsConnRequest
}

func newAuxState() auxState {
	return auxState{
		pending: make(map[sbi.Correlation]auxPending),
		agps:    make(map[uint32]model.AgpsConnRequest),
	}
}

func (a *Adapter) deleteAidingData(p *pending, c DeleteAidingData) {
	if c.Data == 0 {
		a.complete(p, Result{Err: fmt.Errorf("%w: no aiding data selected", ErrInvalidParameter)})
		return
	}
	corr := a.nextCorrelation()
	if err := a.send(p.ctx, sbi.DeleteAidingData{Correlation: corr, Data: c.Data}); err != nil {
		a.complete(p, Result{Err: err})
		return
	}
	a.aux.pending[corr] = auxPending{kind: auxAidingData, p: p}
}

func (a *Adapter) onCommandAck(ctx context.Context, ack sbi.CommandAck) {
	w, ok := a.aux.pending[ack.Correlation]
	if !ok || w.kind != auxAidingData {
		a.log.Debug(ctx, "ignoring command ack", logging.String("correlation", ack.Correlation.String()))
		return
	}
	delete(a.aux.pending, ack.Correlation)
	if !ack.Err.OK() {
		a.complete(w.p, Result{Err: fmt.Errorf("%w: %s", ErrEngineFailure, ack.Err)})
		return
	}
	a.complete(w.p, Result{})
}

func (a *Adapter) getCapabilities(p *pending) {
	if !a.engineUp {
		if a.aux.capsKnown {
			a.complete(p, Result{Capabilities: a.aux.capabilities})
			return
		}
		a.complete(p, Result{Err: ErrEngineUnavailable})
		return
	}
	corr := a.nextCorrelation()
	if err := a.send(p.ctx, sbi.RequestCapabilities{Correlation: corr}); err != nil {
		a.complete(p, Result{Err: err})
		return
	}
	a.aux.pending[corr] = auxPending{kind: auxCapabilities, p: p}
}

func (a *Adapter) refreshCapabilities(ctx context.Context) {
	corr := a.nextCorrelation()
	if err := a.send(ctx, sbi.RequestCapabilities{Correlation: corr}); err != nil {
		return
	}
	a.aux.capsRefresh = corr
}

func (a *Adapter) onCapabilitiesReport(ctx context.Context, rep sbi.CapabilitiesReport) {
	a.aux.capabilities = rep.Capabilities
	a.aux.capsKnown = true

	if w, ok := a.aux.pending[rep.Correlation]; ok && w.kind == auxCapabilities {
		delete(a.aux.pending, rep.Correlation)
		a.complete(w.p, Result{Capabilities: rep.Capabilities})
		return
	}
	if rep.Correlation != 0 && rep.Correlation == a.aux.capsRefresh {
		a.aux.capsRefresh = 0
	}

	// Unsolicited, or the refresh issued on EngineUp.
	n := 0
	for _, c := range a.sortedClients() {
		if h, ok := c.(CapabilitiesHandler); ok {
			h.OnCapabilities(rep.Capabilities)
			n++
		}
	}
	if n > 0 {
		a.metrics.ReportDelivered("capabilities")
	}
	a.log.Debug(ctx, "capabilities updated", logging.Uint64("capabilities", uint64(rep.Capabilities)))
}

func (a *Adapter) getEnergyConsumed(p *pending) {
	if !a.engineUp {
		if a.aux.energyKnown {
			a.complete(p, Result{Energy: a.aux.energy})
			return
		}
		a.complete(p, Result{Err: ErrEngineUnavailable})
		return
	}
	corr := a.nextCorrelation()
	if err := a.send(p.ctx, sbi.RequestEnergy{Correlation: corr}); err != nil {
		a.complete(p, Result{Err: err})
		return
	}
	a.aux.pending[corr] = auxPending{kind: auxEnergy, p: p}
}

func (a *Adapter) onEnergyReport(ctx context.Context, rep sbi.EnergyReport) {
	a.aux.energy = rep.Report
	a.aux.energyKnown = true

	if w, ok := a.aux.pending[rep.Correlation]; ok && w.kind == auxEnergy {
		delete(a.aux.pending, rep.Correlation)
		a.complete(w.p, Result{Energy: rep.Report})
		return
	}
	a.log.Debug(ctx, "energy report cached", logging.Uint64("consumed", rep.Report.Consumed))
}

func (a *Adapter) setPowerState(ctx context.Context, s model.PowerState) error {
	if s < model.PowerStateUnknown || s > model.PowerStateShutdown {
		return fmt.Errorf("%w: power state %d", ErrInvalidParameter, s)
	}
	a.aux.power = s
	a.aux.powerSet = true
	if a.engineUp {
		if err := a.send(ctx, sbi.SetPowerState{State: s}); err != nil {
			a.log.Warn(ctx, "power state not forwarded", logging.Err(err))
		}
	}
	return nil
}

func (a *Adapter) setNetworkState(ctx context.Context, s model.NetworkState) error {
	if s.Type < model.NetworkUnknown || s.Type > model.NetworkMobile {
		return fmt.Errorf("%w: network type %d", ErrInvalidParameter, s.Type)
	}
	a.aux.network = s
	a.aux.networkSet = true
	if a.engineUp {
		if err := a.send(ctx, sbi.SetNetworkState{State: s}); err != nil {
			a.log.Warn(ctx, "network state not forwarded", logging.Err(err))
		}
	}
	return nil
}

// resendLatched replays power and network state into a restarted engine.
func (a *Adapter) resendLatched(ctx context.Context) {
	if a.aux.powerSet {
		if err := a.send(ctx, sbi.SetPowerState{State: a.aux.power}); err != nil {
			a.log.Warn(ctx, "power state not replayed", logging.Err(err))
		}
	}
	if a.aux.networkSet {
		if err := a.send(ctx, sbi.SetNetworkState{State: a.aux.network}); err != nil {
			a.log.Warn(ctx, "network state not replayed", logging.Err(err))
		}
	}
}

func (a *Adapter) injectLocation(ctx context.Context, loc model.Location) error {
	if !loc.Valid() {
		return fmt.Errorf("%w: location out of range", ErrInvalidParameter)
	}
	return a.send(ctx, sbi.InjectLocation{Location: loc})
}

func (a *Adapter) injectTime(ctx context.Context, c InjectTime) error {
	if c.Time.IsZero() {
		return fmt.Errorf("%w: zero time", ErrInvalidParameter)
	}
	if c.Uncertainty < 0 {
		return fmt.Errorf("%w: negative uncertainty", ErrInvalidParameter)
	}
	ref := c.Reference
	if ref.IsZero() {
		ref = a.sched.Now()
	}
	return a.send(ctx, sbi.InjectTime{Time: c.Time, Reference: ref, Uncertainty: c.Uncertainty})
}

func (a *Adapter) onAgpsConnRequested(ctx context.Context, req model.AgpsConnRequest) {
	var handlers []AgpsHandler
	for _, c := range a.sortedClients() {
		if h, ok := c.(AgpsHandler); ok {
			handlers = append(handlers, h)
		}
	}
	if len(handlers) == 0 {
		err := a.send(ctx, sbi.ReportAgpsConn{ID: req.ID, Type: req.Type, Status: model.AgpsConnFailed, APN: req.APN})
		if err != nil {
			a.log.Warn(ctx, "agps failure not reported", logging.Err(err))
		}
		a.log.Info(ctx, "agps connection refused, no handler registered", logging.Uint64("agps_id", uint64(req.ID)))
		return
	}
	a.aux.agps[req.ID] = req
	for _, h := range handlers {
		h.OnAgpsConnRequest(req)
	}
}

func (a *Adapter) respondAgpsConnection(ctx context.Context, c RespondAgpsConnection) error {
	req, ok := a.aux.agps[c.ID]
	if !ok {
		return fmt.Errorf("%w: agps id %d", ErrStaleOrUnknownRequest, c.ID)
	}
	switch c.Status {
	case model.AgpsConnOpen, model.AgpsConnClosed, model.AgpsConnFailed:
	default:
		return fmt.Errorf("%w: agps status %d", ErrInvalidParameter, c.Status)
	}
	delete(a.aux.agps, c.ID)
	return a.send(ctx, sbi.ReportAgpsConn{ID: req.ID, Type: req.Type, Status: c.Status, APN: req.APN})
}

// failAuxPending completes every waiting single-answer command with err and
// forgets engine-raised AGPS requests.
func (a *Adapter) failAuxPending(err error) {
	corrs := make([]sbi.Correlation, 0, len(a.aux.pending))
	for corr := range a.aux.pending {
		corrs = append(corrs, corr)
	}
	sort.Slice(corrs, func(i, j int) bool { return corrs[i] < corrs[j] })
	for _, corr := range corrs {
		w := a.aux.pending[corr]
		delete(a.aux.pending, corr)
		a.complete(w.p, Result{Err: err})
	}
	a.aux.capsRefresh = 0
	clear(a.aux.agps)
}
