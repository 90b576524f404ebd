package adapter

import (
	"context"
	"time"

	"github.com/signalsfoundry/gnss-adapter/model"
)

// SessionStatus describes one active tracking session.
type SessionStatus struct {
	Key     model.SessionKey
	Request model.TrackingRequest
}

// NiStatus describes one NI authorization machine.
type NiStatus struct {
	State     NiState
	RequestID uint32
	Deadline  time.Time
}

// Status is a consistent copy of the adapter state, taken on the executor.
type Status struct {
	EngineUp      bool
	EngineSession model.EngineSession
	Clients       []model.ClientID
	Sessions      []SessionStatus

	NiGeneral   NiStatus
	NiEmergency NiStatus

	OdcpiProvider  model.ClientID
	OdcpiActive    bool
	OdcpiEmergency bool
	OdcpiDeadline  time.Time

	SvDesired model.SvConfig
	SvAcked   model.SvConfig

	Power        model.PowerState
	Network      model.NetworkState
	Capabilities model.Capabilities
	QueueDepth   int
}

// Snapshot returns the adapter state once everything queued before the call
// has been applied.
func (a *Adapter) Snapshot(ctx context.Context) (Status, error) {
	var st Status
	done := make(chan struct{})
	if !a.queue.Enqueue(work{fn: func() {
		st = a.status()
		close(done)
	}}) {
		return Status{}, ErrAdapterStopped
	}
	select {
	case <-done:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func niStatus(s *niSession) NiStatus {
	switch s.state {
	case NiAwaitingResponse:
		return NiStatus{State: s.state, RequestID: s.request.ID, Deadline: s.deadline}
	case NiResponded, NiTimedOut:
		return NiStatus{State: s.state, RequestID: s.request.ID}
	default:
		return NiStatus{State: NiIdle}
	}
}

func (a *Adapter) status() Status {
	st := Status{
		EngineUp:       a.engineUp,
		EngineSession:  a.registry.lastSent,
		NiGeneral:      niStatus(&a.ni.general),
		NiEmergency:    niStatus(&a.ni.emergency),
		OdcpiProvider:  a.odcpi.provider,
		OdcpiActive:    a.odcpi.active,
		OdcpiEmergency: a.odcpi.emergency,
		OdcpiDeadline:  a.odcpi.deadline,
		SvDesired:      cloneSvConfig(a.sv.desired),
		SvAcked:        cloneSvConfig(a.sv.acked),
		Power:          a.aux.power,
		Network:        a.aux.network,
		Capabilities:   a.aux.capabilities,
		QueueDepth:     a.queue.Len(),
	}
	for _, c := range a.sortedClients() {
		st.Clients = append(st.Clients, c.ID())
	}
	for _, key := range a.registry.keys() {
		st.Sessions = append(st.Sessions, SessionStatus{Key: key, Request: a.registry.entry(key).req})
	}
	return st
}
