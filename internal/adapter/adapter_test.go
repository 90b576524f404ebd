package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/observability"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/model"
)

func TestCommandsFromUnknownClientsAreRejected(t *testing.T) {
	h := newHarness(t)
	res := h.exec(StartTracking{Client: "nobody", Session: 1, Request: timeRequest(time.Second)})
	assert.ErrorIs(t, res.Err, ErrUnknownClient)

	res = h.exec(SetControlCallbacks{})
	assert.ErrorIs(t, res.Err, ErrInvalidParameter)
}

func TestResponsesReachTheSubmittingClient(t *testing.T) {
	h := newHarness(t, WithRequestIDGenerator(NewFixedGenerator("req-a", "req-b", "req-c")))
	c := newFullClient("maps")
	h.register(c)

	handle := h.submit(StartTracking{Client: c.id, Session: 1, Request: timeRequest(time.Second)})
	assert.Equal(t, "req-b", handle.RequestID)
	assert.Equal(t, "start_tracking", handle.Command)
	h.submit(StopTracking{Client: c.id, Session: 99})
	h.flush()

	require.Len(t, c.responses, 3)
	assert.Equal(t, "req-a", c.responses[0].id, "registration itself is reported")
	assert.Equal(t, "req-b", c.responses[1].id)
	assert.NoError(t, c.responses[1].res.Err)
	assert.Equal(t, "req-c", c.responses[2].id)
	assert.ErrorIs(t, c.responses[2].res.Err, ErrUnknownSession)
}

func TestCommandsApplyInSubmissionOrder(t *testing.T) {
	h := newHarness(t)
	c := newFullClient("maps")
	h.register(c)

	var handles []*Handle
	for i := 1; i <= 50; i++ {
		handles = append(handles, h.submit(StartTracking{Client: c.id, Session: model.SessionID(i), Request: timeRequest(time.Second)}))
		handles = append(handles, h.submit(StopTracking{Client: c.id, Session: model.SessionID(i)}))
	}
	for _, handle := range handles {
		res, err := handle.Wait(h.ctx())
		require.NoError(t, err)
		require.NoError(t, res.Err, handle.Command)
	}
	assert.Empty(t, h.snapshot().Sessions)
}

func TestStopFailsQueuedCommands(t *testing.T) {
	a := New(sbi.NewRecordingEngine(), sbi.NewFakeEventScheduler(testEpoch), logging.Noop())

	queued, err := a.Submit(context.Background(), StartTracking{Client: "late", Session: 1, Request: timeRequest(time.Second)})
	require.NoError(t, err)
	a.Stop()

	_, err = a.Submit(context.Background(), GetCapabilities{Client: "late"})
	assert.ErrorIs(t, err, ErrAdapterStopped)
	assert.ErrorIs(t, a.Flush(context.Background()), ErrAdapterStopped)

	require.NoError(t, a.Run(context.Background()))
	res, err := queued.Wait(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, ErrAdapterStopped)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	a := New(sbi.NewRecordingEngine(), sbi.NewFakeEventScheduler(testEpoch), logging.Noop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	_, err := a.Submit(context.Background(), GetCapabilities{Client: "x"})
	assert.ErrorIs(t, err, ErrAdapterStopped)
}

func TestSecondRunIsRejected(t *testing.T) {
	h := newHarness(t)
	h.flush()
	assert.Error(t, h.a.Run(context.Background()))
}

func TestExecuteReturnsCommandError(t *testing.T) {
	h := newHarness(t)
	res, err := h.a.Execute(h.ctx(), StopTracking{Client: "ghost"})
	assert.ErrorIs(t, err, ErrUnknownClient)
	assert.Equal(t, err, res.Err)
}

func TestEngineSendFailureIsEngineFailure(t *testing.T) {
	h := newHarness(t)
	c := newFullClient("ntp")
	h.register(c)
	h.engineUp()

	h.eng.FailWith("inject_location", errors.New("link reset"))
	res := h.exec(InjectLocation{Client: c.id, Location: fixAt(3, 4)})
	assert.ErrorIs(t, res.Err, ErrEngineFailure)
}

func TestMetricsAreRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewAdapterCollector(reg)
	require.NoError(t, err)

	h := newHarness(t, WithMetrics(collector))
	c := newFullClient("maps")
	h.register(c)
	h.engineUp()

	require.NoError(t, h.exec(StartTracking{Client: c.id, Session: 1, Request: timeRequest(250 * time.Millisecond)}).Err)
	h.exec(StopTracking{Client: c.id, Session: 2})
	h.post(sbi.PositionReport{Location: fixAt(0, 0)})

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Commands.WithLabelValues("start_tracking", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Commands.WithLabelValues("stop_tracking", "unknown_session")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ActiveSessions))
	assert.Equal(t, 0.25, testutil.ToFloat64(collector.EngineInterval))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.EngineUp))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Reports.WithLabelValues("position")))
}

func TestSnapshotReflectsState(t *testing.T) {
	h := newHarness(t)
	c := newFullClient("maps")
	h.register(c)
	h.engineUp()
	require.NoError(t, h.exec(StartTracking{Client: c.id, Session: 5, Request: distanceRequest(time.Second, 25)}).Err)

	st := h.snapshot()
	assert.True(t, st.EngineUp)
	assert.Equal(t, []model.ClientID{"maps"}, st.Clients)
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, model.SessionKey{Client: "maps", ID: 5}, st.Sessions[0].Key)
	assert.Equal(t, model.TechAny, st.Sessions[0].Request.Capabilities)
	assert.True(t, st.EngineSession.Active)
	assert.Equal(t, NiIdle, st.NiGeneral.State)
	assert.True(t, svConfigEqual(model.DefaultSvConfig(), st.SvAcked))
}

func TestEngineRestartWithoutDownFailsPendingWork(t *testing.T) {
	h := newHarness(t)
	c := newFullClient("diag")
	h.register(c)
	h.engineUp()

	batch := h.submit(UpdateConfig{Client: c.id, Items: []model.ConfigItem{model.MinGpsWeekConfig{Week: 2300}}})
	caps := h.submit(GetCapabilities{Client: c.id})
	aiding := h.submit(DeleteAidingData{Client: c.id, Data: model.AidingTime})
	h.post(sbi.NiRequested{Request: model.NiRequest{ID: 4}})
	require.Equal(t, NiAwaitingResponse, h.snapshot().NiGeneral.State)

	h.post(sbi.EngineUp{})

	for _, handle := range []*Handle{batch, caps, aiding} {
		res, err := handle.Wait(h.ctx())
		require.NoError(t, err, "%T still pending after engine restart", handle.Command)
		assert.ErrorIs(t, res.Err, ErrEngineUnavailable, handle.Command)
	}
	st := h.snapshot()
	assert.True(t, st.EngineUp)
	assert.Equal(t, NiIdle, st.NiGeneral.State)
}
