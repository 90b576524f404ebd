package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/model"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	a     *Adapter
	eng   *sbi.RecordingEngine
	sched *sbi.FakeEventScheduler
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		eng:   sbi.NewRecordingEngine(),
		sched: sbi.NewFakeEventScheduler(testEpoch),
	}
	h.a = New(h.eng, h.sched, logging.Noop(), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

func (h *harness) flush() {
	h.t.Helper()
	require.NoError(h.t, h.a.Flush(h.ctx()))
}

func (h *harness) post(ev sbi.Event) {
	h.t.Helper()
	h.a.Post(ev)
	h.flush()
}

// engineUp brings the engine up and forgets the commands sent while doing so.
func (h *harness) engineUp() {
	h.t.Helper()
	h.post(sbi.EngineUp{})
	h.eng.Reset()
}

func (h *harness) exec(cmd Command) Result {
	h.t.Helper()
	res, _ := h.a.Execute(h.ctx(), cmd)
	return res
}

func (h *harness) submit(cmd Command) *Handle {
	h.t.Helper()
	handle, err := h.a.Submit(h.ctx(), cmd)
	require.NoError(h.t, err)
	return handle
}

func (h *harness) register(c Client) {
	h.t.Helper()
	require.NoError(h.t, h.exec(SetControlCallbacks{Client: c}).Err)
}

func (h *harness) snapshot() Status {
	h.t.Helper()
	st, err := h.a.Snapshot(h.ctx())
	require.NoError(h.t, err)
	return st
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.sched.Advance(d)
	h.flush()
}

// autoAckConfig acknowledges every SetConfig with code.
func (h *harness) autoAckConfig(code model.LocationError) {
	h.eng.OnSend(func(cmd sbi.Command) {
		if sc, ok := cmd.(sbi.SetConfig); ok {
			h.a.Post(sbi.ConfigAck{Correlation: sc.Correlation, Field: sc.Item.Field(), Err: code})
		}
	})
}

func timeRequest(interval time.Duration) model.TrackingRequest {
	return model.TrackingRequest{Mode: model.TrackingTimeBased, Interval: interval}
}

func distanceRequest(interval time.Duration, minDistance float64) model.TrackingRequest {
	return model.TrackingRequest{Mode: model.TrackingDistanceBased, Interval: interval, MinDistance: minDistance}
}

type positionDelivery struct {
	key model.SessionKey
	loc model.Location
}

type response struct {
	id  string
	res Result
}

// fullClient implements every handler interface and records what it got.
// Callbacks run on the executor; tests read after Flush.
type fullClient struct {
	id           model.ClientID
	positions    []positionDelivery
	svs          []model.SvReport
	measurements []model.MeasurementReport
	nmea         []model.NmeaReport
	ni           []model.NiRequest
	odcpi        []model.OdcpiRequest
	caps         []model.Capabilities
	agps         []model.AgpsConnRequest
	responses    []response
}

func newFullClient(id string) *fullClient { return &fullClient{id: model.ClientID(id)} }

func (c *fullClient) ID() model.ClientID { return c.id }
func (c *fullClient) OnPosition(key model.SessionKey, loc model.Location) {
	c.positions = append(c.positions, positionDelivery{key: key, loc: loc})
}
func (c *fullClient) OnSvReport(r model.SvReport)               { c.svs = append(c.svs, r) }
func (c *fullClient) OnMeasurements(r model.MeasurementReport)  { c.measurements = append(c.measurements, r) }
func (c *fullClient) OnNmea(r model.NmeaReport)                 { c.nmea = append(c.nmea, r) }
func (c *fullClient) OnNiRequest(r model.NiRequest)             { c.ni = append(c.ni, r) }
func (c *fullClient) OnOdcpiRequest(r model.OdcpiRequest)       { c.odcpi = append(c.odcpi, r) }
func (c *fullClient) OnCapabilities(caps model.Capabilities)    { c.caps = append(c.caps, caps) }
func (c *fullClient) OnAgpsConnRequest(r model.AgpsConnRequest) { c.agps = append(c.agps, r) }
func (c *fullClient) OnResponse(id string, res Result)          { c.responses = append(c.responses, response{id, res}) }

// bareClient implements no handler.
type bareClient struct{ id model.ClientID }

func (c bareClient) ID() model.ClientID { return c.id }

// positionClient only receives fixes.
type positionClient struct {
	id        model.ClientID
	positions []positionDelivery
}

func (c *positionClient) ID() model.ClientID { return c.id }
func (c *positionClient) OnPosition(key model.SessionKey, loc model.Location) {
	c.positions = append(c.positions, positionDelivery{key: key, loc: loc})
}
