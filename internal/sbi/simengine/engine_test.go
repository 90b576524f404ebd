package simengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/kb"
	"github.com/signalsfoundry/gnss-adapter/model"
	"github.com/signalsfoundry/gnss-adapter/timectrl"
)

var epoch = time.Date(2021, time.October, 2, 12, 0, 0, 0, time.UTC)

type eventLog struct {
	mu     sync.Mutex
	events []sbi.Event
}

func (l *eventLog) Post(ev sbi.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) take() []sbi.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.events
	l.events = nil
	return out
}

func eventsOf[T sbi.Event](events []sbi.Event) []T {
	var out []T
	for _, ev := range events {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	eng   *Engine
	clock *timectrl.TimeController
	log   *eventLog
}

// newHarness counts every vehicle as visible so fixes never depend on
// the geometry of the synthetic constellation.
func newHarness(t *testing.T, tick time.Duration, mutate func(*Config)) *harness {
	t.Helper()
	cfg := Config{
		Receiver:        model.Location{Latitude: 47.6205, Longitude: -122.3493, Altitude: 56},
		MinElevationDeg: -90,
		MinSvsForFix:    1,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	clock := timectrl.NewTimeController(epoch, tick, timectrl.Accelerated)
	log := &eventLog{}
	eng := New(cfg, kb.Builtin(), clock, log, nil)
	clock.AddListener(eng.Tick)
	eng.Start()
	require.IsType(t, sbi.EngineUp{}, log.take()[0])
	return &harness{eng: eng, clock: clock, log: log}
}

func (h *harness) send(t *testing.T, cmd sbi.Command) []sbi.Event {
	t.Helper()
	require.NoError(t, h.eng.Send(context.Background(), cmd))
	return h.log.take()
}

func TestCapabilitiesAreCorrelated(t *testing.T) {
	h := newHarness(t, time.Second, nil)

	events := h.send(t, sbi.RequestCapabilities{Correlation: 42})
	require.Len(t, events, 1)
	report := events[0].(sbi.CapabilitiesReport)
	assert.Equal(t, sbi.Correlation(42), report.Correlation)
	assert.True(t, report.Capabilities.Has(model.CapabilityMeasurements))
}

func TestSessionProducesEpochsAtInterval(t *testing.T) {
	h := newHarness(t, 500*time.Millisecond, nil)

	h.send(t, sbi.StartSession{Session: model.EngineSession{Active: true, Interval: time.Second, Capabilities: model.TechAny}})

	h.clock.Step()
	events := h.log.take()
	svs := eventsOf[sbi.SvReport](events)
	require.Len(t, svs, 1)
	assert.Len(t, svs[0].Report.Svs, 12)
	assert.Len(t, eventsOf[sbi.MeasurementReport](events), 1)
	assert.Len(t, eventsOf[sbi.NmeaReport](events), 2)
	fixes := eventsOf[sbi.PositionReport](events)
	require.Len(t, fixes, 1)
	assert.Equal(t, model.TechGNSS, fixes[0].Location.Tech)
	assert.InDelta(t, 47.6205, fixes[0].Location.Latitude, 1e-9)

	h.clock.Step()
	assert.Empty(t, h.log.take(), "no epoch before the interval elapsed")

	h.clock.Step()
	assert.Len(t, eventsOf[sbi.PositionReport](h.log.take()), 1)

	h.send(t, sbi.StopSession{})
	h.clock.Step()
	h.clock.Step()
	assert.Empty(t, h.log.take())
}

func TestBlacklistAndConstellationConfig(t *testing.T) {
	h := newHarness(t, time.Second, nil)

	bl := model.Blacklist{}
	bl.Add(model.ConstellationGPS, 1)
	acks := h.send(t, sbi.SetConfig{Correlation: 7, Item: model.BlacklistConfig{Blacklist: bl}})
	require.Equal(t, []sbi.Event{sbi.ConfigAck{Correlation: 7, Field: model.FieldBlacklist, Err: model.LocationSuccess}}, acks)

	acks = h.send(t, sbi.SetConfig{Correlation: 8, Item: model.ConstellationConfig{Enabled: model.MaskOf(model.ConstellationGalileo)}})
	require.Equal(t, model.LocationInvalidParameter, acks[0].(sbi.ConfigAck).Err)

	acks = h.send(t, sbi.SetConfig{Correlation: 9, Item: model.RobustLocationConfig{Enabled: true}})
	require.Equal(t, model.LocationNotSupported, acks[0].(sbi.ConfigAck).Err)

	h.send(t, sbi.StartSession{Session: model.EngineSession{Active: true, Interval: time.Second}})
	h.clock.Step()
	svs := eventsOf[sbi.SvReport](h.log.take())
	require.Len(t, svs, 1)
	for _, sv := range svs[0].Report.Svs {
		blacklisted := sv.Constellation == model.ConstellationGPS && sv.Svid == 1
		assert.Equal(t, !blacklisted, sv.UsedInFix, "sv %s-%d", sv.Constellation, sv.Svid)
	}
}

func TestEnergyAccumulatesWhileTracking(t *testing.T) {
	h := newHarness(t, time.Second, nil)

	h.send(t, sbi.StartSession{Session: model.EngineSession{Active: true, Interval: time.Hour}})
	for i := 0; i < 10; i++ {
		h.clock.Step()
	}
	h.log.take()

	events := h.send(t, sbi.RequestEnergy{Correlation: 3})
	require.Len(t, events, 1)
	report := events[0].(sbi.EnergyReport)
	assert.Equal(t, sbi.Correlation(3), report.Correlation)
	assert.Equal(t, uint64(10*activeDrawPerSecond), report.Report.Consumed)
}

func TestSuspendPausesFixes(t *testing.T) {
	h := newHarness(t, time.Second, nil)

	h.send(t, sbi.StartSession{Session: model.EngineSession{Active: true, Interval: time.Second}})
	h.send(t, sbi.SetPowerState{State: model.PowerStateSuspend})
	h.clock.Step()
	assert.Empty(t, h.log.take())

	h.send(t, sbi.SetPowerState{State: model.PowerStateResume})
	h.clock.Step()
	assert.NotEmpty(t, eventsOf[sbi.PositionReport](h.log.take()))
}

func TestColdStartRequestsOdcpi(t *testing.T) {
	h := newHarness(t, time.Second, func(c *Config) { c.ColdStartOdcpi = true })

	events := h.send(t, sbi.StartSession{Session: model.EngineSession{Active: true, Interval: time.Second}})
	require.Len(t, eventsOf[sbi.OdcpiRequested](events), 1)

	h.send(t, sbi.StopSession{})
	h.send(t, sbi.InjectLocation{Location: model.Location{Latitude: 1, Longitude: 2}})
	events = h.send(t, sbi.StartSession{Session: model.EngineSession{Active: true, Interval: time.Second}})
	assert.Empty(t, eventsOf[sbi.OdcpiRequested](events))
}

func TestRestartLosesState(t *testing.T) {
	h := newHarness(t, time.Second, nil)

	h.send(t, sbi.StartSession{Session: model.EngineSession{Active: true, Interval: time.Second}})
	h.eng.Restart("watchdog")
	events := h.log.take()
	require.Len(t, events, 2)
	assert.Equal(t, sbi.EngineDown{Reason: "watchdog"}, events[0])
	assert.Equal(t, sbi.EngineUp{}, events[1])
	assert.False(t, h.eng.Session().Active)
}

func TestSendAfterCloseFails(t *testing.T) {
	h := newHarness(t, time.Second, nil)

	h.eng.Close()
	assert.Equal(t, []sbi.Event{sbi.EngineDown{Reason: "closed"}}, h.log.take())
	assert.ErrorIs(t, h.eng.Send(context.Background(), sbi.StopSession{}), sbi.ErrEngineClosed)
}

func TestCatalogChangesAreVisible(t *testing.T) {
	h := newHarness(t, time.Second, nil)

	h.send(t, sbi.StartSession{Session: model.EngineSession{Active: true, Interval: time.Second}})
	gps1, ok := h.eng.catalog.Get(model.ConstellationGPS, 1)
	require.True(t, ok)
	gps1.Svid = 32
	require.NoError(t, h.eng.catalog.Add(gps1))

	h.clock.Step()
	svs := eventsOf[sbi.SvReport](h.log.take())
	require.Len(t, svs, 1)
	assert.Len(t, svs[0].Report.Svs, 13)
}

func TestNmeaGolden(t *testing.T) {
	loc := model.Location{
		Latitude:  47.6205,
		Longitude: -122.3493,
		Altitude:  56.2,
		Speed:     12.5,
		Bearing:   271.3,
		Timestamp: time.Date(2021, time.October, 2, 12, 30, 15, 500_000_000, time.UTC),
	}
	out := FormatGGA(loc, 7, 1.2) + "\n" + FormatRMC(loc) + "\n"

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "nmea_fix", []byte(out))
}
