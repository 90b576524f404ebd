package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/gnss-adapter/core"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/model"
)

func fixAt(lat, lon float64) model.Location {
	return model.Location{Latitude: lat, Longitude: lon, Tech: model.TechGNSS, Timestamp: testEpoch}
}

func north(from model.Location, meters float64) model.Location {
	lat, lon := core.Destination(from.Latitude, from.Longitude, 0, meters)
	return fixAt(lat, lon)
}

func TestDistanceSessionFiltersShortMoves(t *testing.T) {
	h := newHarness(t)
	c := &positionClient{id: "runner"}
	h.register(c)
	h.engineUp()
	require.NoError(t, h.exec(StartTracking{Client: c.id, Session: 1, Request: distanceRequest(time.Second, 50)}).Err)

	origin := fixAt(47.6205, -122.3493)
	h.post(sbi.PositionReport{Location: origin})
	require.Len(t, c.positions, 1)

	h.post(sbi.PositionReport{Location: north(origin, 10)})
	assert.Len(t, c.positions, 1, "10 m move is below the threshold")

	// 60 m from the last delivered fix, 50 m from the skipped one.
	far := north(origin, 60)
	h.post(sbi.PositionReport{Location: far})
	require.Len(t, c.positions, 2)
	assert.Equal(t, far, c.positions[1].loc)
}

func TestTimeSessionReceivesEveryMatchingFix(t *testing.T) {
	h := newHarness(t)
	c := &positionClient{id: "maps"}
	h.register(c)
	h.engineUp()
	require.NoError(t, h.exec(StartTracking{Client: c.id, Session: 1, Request: timeRequest(time.Second)}).Err)

	origin := fixAt(10, 10)
	h.post(sbi.PositionReport{Location: origin})
	h.post(sbi.PositionReport{Location: origin})
	assert.Len(t, c.positions, 2)
}

func TestPositionRoutingHonoursTechMask(t *testing.T) {
	h := newHarness(t)
	c := &positionClient{id: "indoor"}
	h.register(c)
	h.engineUp()

	wifiOnly := timeRequest(time.Second)
	wifiOnly.Capabilities = model.TechWiFi
	require.NoError(t, h.exec(StartTracking{Client: c.id, Session: 1, Request: wifiOnly}).Err)

	h.post(sbi.PositionReport{Location: fixAt(1, 1)})
	assert.Empty(t, c.positions)

	fused := fixAt(1, 1)
	fused.Tech = model.TechWiFi | model.TechSensors
	h.post(sbi.PositionReport{Location: fused})
	assert.Len(t, c.positions, 1)

	untagged := fixAt(1, 1)
	untagged.Tech = 0
	h.post(sbi.PositionReport{Location: untagged})
	assert.Len(t, c.positions, 2)
}

func TestPositionDeliveryOrderIsDeterministic(t *testing.T) {
	h := newHarness(t)
	a, b := newFullClient("alpha"), newFullClient("bravo")
	h.register(b)
	h.register(a)
	h.engineUp()

	require.NoError(t, h.exec(StartTracking{Client: b.id, Session: 2, Request: timeRequest(time.Second)}).Err)
	require.NoError(t, h.exec(StartTracking{Client: a.id, Session: 7, Request: timeRequest(time.Second)}).Err)
	require.NoError(t, h.exec(StartTracking{Client: a.id, Session: 3, Request: distanceRequest(time.Second, 0)}).Err)

	h.post(sbi.PositionReport{Location: fixAt(0, 0)})
	require.Len(t, a.positions, 2)
	assert.Equal(t, model.SessionID(3), a.positions[0].key.ID)
	assert.Equal(t, model.SessionID(7), a.positions[1].key.ID)
	assert.Len(t, b.positions, 1)
}

func TestSvReportsGoToClientsWithSessions(t *testing.T) {
	h := newHarness(t)
	tracking, idle := newFullClient("tracking"), newFullClient("idle")
	h.register(tracking)
	h.register(idle)
	h.register(bareClient{id: "bare"})
	h.engineUp()
	require.NoError(t, h.exec(StartTracking{Client: tracking.id, Session: 1, Request: timeRequest(time.Second)}).Err)
	require.NoError(t, h.exec(StartTracking{Client: "bare", Session: 2, Request: timeRequest(time.Second)}).Err)

	h.post(sbi.SvReport{Report: model.SvReport{Timestamp: testEpoch, Svs: []model.SvInfo{{Constellation: model.ConstellationGPS, Svid: 4}}}})
	h.post(sbi.MeasurementReport{Report: model.MeasurementReport{Timestamp: testEpoch}})
	h.post(sbi.NmeaReport{Report: model.NmeaReport{Sentence: "$GPGGA"}})

	assert.Len(t, tracking.svs, 1)
	assert.Len(t, tracking.measurements, 1)
	assert.Len(t, tracking.nmea, 1)
	assert.Empty(t, idle.svs)
	assert.Empty(t, idle.nmea)
}

func TestReportsSuppressedWhileSuspended(t *testing.T) {
	h := newHarness(t)
	c := newFullClient("tracking")
	h.register(c)
	h.engineUp()
	require.NoError(t, h.exec(StartTracking{Client: c.id, Session: 1, Request: timeRequest(time.Second)}).Err)
	require.NoError(t, h.exec(SetPowerState{Client: c.id, State: model.PowerStateSuspend}).Err)

	h.post(sbi.SvReport{Report: model.SvReport{}})
	h.post(sbi.NmeaReport{Report: model.NmeaReport{Sentence: "$GPRMC"}})
	assert.Empty(t, c.svs)
	assert.Empty(t, c.nmea)

	require.NoError(t, h.exec(SetPowerState{Client: c.id, State: model.PowerStateResume}).Err)
	h.post(sbi.SvReport{Report: model.SvReport{}})
	assert.Len(t, c.svs, 1)
}
