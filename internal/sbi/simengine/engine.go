// Package simengine is a positioning engine simulator. It propagates the
// vehicles of a kb.Catalog with SGP4, derives the sky seen from a moving
// receiver and reports fixes, satellites, measurements and NMEA through the
// south-bound event sink, answering adapter commands the way a real engine
// would.
package simengine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/gnss-adapter/core"
	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/kb"
	"github.com/signalsfoundry/gnss-adapter/model"
	"github.com/signalsfoundry/gnss-adapter/timectrl"
)

// activeDrawPerSecond is the energy used per second of tracking, in units
// of 0.1 micro watt-hour (about 25 mW).
const activeDrawPerSecond = 69

// Config describes the simulated receiver.
type Config struct {
	// Receiver is the starting position; only latitude, longitude and
	// altitude are used.
	Receiver        model.Location
	SpeedMps        float64
	BearingDeg      float64
	MinElevationDeg float64
	// MinSvsForFix is the number of usable vehicles needed for a fix.
	MinSvsForFix int
	Capabilities model.Capabilities
	// ColdStartOdcpi makes the engine ask for a coarse position when a
	// session starts before any position was injected.
	ColdStartOdcpi bool
}

// DefaultCapabilities is every capability the simulator implements.
func DefaultCapabilities() model.Capabilities {
	return model.CapabilityTimeBasedTracking |
		model.CapabilityDistanceBasedTracking |
		model.CapabilityMeasurements |
		model.CapabilityConstellationEnablement |
		model.CapabilitySvBlacklist |
		model.CapabilityOdcpi |
		model.CapabilityEnergyReporting
}

func (c *Config) applyDefaults() {
	if c.MinSvsForFix <= 0 {
		c.MinSvsForFix = 4
	}
	if c.Capabilities == 0 {
		c.Capabilities = DefaultCapabilities()
	}
}

type svSettings struct {
	blacklist model.Blacklist
	enabled   model.ConstellationMask
	secondary model.ConstellationMask
	minElev   float64
	leverArm  model.LeverArmConfig
	robust    model.RobustLocationConfig
	minWeek   uint16
}

// Engine is the simulated engine. It implements sbi.Engine.
type Engine struct {
	cfg     Config
	catalog *kb.Catalog
	clock   timectrl.Clock
	sink    sbi.EventSink
	log     logging.Logger

	mu       sync.Mutex
	tracks   map[string]*core.SatelliteTrack
	badTLE   map[string]bool
	unsub    func()
	running  bool
	session  model.EngineSession
	nextFix  time.Time
	lastTick time.Time
	pos      model.Location
	seeded   bool
	sv       svSettings
	power    model.PowerState
	network  model.NetworkState
	energy   uint64
}

// New builds a stopped engine. Call Start to bring it up.
func New(cfg Config, catalog *kb.Catalog, clock timectrl.Clock, sink sbi.EventSink, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	cfg.applyDefaults()
	e := &Engine{
		cfg:     cfg,
		catalog: catalog,
		clock:   clock,
		sink:    sink,
		log:     log.With(logging.String("component", "simengine")),
		tracks:  make(map[string]*core.SatelliteTrack),
		badTLE:  make(map[string]bool),
	}
	e.resetLocked()
	return e
}

// resetLocked clears everything a real engine loses across a restart.
func (e *Engine) resetLocked() {
	e.session = model.EngineSession{}
	e.nextFix = time.Time{}
	e.pos = e.cfg.Receiver
	e.seeded = false
	e.sv = svSettings{
		blacklist: model.Blacklist{},
		enabled:   model.AllConstellations(),
		secondary: model.AllConstellations(),
		minElev:   e.cfg.MinElevationDeg,
	}
	e.power = model.PowerStateUnknown
}

// Start brings the engine up and announces it with EngineUp.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.lastTick = e.clock.Now()
	if e.unsub == nil {
		e.unsub = e.catalog.Subscribe(e.onCatalogEvent)
	}
	e.mu.Unlock()

	e.log.Info(context.Background(), "engine up", logging.Int("vehicles", e.catalog.Len()))
	e.sink.Post(sbi.EngineUp{})
}

// Restart simulates an engine crash: EngineDown, state loss, EngineUp.
func (e *Engine) Restart(reason string) {
	e.mu.Lock()
	e.running = false
	e.resetLocked()
	e.mu.Unlock()

	e.log.Warn(context.Background(), "engine restarting", logging.String("reason", reason))
	e.sink.Post(sbi.EngineDown{Reason: reason})
	e.Start()
}

// Close stops the engine and announces EngineDown.
func (e *Engine) Close() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	unsub := e.unsub
	e.unsub = nil
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	e.sink.Post(sbi.EngineDown{Reason: "closed"})
}

func (e *Engine) onCatalogEvent(ev kb.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := ev.Vehicle.Key()
	delete(e.tracks, key)
	delete(e.badTLE, key)
}

// Session returns the session the engine is currently running.
func (e *Engine) Session() model.EngineSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Send implements sbi.Engine. Acknowledgements are posted to the sink after
// the engine lock is released.
func (e *Engine) Send(ctx context.Context, cmd sbi.Command) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return sbi.ErrEngineClosed
	}
	out, err := e.applyLocked(cmd)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.log.Debug(ctx, "engine command", logging.String("command", cmd.Name()))
	for _, ev := range out {
		e.sink.Post(ev)
	}
	return nil
}

func (e *Engine) applyLocked(cmd sbi.Command) ([]sbi.Event, error) {
	now := e.clock.Now()
	switch c := cmd.(type) {
	case sbi.StartSession:
		e.session = c.Session
		e.nextFix = now
		if e.cfg.ColdStartOdcpi && !e.seeded {
			return []sbi.Event{sbi.OdcpiRequested{Request: model.OdcpiRequest{Interval: time.Second}}}, nil
		}
	case sbi.UpdateSession:
		if e.session.Active && c.Session.Interval < e.session.Interval {
			e.nextFix = now
		}
		e.session = c.Session
	case sbi.StopSession:
		e.session = model.EngineSession{}
	case sbi.SetConfig:
		return []sbi.Event{sbi.ConfigAck{
			Correlation: c.Correlation,
			Field:       c.Item.Field(),
			Err:         e.applyConfigLocked(c.Item),
		}}, nil
	case sbi.RespondNi:
		e.log.Info(context.Background(), "ni response",
			logging.Int("id", int(c.ID)), logging.String("response", c.Response.String()))
	case sbi.InjectLocation:
		if c.Location.Valid() {
			e.pos.Latitude = c.Location.Latitude
			e.pos.Longitude = c.Location.Longitude
			e.seeded = true
		}
	case sbi.InjectTime:
	case sbi.DeleteAidingData:
		if c.Data&model.AidingPosition != 0 {
			e.seeded = false
		}
		return []sbi.Event{sbi.CommandAck{Correlation: c.Correlation, Err: model.LocationSuccess}}, nil
	case sbi.SetPowerState:
		e.power = c.State
	case sbi.SetNetworkState:
		e.network = c.State
	case sbi.RequestEnergy:
		return []sbi.Event{sbi.EnergyReport{
			Correlation: c.Correlation,
			Report:      model.EnergyReport{Consumed: e.energy, Timestamp: now},
		}}, nil
	case sbi.RequestCapabilities:
		return []sbi.Event{sbi.CapabilitiesReport{Correlation: c.Correlation, Capabilities: e.cfg.Capabilities}}, nil
	case sbi.ReportAgpsConn:
		e.log.Info(context.Background(), "agps connection status",
			logging.Int("id", int(c.ID)), logging.Int("status", int(c.Status)))
	default:
		return nil, fmt.Errorf("simengine: unsupported command %s", cmd.Name())
	}
	return nil, nil
}

func (e *Engine) applyConfigLocked(item model.ConfigItem) model.LocationError {
	switch it := item.(type) {
	case model.BlacklistConfig:
		if !e.cfg.Capabilities.Has(model.CapabilitySvBlacklist) {
			return model.LocationNotSupported
		}
		e.sv.blacklist = it.Blacklist.Clone()
	case model.ConstellationConfig:
		if !e.cfg.Capabilities.Has(model.CapabilityConstellationEnablement) {
			return model.LocationNotSupported
		}
		if !it.Enabled.Has(model.ConstellationGPS) {
			return model.LocationInvalidParameter
		}
		e.sv.enabled = it.Enabled
	case model.SecondaryBandConfig:
		e.sv.secondary = it.Mask
	case model.MinSvElevationConfig:
		if it.Degrees >= 90 {
			return model.LocationInvalidParameter
		}
		e.sv.minElev = float64(it.Degrees)
	case model.LeverArmConfig:
		e.sv.leverArm = it
	case model.RobustLocationConfig:
		if !e.cfg.Capabilities.Has(model.CapabilityRobustLocation) {
			return model.LocationNotSupported
		}
		e.sv.robust = it
	case model.MinGpsWeekConfig:
		e.sv.minWeek = it.Week
	default:
		return model.LocationNotSupported
	}
	return model.LocationSuccess
}

// RaiseNi injects a network-initiated request as if it came from the modem.
func (e *Engine) RaiseNi(req model.NiRequest) {
	e.sink.Post(sbi.NiRequested{Request: req})
}

// RequestOdcpi asks the adapter for a coarse position.
func (e *Engine) RequestOdcpi(req model.OdcpiRequest) {
	e.sink.Post(sbi.OdcpiRequested{Request: req})
}

// RequestAgpsConn asks the client layer for a data connection.
func (e *Engine) RequestAgpsConn(req model.AgpsConnRequest) {
	e.sink.Post(sbi.AgpsConnRequested{Request: req})
}

// Tick advances the simulation to now. It is meant to be registered as a
// TimeController listener.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	dt := now.Sub(e.lastTick)
	if dt < 0 {
		dt = 0
	}
	e.lastTick = now

	if e.cfg.SpeedMps > 0 && dt > 0 {
		e.pos.Latitude, e.pos.Longitude = core.Destination(
			e.pos.Latitude, e.pos.Longitude, e.cfg.BearingDeg, e.cfg.SpeedMps*dt.Seconds())
	}

	paused := e.power == model.PowerStateSuspend || e.power == model.PowerStateShutdown
	if e.session.Active && !paused {
		e.energy += uint64(dt.Seconds() * activeDrawPerSecond)
	}
	if !e.session.Active || paused || now.Before(e.nextFix) {
		e.mu.Unlock()
		return
	}
	e.nextFix = now.Add(e.session.Interval)
	out := e.epochLocked(now)
	e.mu.Unlock()

	for _, ev := range out {
		e.sink.Post(ev)
	}
}

func (e *Engine) epochLocked(now time.Time) []sbi.Event {
	var (
		svs          []model.SvInfo
		measurements []model.Measurement
		used         int
	)
	for _, v := range e.catalog.List() {
		track := e.trackLocked(v)
		if track == nil {
			continue
		}
		la := track.LookAngles(now, e.pos.Latitude, e.pos.Longitude, e.pos.Altitude)
		if la.ElevationDeg < e.sv.minElev {
			continue
		}
		usable := e.sv.enabled.Has(v.Constellation) && !e.sv.blacklist.Contains(v.Constellation, v.Svid)
		cn0 := 25 + 20*math.Sin(la.ElevationDeg*math.Pi/180)
		svs = append(svs, model.SvInfo{
			Constellation: v.Constellation,
			Svid:          v.Svid,
			CN0DbHz:       cn0,
			ElevationDeg:  la.ElevationDeg,
			AzimuthDeg:    la.AzimuthDeg,
			UsedInFix:     usable,
		})
		if !usable {
			continue
		}
		used++
		if e.cfg.Capabilities.Has(model.CapabilityMeasurements) {
			next := track.LookAngles(now.Add(time.Second), e.pos.Latitude, e.pos.Longitude, e.pos.Altitude)
			measurements = append(measurements, model.Measurement{
				Constellation:   v.Constellation,
				Svid:            v.Svid,
				PseudorangeRate: (next.RangeKm - la.RangeKm) * 1000,
				CN0DbHz:         cn0,
			})
		}
	}

	out := []sbi.Event{sbi.SvReport{Report: model.SvReport{Timestamp: now, Svs: svs}}}
	if len(measurements) > 0 {
		out = append(out, sbi.MeasurementReport{Report: model.MeasurementReport{Timestamp: now, Measurements: measurements}})
	}
	if used < e.cfg.MinSvsForFix {
		return out
	}

	hdop := 4.0 / math.Sqrt(float64(used))
	loc := model.Location{
		Latitude:           e.pos.Latitude,
		Longitude:          e.pos.Longitude,
		Altitude:           e.pos.Altitude,
		Speed:              e.cfg.SpeedMps,
		Bearing:            e.cfg.BearingDeg,
		HorizontalAccuracy: 3 * hdop,
		VerticalAccuracy:   5 * hdop,
		Timestamp:          now,
		Tech:               model.TechGNSS,
	}
	out = append(out,
		sbi.NmeaReport{Report: model.NmeaReport{Timestamp: now, Sentence: FormatGGA(loc, used, hdop)}},
		sbi.NmeaReport{Report: model.NmeaReport{Timestamp: now, Sentence: FormatRMC(loc)}},
		sbi.PositionReport{Location: loc},
	)
	return out
}

func (e *Engine) trackLocked(v kb.SpaceVehicle) *core.SatelliteTrack {
	key := v.Key()
	if t, ok := e.tracks[key]; ok {
		return t
	}
	if e.badTLE[key] {
		return nil
	}
	t, err := core.NewSatelliteTrack(v.TLE1, v.TLE2)
	if err != nil {
		e.badTLE[key] = true
		e.log.Warn(context.Background(), "skipping vehicle with bad elements",
			logging.String("vehicle", key), logging.Err(err))
		return nil
	}
	e.tracks[key] = t
	return t
}
