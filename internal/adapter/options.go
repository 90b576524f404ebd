package adapter

import (
	"time"

	"github.com/signalsfoundry/gnss-adapter/model"
)

const (
	// DefaultNiTimeout is how long an NI prompt waits for the user.
	DefaultNiTimeout = 20 * time.Second
	// DefaultOdcpiTimeout is how long an ODCPI request stays active without
	// a new request from the engine.
	DefaultOdcpiTimeout = 10 * time.Second
)

// SvConfigStore persists the acknowledged satellite configuration. Save is
// called on the executor goroutine and must not block on I/O.
type SvConfigStore interface {
	SaveSvConfig(cfg model.SvConfig)
}

type settings struct {
	niTimeout          time.Duration
	niEmergencyTimeout time.Duration
	niDefault          model.NiResponse
	odcpiTimeout       time.Duration
	svStore            SvConfigStore
	initialSv          *model.SvConfig
}

func defaultSettings() settings {
	return settings{
		niTimeout:          DefaultNiTimeout,
		niEmergencyTimeout: DefaultNiTimeout,
		niDefault:          model.NiResponseNoResponse,
		odcpiTimeout:       DefaultOdcpiTimeout,
	}
}

// Option customises Adapter construction.
type Option func(*Adapter)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(a *Adapter) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithRequestIDGenerator replaces the UUIDv7 request id generator.
func WithRequestIDGenerator(g RequestIDGenerator) Option {
	return func(a *Adapter) {
		if g != nil {
			a.ids = g
		}
	}
}

// WithNiTimeouts sets the response deadlines of general and emergency NI
// prompts. Non-positive values keep the default.
func WithNiTimeouts(general, emergency time.Duration) Option {
	return func(a *Adapter) {
		if general > 0 {
			a.cfg.niTimeout = general
		}
		if emergency > 0 {
			a.cfg.niEmergencyTimeout = emergency
		}
	}
}

// WithNiDefaultResponse sets the answer sent when a prompt times out or no
// client can answer it.
func WithNiDefaultResponse(r model.NiResponse) Option {
	return func(a *Adapter) {
		if r != 0 {
			a.cfg.niDefault = r
		}
	}
}

// WithOdcpiTimeout sets how long an ODCPI request stays active.
func WithOdcpiTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.cfg.odcpiTimeout = d
		}
	}
}

// WithSvConfigStore persists acknowledged SV configuration to store. When
// initial is non-nil it is treated as the last acknowledged configuration
// and re-applied once the engine comes up.
func WithSvConfigStore(store SvConfigStore, initial *model.SvConfig) Option {
	return func(a *Adapter) {
		a.cfg.svStore = store
		if initial != nil {
			cfg := cloneSvConfig(*initial)
			a.cfg.initialSv = &cfg
		}
	}
}
