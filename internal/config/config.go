package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/gnss-adapter/internal/observability"
	"github.com/signalsfoundry/gnss-adapter/model"
)

type Config struct {
	Listen  ListenConfig                `yaml:"listen"`
	Log     LogConfig                   `yaml:"log"`
	Adapter AdapterConfig               `yaml:"adapter"`
	Engine  EngineConfig                `yaml:"engine"`
	Store   StoreConfig                 `yaml:"store"`
	Web     WebConfig                   `yaml:"web"`
	Tracing observability.TracingConfig `yaml:"tracing"`
}

type ListenConfig struct {
	GRPC    string `yaml:"grpc"`
	Metrics string `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AdapterConfig struct {
	NiTimeout          time.Duration `yaml:"ni_timeout"`
	NiEmergencyTimeout time.Duration `yaml:"ni_emergency_timeout"`
	NiDefaultResponse  string        `yaml:"ni_default_response"`
	OdcpiTimeout       time.Duration `yaml:"odcpi_timeout"`
}

type EngineConfig struct {
	// Mode is "sim" for the SGP4-driven simulated engine or "none" to run
	// without an engine attached.
	Mode            string         `yaml:"mode"`
	Tick            time.Duration  `yaml:"tick"`
	Catalog         string         `yaml:"catalog"`
	MinElevationDeg float64        `yaml:"min_elevation_deg"`
	Receiver        ReceiverConfig `yaml:"receiver"`
}

type ReceiverConfig struct {
	LatDeg     float64 `yaml:"lat_deg"`
	LonDeg     float64 `yaml:"lon_deg"`
	AltM       float64 `yaml:"alt_m"`
	SpeedMps   float64 `yaml:"speed_mps"`
	BearingDeg float64 `yaml:"bearing_deg"`
}

type StoreConfig struct {
	// Path of the SQLite database; empty disables persistence.
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{Tracing: observability.DefaultTracingConfig()}
	applyDefaults(&cfg)
	return cfg
}

// Load reads path and applies defaults. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes a YAML document, applies defaults and validates it.
func Parse(b []byte) (Config, error) {
	cfg := Config{Tracing: observability.DefaultTracingConfig()}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.GRPC == "" {
		cfg.Listen.GRPC = ":50061"
	}
	if cfg.Listen.Metrics == "" {
		cfg.Listen.Metrics = ":9091"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.Adapter.NiTimeout <= 0 {
		cfg.Adapter.NiTimeout = 20 * time.Second
	}
	if cfg.Adapter.NiEmergencyTimeout <= 0 {
		cfg.Adapter.NiEmergencyTimeout = 20 * time.Second
	}
	if cfg.Adapter.NiDefaultResponse == "" {
		cfg.Adapter.NiDefaultResponse = model.NiResponseNoResponse.String()
	}
	if cfg.Adapter.OdcpiTimeout <= 0 {
		cfg.Adapter.OdcpiTimeout = 10 * time.Second
	}

	if cfg.Engine.Mode == "" {
		cfg.Engine.Mode = "sim"
	}
	if cfg.Engine.Tick <= 0 {
		cfg.Engine.Tick = 100 * time.Millisecond
	}
	if cfg.Engine.MinElevationDeg == 0 {
		cfg.Engine.MinElevationDeg = 5
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8088"
	}

	cfg.Tracing.ApplyDefaults()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, ok := model.ParseNiResponse(c.Adapter.NiDefaultResponse); !ok {
		return fmt.Errorf("adapter.ni_default_response %q is not one of accept, deny, no_response", c.Adapter.NiDefaultResponse)
	}
	switch c.Engine.Mode {
	case "sim", "none":
	default:
		return fmt.Errorf("engine.mode %q must be sim or none", c.Engine.Mode)
	}
	r := c.Engine.Receiver
	if r.LatDeg < -90 || r.LatDeg > 90 {
		return fmt.Errorf("engine.receiver.lat_deg %v out of range", r.LatDeg)
	}
	if r.LonDeg < -180 || r.LonDeg > 180 {
		return fmt.Errorf("engine.receiver.lon_deg %v out of range", r.LonDeg)
	}
	if r.SpeedMps < 0 {
		return fmt.Errorf("engine.receiver.speed_mps must be >= 0")
	}
	if c.Engine.MinElevationDeg < 0 || c.Engine.MinElevationDeg >= 90 {
		return fmt.Errorf("engine.min_elevation_deg %v out of range", c.Engine.MinElevationDeg)
	}
	return c.Tracing.Validate()
}

// NiDefault returns the parsed NI default response.
func (c AdapterConfig) NiDefault() model.NiResponse {
	r, ok := model.ParseNiResponse(c.NiDefaultResponse)
	if !ok {
		return model.NiResponseNoResponse
	}
	return r
}
