package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/gnss-adapter/internal/observability"
	"github.com/signalsfoundry/gnss-adapter/model"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Adapter.NiTimeout != 20*time.Second || cfg.Adapter.OdcpiTimeout != 10*time.Second {
		t.Fatalf("unexpected adapter defaults: %+v", cfg.Adapter)
	}
	if cfg.Adapter.NiDefault() != model.NiResponseNoResponse {
		t.Fatalf("NiDefault = %v, want no_response", cfg.Adapter.NiDefault())
	}
	if cfg.Engine.Mode != "sim" || cfg.Engine.Tick != 100*time.Millisecond {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adapter.yaml")
	body := `
listen:
  grpc: "127.0.0.1:7000"
adapter:
  ni_timeout: 5s
  ni_default_response: deny
engine:
  receiver:
    lat_deg: 47.6
    lon_deg: -122.3
store:
  path: /var/lib/gnss/adapter.db
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.GRPC != "127.0.0.1:7000" {
		t.Fatalf("listen.grpc = %q", cfg.Listen.GRPC)
	}
	if cfg.Listen.Metrics != ":9091" {
		t.Fatalf("listen.metrics default not applied: %q", cfg.Listen.Metrics)
	}
	if cfg.Adapter.NiTimeout != 5*time.Second {
		t.Fatalf("ni_timeout = %v, want 5s", cfg.Adapter.NiTimeout)
	}
	if cfg.Adapter.NiEmergencyTimeout != 20*time.Second {
		t.Fatalf("ni_emergency_timeout default not applied: %v", cfg.Adapter.NiEmergencyTimeout)
	}
	if cfg.Adapter.NiDefault() != model.NiResponseDeny {
		t.Fatalf("NiDefault = %v, want deny", cfg.Adapter.NiDefault())
	}
	if cfg.Engine.Receiver.LatDeg != 47.6 || cfg.Store.Path != "/var/lib/gnss/adapter.db" {
		t.Fatalf("unexpected engine/store config: %+v %+v", cfg.Engine, cfg.Store)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad ni response": "adapter:\n  ni_default_response: maybe\n",
		"bad mode":        "engine:\n  mode: hardware\n",
		"bad latitude":    "engine:\n  receiver:\n    lat_deg: 91\n",
		"bad elevation":   "engine:\n  min_elevation_deg: 90\n",
		"bad exporter":    "tracing:\n  exporter: zipkin\n",
		"bad ratio":       "tracing:\n  sample_ratio: 1.5\n",
		"not yaml":        "listen: [\n",
	}
	for name, body := range cases {
		if _, err := Parse([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseTracingSection(t *testing.T) {
	body := `
tracing:
  enabled: true
  exporter: OTLP
  attributes:
    deployment.environment: lab
`
	cfg, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tr := cfg.Tracing
	if !tr.Enabled || tr.Exporter != observability.ExporterOTLP {
		t.Fatalf("unexpected tracing config: %+v", tr)
	}
	if tr.Endpoint != "localhost:4317" {
		t.Fatalf("otlp endpoint default not applied: %q", tr.Endpoint)
	}
	if tr.SampleRatio != 1 || tr.ServiceName != "gnss-adapter" {
		t.Fatalf("tracing defaults lost: %+v", tr)
	}
	if tr.Attributes["deployment.environment"] != "lab" {
		t.Fatalf("attributes = %v", tr.Attributes)
	}

	if d := Default().Tracing; d.Enabled || d.SampleRatio != 1 {
		t.Fatalf("unexpected default tracing: %+v", d)
	}
}
