package nbi

import (
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
	"github.com/signalsfoundry/gnss-adapter/model"
)

func TestDecodeStartTracking(t *testing.T) {
	cmd, err := DecodeCommand("app", "start_tracking", map[string]any{
		"session":        float64(7),
		"mode":           "distance",
		"interval_ms":    float64(1500),
		"min_distance_m": float64(25),
		"capabilities":   []any{"gnss", "WiFi"},
	})
	if err != nil {
		t.Fatalf("DecodeCommand error: %v", err)
	}
	st, ok := cmd.(adapter.StartTracking)
	if !ok {
		t.Fatalf("DecodeCommand = %T, want StartTracking", cmd)
	}
	if st.Client != "app" || st.Session != 7 {
		t.Fatalf("key = %s/%d, want app/7", st.Client, st.Session)
	}
	want := model.TrackingRequest{
		Mode:         model.TrackingDistanceBased,
		Interval:     1500 * time.Millisecond,
		MinDistance:  25,
		Capabilities: model.TechGNSS | model.TechWiFi,
	}
	if st.Request != want {
		t.Fatalf("request = %+v, want %+v", st.Request, want)
	}
}

func TestDecodeSetSvConfigKeepsAbsentFields(t *testing.T) {
	cmd, err := DecodeCommand("app", "set_sv_config", map[string]any{
		"enabled": []any{"gps", "galileo"},
	})
	if err != nil {
		t.Fatalf("DecodeCommand error: %v", err)
	}
	sv := cmd.(adapter.SetSvConfig)
	if sv.Blacklist != nil {
		t.Fatalf("blacklist = %v, want nil when absent", sv.Blacklist)
	}
	if sv.SecondaryBand != nil {
		t.Fatalf("secondary band = %v, want nil when absent", *sv.SecondaryBand)
	}
	want := model.MaskOf(model.ConstellationGPS) | model.MaskOf(model.ConstellationGalileo)
	if sv.Enabled == nil || *sv.Enabled != want {
		t.Fatalf("enabled = %v, want %v", sv.Enabled, want)
	}
}

func TestDecodeUpdateConfigItems(t *testing.T) {
	cmd, err := DecodeCommand("app", "update_config", map[string]any{
		"items": []any{
			map[string]any{
				"field":     "blacklist",
				"blacklist": []any{map[string]any{"constellation": "glonass", "svid": float64(3)}},
			},
			map[string]any{"field": "min_sv_elevation", "degrees": float64(15)},
			map[string]any{"field": "lever_arm", "forward_m": 1.5, "up_m": -0.25},
		},
	})
	if err != nil {
		t.Fatalf("DecodeCommand error: %v", err)
	}
	items := cmd.(adapter.UpdateConfig).Items
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	bl := items[0].(model.BlacklistConfig).Blacklist
	if !bl.Contains(model.ConstellationGLONASS, 3) {
		t.Fatalf("blacklist %v missing glonass 3", bl)
	}
	if got := items[1].(model.MinSvElevationConfig).Degrees; got != 15 {
		t.Fatalf("elevation = %d, want 15", got)
	}
	if got := items[2].(model.LeverArmConfig); got.Forward != 1.5 || got.Up != -0.25 {
		t.Fatalf("lever arm = %+v", got)
	}
}

func TestDecodeRejectsMalformedArgs(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    map[string]any
	}{
		{"unknown command", "reboot", nil},
		{"unknown technology", "start_tracking", map[string]any{"capabilities": []any{"radar"}}},
		{"negative session", "stop_tracking", map[string]any{"session": float64(-1)}},
		{"string session", "stop_tracking", map[string]any{"session": "1"}},
		{"unknown ni response", "respond_to_ni", map[string]any{"id": float64(1), "response": "maybe"}},
		{"missing latitude", "inject_location", map[string]any{"longitude": float64(1)}},
		{"bad time", "inject_time", map[string]any{"time": "yesterday"}},
		{"unknown aiding", "delete_aiding_data", map[string]any{"data": []any{"weather"}}},
		{"svid out of range", "set_sv_config", map[string]any{"blacklist": []any{map[string]any{"constellation": "gps", "svid": float64(65)}}}},
		{"unknown power state", "set_power_state", map[string]any{"state": "hibernate"}},
		{"unknown config field", "update_config", map[string]any{"items": []any{map[string]any{"field": "antenna"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCommand("app", tc.command, tc.args)
			if !errors.Is(err, adapter.ErrInvalidParameter) {
				t.Fatalf("DecodeCommand error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestDecodeInjectTime(t *testing.T) {
	cmd, err := DecodeCommand("app", "inject_time", map[string]any{
		"time":           "2026-03-01T12:00:00.5Z",
		"uncertainty_ms": float64(20),
	})
	if err != nil {
		t.Fatalf("DecodeCommand error: %v", err)
	}
	it := cmd.(adapter.InjectTime)
	want := time.Date(2026, 3, 1, 12, 0, 0, 500*int(time.Millisecond), time.UTC)
	if !it.Time.Equal(want) || it.Uncertainty != 20*time.Millisecond {
		t.Fatalf("inject_time = %+v", it)
	}
	if !it.Reference.IsZero() {
		t.Fatalf("reference = %v, want zero so the adapter stamps it", it.Reference)
	}
}

func TestResultErrorRoundTrip(t *testing.T) {
	res := adapter.Result{
		Err: adapter.ErrPartialFailure,
		Fields: []model.FieldResult{
			{Field: model.FieldBlacklist, Err: model.LocationSuccess},
			{Field: model.FieldConstellationMask, Err: model.LocationGeneralFailure},
		},
	}
	out := EncodeResult("req-1", res)

	if got := out.GetFields()["request_id"].GetStringValue(); got != "req-1" {
		t.Fatalf("request_id = %q", got)
	}
	fields := out.GetFields()["fields"].GetListValue().GetValues()
	if len(fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(fields))
	}
	second := fields[1].GetStructValue().GetFields()
	if second["field"].GetStringValue() != "constellation_mask" || second["result"].GetStringValue() != "general_failure" {
		t.Fatalf("second field = %v", second)
	}
	if err := ResultError(out); !errors.Is(err, adapter.ErrPartialFailure) {
		t.Fatalf("ResultError = %v, want ErrPartialFailure", err)
	}
	if err := ResultError(EncodeResult("req-2", adapter.Result{})); err != nil {
		t.Fatalf("ResultError(ok) = %v, want nil", err)
	}
}

func TestEncodeStatusBlacklist(t *testing.T) {
	cfg := model.DefaultSvConfig()
	cfg.Blacklist.Add(model.ConstellationBeiDou, 12)
	out := EncodeStatus(adapter.Status{EngineUp: true, SvDesired: cfg, SvAcked: model.DefaultSvConfig()})

	desired := out.GetFields()["sv_desired"].GetStructValue().GetFields()
	entries := desired["blacklist"].GetListValue().GetValues()
	if len(entries) != 1 {
		t.Fatalf("blacklist entries = %d, want 1", len(entries))
	}
	entry := entries[0].GetStructValue().GetFields()
	if entry["constellation"].GetStringValue() != "beidou" || entry["svid"].GetNumberValue() != 12 {
		t.Fatalf("entry = %v", entry)
	}
	if !out.GetFields()["engine_up"].GetBoolValue() {
		t.Fatalf("engine_up = false, want true")
	}
}
