package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/model"
)

func testOptions() options {
	return options{
		Start:       time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC),
		Duration:    time.Minute,
		Tick:        time.Second,
		Accelerated: true,
		Receiver:    model.Location{Latitude: 47.6205, Longitude: -122.3493, Altitude: 56},
		MinElev:     5,
		Mode:        model.TrackingTimeBased,
		Interval:    5 * time.Second,
	}
}

// TestSimulateAcceleratedRun runs a short accelerated simulation end to end.
func TestSimulateAcceleratedRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	sum, err := simulate(ctx, testOptions(), logging.Noop(), &out)
	if err != nil {
		t.Fatalf("simulate error: %v", err)
	}

	if sum.Ticks != 60 {
		t.Fatalf("expected 60 ticks, got %d", sum.Ticks)
	}
	// One epoch per 5s interval over a minute.
	if sum.SvReports < 10 || sum.SvReports > 13 {
		t.Fatalf("expected about 12 sv reports, got %d", sum.SvReports)
	}
	if sum.OdcpiRequests < 1 {
		t.Fatalf("expected a cold start ODCPI request")
	}
	if !sum.Status.EngineSession.Active {
		t.Fatalf("expected an active engine session before the client was removed")
	}
	if sum.Status.EngineSession.Interval != 5*time.Second {
		t.Fatalf("engine interval = %s, want 5s", sum.Status.EngineSession.Interval)
	}
	if sum.Status.OdcpiProvider != demoClient {
		t.Fatalf("odcpi provider = %q, want %q", sum.Status.OdcpiProvider, demoClient)
	}
	if !strings.Contains(out.String(), "Starting simulation") {
		t.Fatalf("missing start banner in output:\n%s", out.String())
	}
}

// TestSimulateProducesFixes lowers the elevation mask so every vehicle of
// the built-in constellation counts towards a fix.
func TestSimulateProducesFixes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := testOptions()
	opts.MinElev = -90
	opts.PrintNmea = true

	var out bytes.Buffer
	sum, err := simulate(ctx, opts, logging.Noop(), &out)
	if err != nil {
		t.Fatalf("simulate error: %v", err)
	}
	if sum.Fixes == 0 {
		t.Fatalf("expected fixes, got none")
	}
	if sum.MaxSvsInView != 12 {
		t.Fatalf("expected all 12 vehicles in view, got %d", sum.MaxSvsInView)
	}
	text := out.String()
	if !strings.Contains(text, "fix simulator/") {
		t.Fatalf("missing fix line in output:\n%s", text)
	}
	if !strings.Contains(text, "$GPGGA") {
		t.Fatalf("missing GGA sentence in output:\n%s", text)
	}
}

func TestSimulateQuietOnlyCounts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := testOptions()
	opts.Quiet = true
	opts.Duration = 20 * time.Second

	var out bytes.Buffer
	sum, err := simulate(ctx, opts, logging.Noop(), &out)
	if err != nil {
		t.Fatalf("simulate error: %v", err)
	}
	if strings.Contains(out.String(), "in view") {
		t.Fatalf("quiet run printed sv lines:\n%s", out.String())
	}
	if sum.SvReports == 0 {
		t.Fatalf("expected sv reports to be counted in quiet mode")
	}

	var s bytes.Buffer
	printSummary(&s, sum)
	if !strings.Contains(s.String(), "ticks:          20") {
		t.Fatalf("unexpected summary:\n%s", s.String())
	}
}
