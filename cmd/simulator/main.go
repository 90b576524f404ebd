// Command simulator runs the adapter against the simulated engine with no
// network surface and prints what a single tracking client observes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/observability"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi/simengine"
	"github.com/signalsfoundry/gnss-adapter/kb"
	"github.com/signalsfoundry/gnss-adapter/model"
	"github.com/signalsfoundry/gnss-adapter/timectrl"
)

const demoClient model.ClientID = "simulator"

type options struct {
	Start       time.Time
	Duration    time.Duration
	Tick        time.Duration
	Accelerated bool
	Receiver    model.Location
	SpeedMps    float64
	BearingDeg  float64
	MinElev     float64
	Mode        model.TrackingMode
	Interval    time.Duration
	MinDistance float64
	Catalog     string
	PrintNmea   bool
	Quiet       bool
}

type summary struct {
	Ticks         int
	Fixes         int
	SvReports     int
	MaxSvsInView  int
	OdcpiRequests int
	Status        adapter.Status
}

func main() {
	duration := flag.Duration("duration", 10*time.Minute, "total simulated duration")
	tick := flag.Duration("tick", time.Second, "tick interval")
	accelerated := flag.Bool("accelerated", true, "run in accelerated mode (vs real-time)")
	lat := flag.Float64("lat", 47.6205, "receiver latitude in degrees")
	lon := flag.Float64("lon", -122.3493, "receiver longitude in degrees")
	alt := flag.Float64("alt", 56, "receiver altitude in metres")
	speed := flag.Float64("speed", 0, "receiver ground speed in m/s")
	bearing := flag.Float64("bearing", 0, "receiver bearing in degrees")
	minElev := flag.Float64("min-elevation", 5, "elevation mask in degrees")
	mode := flag.String("mode", "time", "tracking mode: time or distance")
	interval := flag.Duration("interval", 5*time.Second, "requested report interval")
	minDistance := flag.Float64("min-distance", 0, "minimum displacement between fixes for distance mode, in metres")
	catalog := flag.String("catalog", "", "optional YAML catalog loaded on top of the built-in constellation")
	nmea := flag.Bool("nmea", false, "print NMEA sentences")
	quiet := flag.Bool("quiet", false, "only print the summary")
	flag.Parse()

	opts := options{
		Start:       time.Now().UTC(),
		Duration:    *duration,
		Tick:        *tick,
		Accelerated: *accelerated,
		Receiver:    model.Location{Latitude: *lat, Longitude: *lon, Altitude: *alt},
		SpeedMps:    *speed,
		BearingDeg:  *bearing,
		MinElev:     *minElev,
		Interval:    *interval,
		MinDistance: *minDistance,
		Catalog:     *catalog,
		PrintNmea:   *nmea,
		Quiet:       *quiet,
	}
	switch *mode {
	case "time":
		opts.Mode = model.TrackingTimeBased
	case "distance":
		opts.Mode = model.TrackingDistanceBased
	default:
		fmt.Fprintf(os.Stderr, "unknown tracking mode %q\n", *mode)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.NewFromEnv()
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to init tracing", logging.Err(err))
		os.Exit(1)
	}

	sum, err := simulate(ctx, opts, log, os.Stdout)
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
	if err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
	printSummary(os.Stdout, sum)
}

// simulate wires the adapter to a simulated engine, tracks for the
// configured duration and reports what the client saw.
func simulate(ctx context.Context, opts options, log logging.Logger, w io.Writer) (summary, error) {
	var sum summary

	catalog := kb.Builtin()
	if opts.Catalog != "" {
		n, err := catalog.LoadFile(opts.Catalog)
		if err != nil {
			return sum, err
		}
		fmt.Fprintf(w, "Loaded %d space vehicles from %s\n", n, opts.Catalog)
	}

	mode := timectrl.RealTime
	if opts.Accelerated {
		mode = timectrl.Accelerated
	}
	clock := timectrl.NewTimeController(opts.Start, opts.Tick, mode)

	var engine *simengine.Engine
	a := adapter.New(sbi.EngineFunc(func(ctx context.Context, cmd sbi.Command) error {
		if engine == nil {
			return sbi.ErrEngineClosed
		}
		return engine.Send(ctx, cmd)
	}), nil, log)
	engine = simengine.New(simengine.Config{
		Receiver:        opts.Receiver,
		SpeedMps:        opts.SpeedMps,
		BearingDeg:      opts.BearingDeg,
		MinElevationDeg: opts.MinElev,
		ColdStartOdcpi:  true,
	}, catalog, clock, a, log)
	defer engine.Close()

	var ticks atomic.Int64
	clock.AddListener(engine.Tick)
	clock.AddListener(func(time.Time) { ticks.Add(1) })

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(runCtx) }()

	p := &printer{a: a, w: w, receiver: opts.Receiver, nmea: opts.PrintNmea, quiet: opts.Quiet}
	if _, err := a.Execute(ctx, adapter.SetControlCallbacks{Client: p}); err != nil {
		return sum, err
	}
	if err := resultErr(a.Execute(ctx, adapter.SetOdcpiCallback{Client: demoClient, Priority: model.OdcpiPriorityLow})); err != nil {
		return sum, err
	}

	engine.Start()
	if err := a.Flush(ctx); err != nil {
		return sum, err
	}

	session, err := a.NewSessionID(ctx)
	if err != nil {
		return sum, err
	}
	req := model.TrackingRequest{
		Mode:        opts.Mode,
		Interval:    opts.Interval,
		MinDistance: opts.MinDistance,
	}
	if err := resultErr(a.Execute(ctx, adapter.StartTracking{Client: demoClient, Session: session, Request: req})); err != nil {
		return sum, err
	}

	fmt.Fprintf(w, "Starting simulation: duration=%s, tick=%s, accelerated=%v, session=%d\n",
		opts.Duration, opts.Tick, opts.Accelerated, session)
	<-clock.Start(ctx, opts.Duration)

	// Let pending ODCPI answers land before the final snapshot.
	if err := a.Flush(ctx); err != nil {
		return sum, err
	}
	p.wg.Wait()
	if err := a.Flush(ctx); err != nil {
		return sum, err
	}
	st, err := a.Snapshot(ctx)
	if err != nil {
		return sum, err
	}
	if err := resultErr(a.Execute(ctx, adapter.RemoveClient{Client: demoClient})); err != nil {
		return sum, err
	}

	a.Stop()
	if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) {
		return sum, err
	}

	sum = summary{
		Ticks:         int(ticks.Load()),
		Fixes:         int(p.fixes.Load()),
		SvReports:     int(p.svReports.Load()),
		MaxSvsInView:  int(p.maxSvs.Load()),
		OdcpiRequests: int(p.odcpi.Load()),
		Status:        st,
	}
	return sum, nil
}

func resultErr(res adapter.Result, err error) error {
	if err != nil {
		return err
	}
	return res.Err
}

func printSummary(w io.Writer, s summary) {
	fmt.Fprintln(w, "Simulation complete.")
	fmt.Fprintf(w, "  ticks:          %d\n", s.Ticks)
	fmt.Fprintf(w, "  fixes:          %d\n", s.Fixes)
	fmt.Fprintf(w, "  sv reports:     %d (max %d in view)\n", s.SvReports, s.MaxSvsInView)
	fmt.Fprintf(w, "  odcpi requests: %d\n", s.OdcpiRequests)
	fmt.Fprintf(w, "  engine session: active=%v interval=%s\n", s.Status.EngineSession.Active, s.Status.EngineSession.Interval)
}
