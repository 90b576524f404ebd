package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
	"github.com/signalsfoundry/gnss-adapter/internal/config"
	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/nbi"
	"github.com/signalsfoundry/gnss-adapter/internal/observability"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi/simengine"
	"github.com/signalsfoundry/gnss-adapter/internal/store"
	"github.com/signalsfoundry/gnss-adapter/internal/wsfeed"
	"github.com/signalsfoundry/gnss-adapter/kb"
	"github.com/signalsfoundry/gnss-adapter/model"
	"github.com/signalsfoundry/gnss-adapter/timectrl"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the control gRPC server listens on (overrides listen.grpc)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides listen.metrics)")
	storePath := flag.String("store", "", "Path of the SQLite state database (overrides store.path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewFromEnv().Error(context.Background(), "failed to load config",
			logging.String("path", *configPath), logging.Err(err))
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Listen.GRPC = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.Listen.Metrics = *metricsAddr
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, AddSource: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.Listen.GRPC)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Listen.GRPC), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "gnss adapter exited", logging.Err(err))
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing.WithEnv(os.LookupEnv), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	rpcMetrics, err := observability.NewRPCCollector(reg)
	if err != nil {
		return err
	}
	adapterMetrics, err := observability.NewAdapterCollector(reg)
	if err != nil {
		return err
	}
	metricsSrv := serveMetrics(cfg.Listen.Metrics, rpcMetrics, log)

	opts := []adapter.Option{
		adapter.WithMetrics(adapterMetrics),
		adapter.WithNiTimeouts(cfg.Adapter.NiTimeout, cfg.Adapter.NiEmergencyTimeout),
		adapter.WithNiDefaultResponse(cfg.Adapter.NiDefault()),
		adapter.WithOdcpiTimeout(cfg.Adapter.OdcpiTimeout),
	}
	if cfg.Store.Path != "" {
		st, err := store.Open(ctx, cfg.Store.Path, log)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		saved, err := st.Load(ctx)
		if err != nil {
			return err
		}
		if saved != nil {
			log.Info(ctx, "restored sv config", logging.String("blacklist", saved.Blacklist.String()))
		}
		opts = append(opts, adapter.WithSvConfigStore(st, saved))
	}

	var engine *simengine.Engine
	send := sbi.EngineFunc(func(ctx context.Context, cmd sbi.Command) error {
		if engine == nil {
			return sbi.ErrEngineClosed
		}
		return engine.Send(ctx, cmd)
	})
	a := adapter.New(send, nil, log, opts...)

	var clock *timectrl.TimeController
	if cfg.Engine.Mode == "sim" {
		catalog := kb.Builtin()
		if cfg.Engine.Catalog != "" {
			n, err := catalog.LoadFile(cfg.Engine.Catalog)
			if err != nil {
				return err
			}
			log.Info(ctx, "loaded catalog", logging.String("path", cfg.Engine.Catalog), logging.Int("count", n))
		}
		clock = timectrl.NewTimeController(time.Now().UTC(), cfg.Engine.Tick, timectrl.RealTime)
		engine = simengine.New(simengine.Config{
			Receiver: model.Location{
				Latitude:  cfg.Engine.Receiver.LatDeg,
				Longitude: cfg.Engine.Receiver.LonDeg,
				Altitude:  cfg.Engine.Receiver.AltM,
			},
			SpeedMps:        cfg.Engine.Receiver.SpeedMps,
			BearingDeg:      cfg.Engine.Receiver.BearingDeg,
			MinElevationDeg: cfg.Engine.MinElevationDeg,
			ColdStartOdcpi:  true,
		}, catalog, clock, a, log)
		clock.AddListener(engine.Tick)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(runCtx) }()

	var clockDone <-chan struct{}
	if engine != nil {
		engine.Start()
		clockDone = clock.Start(runCtx, 0)
	}

	var hub *wsfeed.Hub
	var webSrv *http.Server
	if cfg.Web.Enable {
		hub = wsfeed.NewHub(a, log)
		if err := hub.Register(ctx); err != nil {
			return err
		}
		webSrv = serveFeed(cfg.Web.Listen, hub, log)
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			nbi.RequestIDUnaryServerInterceptor(log),
			nbi.TracingUnaryServerInterceptor(),
			rpcMetrics.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			nbi.RequestIDStreamServerInterceptor(log),
			nbi.TracingStreamServerInterceptor(),
			rpcMetrics.StreamServerInterceptor(),
		),
	)
	nbi.RegisterControlServer(server, nbi.NewService(a, log))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	healthSrv.SetServingStatus(nbi.ServiceName, healthpb.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	log.Info(ctx, "starting control gRPC server", logging.String("addr", lis.Addr().String()))
	go func() { serveErr <- server.Serve(lis) }()

	var exitErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		exitErr = err
	}

	log.Info(context.Background(), "shutting down gnss adapter")
	healthSrv.Shutdown()
	stopGRPC(server)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if webSrv != nil {
		_ = webSrv.Shutdown(shutdownCtx)
	}
	if hub != nil {
		_ = hub.Close(shutdownCtx)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if engine != nil {
		engine.Close()
	}

	cancelRun()
	if clockDone != nil {
		<-clockDone
	}
	if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return exitErr
}

// stopGRPC drains in-flight RPCs, cutting open event streams after a grace
// period.
func stopGRPC(server *grpc.Server) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		server.Stop()
	}
}

func serveMetrics(addr string, collector *observability.RPCCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func serveFeed(addr string, hub *wsfeed.Hub, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/feed", hub)

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "web feed server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving web feed", logging.String("addr", addr))
	return srv
}
