package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/gnss-adapter/internal/config"
	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/nbi"
)

func TestDaemonStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := config.Default()
	cfg.Listen.Metrics = ""
	cfg.Engine.Tick = 20 * time.Millisecond
	cfg.Store.Path = filepath.Join(t.TempDir(), "gnss.db")
	log := logging.New(logging.Config{Level: "warn", Format: "text"})

	runCtx, stopRun := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(runCtx, cfg, log, lis)
	}()

	conn, err := grpc.DialContext(ctx, lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.DialContext: %v", err)
	}
	defer conn.Close()

	health := healthpb.NewHealthClient(conn)
	waitFor(t, func() bool {
		resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{Service: nbi.ServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	})

	client := nbi.NewClient(conn)
	waitFor(t, func() bool {
		st, err := client.Status(ctx)
		return err == nil && st.GetFields()["engine_up"].GetBoolValue()
	})

	if _, err := client.Execute(ctx, "smoke", "register_client", nil); err != nil {
		t.Fatalf("register_client: %v", err)
	}
	out, err := client.Execute(ctx, "smoke", "get_capabilities", nil)
	if err != nil {
		t.Fatalf("get_capabilities: %v", err)
	}
	if err := nbi.ResultError(out); err != nil {
		t.Fatalf("get_capabilities result: %v", err)
	}
	if len(out.GetFields()["capabilities"].GetListValue().GetValues()) == 0 {
		t.Fatalf("get_capabilities returned no capabilities: %v", out.AsMap())
	}

	stopRun()
	if err := <-errCh; err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
