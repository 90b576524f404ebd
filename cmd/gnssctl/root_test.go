package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/internal/nbi"
	"github.com/signalsfoundry/gnss-adapter/internal/sbi"
)

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, path := range [][]string{
		{"status"}, {"exec"}, {"track"}, {"watch"}, {"ni", "respond"}, {"inject-location"}, {"sv", "set"}, {"sv", "reset"},
	} {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := newRootCommand()

	addr := cmd.PersistentFlags().Lookup("addr")
	require.NotNil(t, addr)
	assert.Equal(t, "localhost:50061", addr.DefValue)

	client := cmd.PersistentFlags().Lookup("client")
	require.NotNil(t, client)
	assert.Equal(t, "gnssctl", client.DefValue)
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--format", "yaml", "status"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestParseBlacklist(t *testing.T) {
	entries, err := parseBlacklist([]string{"gps:5", "galileo:12"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]any{"constellation": "galileo", "svid": float64(12)}, entries[1])

	_, err = parseBlacklist([]string{"gps"})
	assert.Error(t, err)
	_, err = parseBlacklist([]string{"gps:x"})
	assert.Error(t, err)
}

type fakeEvents struct {
	events []*structpb.Struct
}

func (f *fakeEvents) Recv() (*structpb.Struct, error) {
	if len(f.events) == 0 {
		return nil, io.EOF
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func TestPrintEventsStopsAtEOF(t *testing.T) {
	ev, err := structpb.NewStruct(map[string]any{"type": "position", "latitude": 1.5})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printEvents(context.Background(), &out, "json", &fakeEvents{events: []*structpb.Struct{ev, ev}}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, "position", decoded["type"])
}

func startDaemon(t *testing.T) string {
	t.Helper()
	a := adapter.New(sbi.NewRecordingEngine(), nil, logging.Noop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	a.Post(sbi.EngineUp{})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	nbi.RegisterControlServer(srv, nbi.NewService(a, logging.Noop()))
	go func() { _ = srv.Serve(lis) }()

	t.Cleanup(func() {
		srv.Stop()
		cancel()
		<-done
	})
	return lis.Addr().String()
}

func runCLI(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)

	var decoded map[string]any
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	}
	return decoded, err
}

func TestExecAgainstDaemon(t *testing.T) {
	addr := startDaemon(t)

	out, err := runCLI(t, "--addr", addr, "--format", "json", "exec", "set_power_state", "--args", `{"state":"active"}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", out["code"])

	st, err := runCLI(t, "--addr", addr, "--format", "json", "status")
	require.NoError(t, err)
	assert.Equal(t, "active", st["power"])
	assert.Contains(t, st["clients"], "gnssctl")
}

func TestStaleNiResponseFails(t *testing.T) {
	addr := startDaemon(t)

	out, err := runCLI(t, "--addr", addr, "--format", "json", "ni", "respond", "42", "accept")
	require.Error(t, err)
	assert.True(t, errors.Is(err, adapter.ErrStaleOrUnknownRequest))
	assert.Equal(t, "stale_or_unknown_request", out["code"])
}
