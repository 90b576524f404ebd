package sbi

import (
	"context"
	"errors"
	"testing"

	"github.com/signalsfoundry/gnss-adapter/model"
)

func TestRecordingEngineRecordsAndFails(t *testing.T) {
	eng := NewRecordingEngine()
	ctx := context.Background()

	if err := eng.Send(ctx, StartSession{Session: model.EngineSession{Active: true}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	boom := errors.New("link down")
	eng.FailWith(StopSession{}.Name(), boom)
	if err := eng.Send(ctx, StopSession{}); !errors.Is(err, boom) {
		t.Fatalf("Send(StopSession) err = %v, want %v", err, boom)
	}
	eng.FailWith(StopSession{}.Name(), nil)
	if err := eng.Send(ctx, StopSession{}); err != nil {
		t.Fatalf("Send after clearing failure: %v", err)
	}

	if got := len(eng.Commands()); got != 2 {
		t.Fatalf("recorded %d commands, want 2", got)
	}
	if starts := CommandsOf[StartSession](eng); len(starts) != 1 || !starts[0].Session.Active {
		t.Fatalf("CommandsOf[StartSession] = %+v", starts)
	}

	eng.Reset()
	if got := len(eng.Commands()); got != 0 {
		t.Fatalf("recorded %d commands after Reset, want 0", got)
	}
}

func TestRecordingEngineOnSendHook(t *testing.T) {
	eng := NewRecordingEngine()
	var seen []string
	eng.OnSend(func(cmd Command) { seen = append(seen, cmd.Name()) })

	_ = eng.Send(context.Background(), RequestCapabilities{Correlation: 7})
	if len(seen) != 1 || seen[0] != "request_capabilities" {
		t.Fatalf("hook saw %v", seen)
	}
}
