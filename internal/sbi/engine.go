// Package sbi is the south-bound interface between the adapter and a
// positioning engine: the command sink, the commands and events that cross
// it, and the time-based scheduler used for deadlines.
package sbi

import (
	"context"
	"errors"
	"fmt"
)

// Correlation ties a deferred engine acknowledgement back to the command
// that caused it. Zero means "uncorrelated".
type Correlation uint64

func (c Correlation) String() string {
	return fmt.Sprintf("corr-%d", uint64(c))
}

// Engine accepts commands for the positioning engine. Send only hands the
// command to the transport; outcomes arrive later as events.
type Engine interface {
	Send(ctx context.Context, cmd Command) error
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, cmd Command) error

// Send implements Engine.
func (f EngineFunc) Send(ctx context.Context, cmd Command) error { return f(ctx, cmd) }

// EventSink receives engine events. Post must not block on adapter work.
type EventSink interface {
	Post(ev Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ev Event)

// Post implements EventSink.
func (f EventSinkFunc) Post(ev Event) { f(ev) }

// ErrEngineClosed is returned by engines that have been shut down.
var ErrEngineClosed = errors.New("engine closed")
