package adapter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/gnss-adapter/model"
)

// Result is the outcome of one command.
type Result struct {
	// Err is nil on success or wraps one of the package sentinels.
	Err error
	// Fields holds per-field results of configuration batches, in request
	// order.
	Fields []model.FieldResult
	// Unsolicited is set by InjectOdcpi when no request was outstanding.
	Unsolicited bool
	// Capabilities is set by GetCapabilities.
	Capabilities model.Capabilities
	// Energy is set by GetEnergyConsumed.
	Energy model.EnergyReport
}

// Handle tracks a submitted command until it completes.
type Handle struct {
	RequestID string
	Command   string

	done   chan struct{}
	result Result
}

func newHandle(requestID, command string) *Handle {
	return &Handle{RequestID: requestID, Command: command, done: make(chan struct{})}
}

// Done is closed once the command completed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the outcome. It is only meaningful after Done is closed.
func (h *Handle) Result() Result {
	select {
	case <-h.done:
		return h.result
	default:
		return Result{}
	}
}

// Wait blocks until the command completes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// pending is the executor-side record of a submitted command.
type pending struct {
	cmd       Command
	handle    *Handle
	ctx       context.Context
	span      trace.Span
	submitted time.Time
	completed bool
}
