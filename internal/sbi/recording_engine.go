package sbi

import (
	"context"
	"sync"
)

// RecordingEngine is an Engine test double that remembers every command.
// Failures can be injected per command name.
type RecordingEngine struct {
	mu       sync.Mutex
	commands []Command
	failures map[string]error
	onSend   func(Command)
}

// NewRecordingEngine returns an empty RecordingEngine.
func NewRecordingEngine() *RecordingEngine {
	return &RecordingEngine{failures: make(map[string]error)}
}

// Send records cmd, or returns the injected failure for its name.
func (r *RecordingEngine) Send(_ context.Context, cmd Command) error {
	r.mu.Lock()
	if err, ok := r.failures[cmd.Name()]; ok {
		r.mu.Unlock()
		return err
	}
	r.commands = append(r.commands, cmd)
	hook := r.onSend
	r.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	return nil
}

// FailWith makes every later command named name fail with err. A nil err
// clears the failure.
func (r *RecordingEngine) FailWith(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, name)
		return
	}
	r.failures[name] = err
}

// OnSend installs a hook called after each recorded command, outside the lock.
func (r *RecordingEngine) OnSend(fn func(Command)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSend = fn
}

// Commands returns a copy of every recorded command in send order.
func (r *RecordingEngine) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Reset forgets recorded commands but keeps injected failures.
func (r *RecordingEngine) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
}

// CommandsOf returns the recorded commands of type T in send order.
func CommandsOf[T Command](r *RecordingEngine) []T {
	var out []T
	for _, cmd := range r.Commands() {
		if c, ok := cmd.(T); ok {
			out = append(out, c)
		}
	}
	return out
}
