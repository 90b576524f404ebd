package adapter

import "errors"

// Sentinel errors returned in Result.Err. Callers match them with errors.Is;
// the adapter wraps them with context.
var (
	// ErrUnknownSession is returned when a tracking command names a session
	// the client does not hold.
	ErrUnknownSession = errors.New("unknown session")
	// ErrDuplicateSession is returned when starting a session whose key is
	// already registered.
	ErrDuplicateSession = errors.New("duplicate session")
	// ErrStaleOrUnknownRequest is returned for NI or AGPS answers that do not
	// match the outstanding request.
	ErrStaleOrUnknownRequest = errors.New("stale or unknown request")
	// ErrPriorityTooLow is returned when an ODCPI provider registration loses
	// to the active provider.
	ErrPriorityTooLow = errors.New("odcpi provider priority too low")
	// ErrEngineUnavailable is returned when a command needs the engine and
	// the engine is down.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrPartialFailure is returned for a config batch where some fields
	// succeeded and others failed. Per-field results are in Result.Fields.
	ErrPartialFailure = errors.New("partial failure")
	// ErrEngineFailure is returned when the engine rejected every part of a
	// command.
	ErrEngineFailure = errors.New("engine failure")
	// ErrInvalidParameter is returned for structurally invalid commands.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrCallbackMissing is returned when a client registers for a role it
	// has no handler for.
	ErrCallbackMissing = errors.New("callback missing")
	// ErrUnknownClient is returned for commands from unregistered clients.
	ErrUnknownClient = errors.New("unknown client")
	// ErrAdapterStopped is returned once the executor has shut down.
	ErrAdapterStopped = errors.New("adapter stopped")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrUnknownSession, "unknown_session"},
	{ErrDuplicateSession, "duplicate_session"},
	{ErrStaleOrUnknownRequest, "stale_or_unknown_request"},
	{ErrPriorityTooLow, "priority_too_low"},
	{ErrEngineUnavailable, "engine_unavailable"},
	{ErrPartialFailure, "partial_failure"},
	{ErrEngineFailure, "engine_failure"},
	{ErrInvalidParameter, "invalid_parameter"},
	{ErrCallbackMissing, "callback_missing"},
	{ErrUnknownClient, "unknown_client"},
	{ErrAdapterStopped, "adapter_stopped"},
}

// ErrorCode returns a stable snake_case label for err: "ok" for nil, the
// sentinel's code when err wraps one, "internal" otherwise.
func ErrorCode(err error) string {
	if err == nil {
		return "ok"
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}

// ErrorForCode is the inverse of ErrorCode for sentinel codes.
func ErrorForCode(code string) (error, bool) {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err, true
		}
	}
	return nil, false
}
