package nbi

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
)

func TestToStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied},
		{name: "invalid parameter", err: fmt.Errorf("%w: bad interval", adapter.ErrInvalidParameter), code: codes.InvalidArgument},
		{name: "unknown session", err: adapter.ErrUnknownSession, code: codes.NotFound},
		{name: "unknown client", err: adapter.ErrUnknownClient, code: codes.NotFound},
		{name: "duplicate session", err: adapter.ErrDuplicateSession, code: codes.AlreadyExists},
		{name: "subscriber attached", err: ErrSubscriberAttached, code: codes.AlreadyExists},
		{name: "stale ni answer", err: adapter.ErrStaleOrUnknownRequest, code: codes.FailedPrecondition},
		{name: "odcpi priority", err: adapter.ErrPriorityTooLow, code: codes.FailedPrecondition},
		{name: "engine down", err: adapter.ErrEngineUnavailable, code: codes.Unavailable},
		{name: "adapter stopped", err: adapter.ErrAdapterStopped, code: codes.Unavailable},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("ToStatusError(%v) = nil, want error", tc.err)
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
		})
	}
}
