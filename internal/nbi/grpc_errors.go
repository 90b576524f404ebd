package nbi

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
)

// ErrSubscriberAttached is returned when a client opens a second event stream.
var ErrSubscriberAttached = errors.New("subscriber already attached")

// ToStatusError maps adapter errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, adapter.ErrUnknownSession),
		errors.Is(err, adapter.ErrUnknownClient):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, adapter.ErrInvalidParameter):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, adapter.ErrDuplicateSession),
		errors.Is(err, ErrSubscriberAttached):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, adapter.ErrStaleOrUnknownRequest),
		errors.Is(err, adapter.ErrPriorityTooLow),
		errors.Is(err, adapter.ErrCallbackMissing):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, adapter.ErrEngineUnavailable),
		errors.Is(err, adapter.ErrAdapterStopped):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
