// internal/nbi/service.go
package nbi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gnss.adapter.v1.Control"

const (
	defaultEventBuffer = 256
	detachTimeout      = 5 * time.Second
)

// Backend is the part of the adapter the control service drives.
type Backend interface {
	Submit(ctx context.Context, cmd adapter.Command) (*adapter.Handle, error)
	Snapshot(ctx context.Context) (adapter.Status, error)
	NewSessionID(ctx context.Context) (model.SessionID, error)
}

// ControlServer is the server API of the control service.
type ControlServer interface {
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Subscribe(*structpb.Struct, grpc.ServerStream) error
}

// ControlServiceDesc describes the control service. Messages are
// google.protobuf.Struct envelopes so the default proto codec applies.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: executeHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "gnss/adapter/v1/control.proto",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Execute"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Status"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlServer).Subscribe(in, stream)
}

// Service exposes the adapter to remote clients. Each remote client is
// registered with the adapter as a client whose callbacks feed its event
// stream.
type Service struct {
	backend Backend
	log     logging.Logger
	buffer  int

	mu      sync.Mutex
	clients map[model.ClientID]*remoteClient
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEventBuffer sets how many events are queued per client before new
// events are dropped.
func WithEventBuffer(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// NewService returns a control service backed by b.
func NewService(b Backend, log logging.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = logging.Noop()
	}
	s := &Service{
		backend: b,
		log:     log,
		buffer:  defaultEventBuffer,
		clients: make(map[model.ClientID]*remoteClient),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

func clientFor(ctx context.Context, fields map[string]any) model.ClientID {
	if id, _ := fields["client_id"].(string); id != "" {
		return model.ClientID(id)
	}
	return model.ClientID(logging.ClientIDFromContext(ctx))
}

// Execute runs one command envelope. Adapter-level failures are reported in
// the response code; gRPC errors signal malformed envelopes or an adapter
// that cannot accept work.
func (s *Service) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.AsMap()
	name, _ := fields["command"].(string)
	client := clientFor(ctx, fields)

	switch name {
	case "":
		return nil, status.Error(codes.InvalidArgument, "command is required")
	case "new_session_id":
		id, err := s.backend.NewSessionID(ctx)
		if err != nil {
			return nil, ToStatusError(err)
		}
		return mustStruct(map[string]any{"code": adapter.ErrorCode(nil), "session": float64(id)}), nil
	}

	if client == "" {
		return nil, status.Error(codes.InvalidArgument, "client_id is required")
	}
	if name == "register_client" {
		if _, err := s.register(ctx, client); err != nil {
			return nil, ToStatusError(err)
		}
		return mustStruct(map[string]any{"code": adapter.ErrorCode(nil), "client_id": string(client)}), nil
	}

	raw, _ := fields["args"].(map[string]any)
	cmd, err := DecodeCommand(client, name, raw)
	if err != nil {
		return nil, ToStatusError(err)
	}
	h, err := s.backend.Submit(ctx, cmd)
	if err != nil {
		return nil, ToStatusError(err)
	}
	res, err := h.Wait(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if _, ok := cmd.(adapter.RemoveClient); ok && res.Err == nil {
		s.forget(client)
	}

	s.logger(ctx).Debug(ctx, "command executed",
		logging.String("command", name),
		logging.String("code", adapter.ErrorCode(res.Err)),
	)
	return EncodeResult(h.RequestID, res), nil
}

// Status returns a snapshot of the adapter state.
func (s *Service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.backend.Snapshot(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return EncodeStatus(st), nil
}

// Subscribe registers the calling client and streams its callbacks until the
// stream ends, at which point the client is removed from the adapter.
func (s *Service) Subscribe(in *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	fields := in.AsMap()
	client := clientFor(ctx, fields)
	if client == "" {
		return status.Error(codes.InvalidArgument, "client_id is required")
	}
	names, err := args(fields).strings("reports")
	if err != nil {
		return ToStatusError(err)
	}
	filter, err := parseEventFilter(names)
	if err != nil {
		return ToStatusError(err)
	}

	rc := s.clientEntry(client)
	if !rc.attach(filter) {
		return ToStatusError(fmt.Errorf("%w: %s", ErrSubscriberAttached, client))
	}
	if _, err := s.register(ctx, client); err != nil {
		rc.detach()
		return ToStatusError(err)
	}
	defer s.unsubscribe(rc)

	log := s.logger(ctx).With(logging.String("client_id", string(client)))
	log.Info(ctx, "subscriber attached")

	if err := stream.SendMsg(mustStruct(map[string]any{"type": "subscribed", "client_id": string(client)})); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "subscriber detached", logging.Uint64("dropped_events", rc.dropped.Load()))
			return nil
		case ev := <-rc.events:
			if err := stream.SendMsg(ev); err != nil {
				log.Warn(ctx, "event stream send failed", logging.Err(err))
				return err
			}
		}
	}
}

func (s *Service) clientEntry(id model.ClientID) *remoteClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.clients[id]
	if !ok {
		rc = newRemoteClient(id, s.buffer)
		s.clients[id] = rc
	}
	return rc
}

func (s *Service) register(ctx context.Context, id model.ClientID) (*remoteClient, error) {
	rc := s.clientEntry(id)
	h, err := s.backend.Submit(ctx, adapter.SetControlCallbacks{Client: rc})
	if err != nil {
		return nil, err
	}
	res, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return rc, nil
}

func (s *Service) forget(id model.ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

func (s *Service) unsubscribe(rc *remoteClient) {
	rc.detach()
	s.forget(rc.id)

	ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
	defer cancel()
	h, err := s.backend.Submit(ctx, adapter.RemoveClient{Client: rc.id})
	if err != nil {
		s.log.Warn(ctx, "remove client failed", logging.String("client_id", string(rc.id)), logging.Err(err))
		return
	}
	if _, err := h.Wait(ctx); err != nil {
		s.log.Warn(ctx, "remove client failed", logging.String("client_id", string(rc.id)), logging.Err(err))
	}
}
