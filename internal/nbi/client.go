package nbi

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
)

// Client is a thin caller for the control service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func withClientID(ctx context.Context, clientID string) context.Context {
	if clientID == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, clientIDMetadataKey, clientID)
}

// Execute sends one command envelope and returns the decoded response.
func (c *Client) Execute(ctx context.Context, clientID, command string, args map[string]any) (*structpb.Struct, error) {
	env := map[string]any{"command": command}
	if clientID != "" {
		env["client_id"] = clientID
	}
	if args != nil {
		env["args"] = args
	}
	req, err := structpb.NewStruct(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", command, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(withClientID(ctx, clientID), "/"+ServiceName+"/Execute", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status fetches an adapter snapshot.
func (c *Client) Status(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Status", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Subscription is an open event stream.
type Subscription struct {
	stream grpc.ClientStream
}

// Subscribe opens the event stream for clientID. An empty reports list
// selects every event type.
func (c *Client) Subscribe(ctx context.Context, clientID string, reports ...string) (*Subscription, error) {
	list := make([]any, 0, len(reports))
	for _, r := range reports {
		list = append(list, r)
	}
	req, err := structpb.NewStruct(map[string]any{"client_id": clientID, "reports": list})
	if err != nil {
		return nil, err
	}
	stream, err := c.cc.NewStream(withClientID(ctx, clientID), &ControlServiceDesc.Streams[0], "/"+ServiceName+"/Subscribe")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	sub := &Subscription{stream: stream}
	first, err := sub.Recv()
	if err != nil {
		return nil, err
	}
	if EventType(first) != "subscribed" {
		return nil, fmt.Errorf("unexpected first event %q", EventType(first))
	}
	return sub, nil
}

// Recv blocks for the next event.
func (s *Subscription) Recv() (*structpb.Struct, error) {
	ev := new(structpb.Struct)
	if err := s.stream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// EventType returns the "type" field of a streamed event.
func EventType(ev *structpb.Struct) string {
	return ev.GetFields()["type"].GetStringValue()
}

// ResultError turns the code carried by an Execute response back into the
// matching adapter error; nil for "ok".
func ResultError(out *structpb.Struct) error {
	code := out.GetFields()["code"].GetStringValue()
	if code == "" || code == adapter.ErrorCode(nil) {
		return nil
	}
	msg := out.GetFields()["error"].GetStringValue()
	if msg == "" {
		msg = code
	}
	if sentinel, ok := adapter.ErrorForCode(code); ok {
		return &remoteError{sentinel: sentinel, msg: msg}
	}
	return errors.New(msg)
}

// remoteError keeps the server's message while matching the sentinel.
type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }
