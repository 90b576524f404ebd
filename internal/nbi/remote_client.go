package nbi

import (
	"sync"
	"sync/atomic"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
	"github.com/signalsfoundry/gnss-adapter/model"
)

// Event type names carried in the "type" field of streamed events.
const (
	EventPosition     = "position"
	EventSv           = "sv"
	EventMeasurement  = "measurement"
	EventNmea         = "nmea"
	EventNiRequest    = "ni_request"
	EventOdcpiRequest = "odcpi_request"
	EventCapabilities = "capabilities"
	EventAgpsRequest  = "agps_request"
	EventResponse     = "response"
)

var eventTypes = map[string]bool{
	EventPosition:     true,
	EventSv:           true,
	EventMeasurement:  true,
	EventNmea:         true,
	EventNiRequest:    true,
	EventOdcpiRequest: true,
	EventCapabilities: true,
	EventAgpsRequest:  true,
	EventResponse:     true,
}

func parseEventFilter(names []string) (map[string]bool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	filter := make(map[string]bool, len(names))
	for _, n := range names {
		if !eventTypes[n] {
			return nil, invalidf("unknown report type %q", n)
		}
		filter[n] = true
	}
	return filter, nil
}

// remoteClient is the adapter-side stand-in for one gRPC client. Callbacks
// run on the adapter executor, so pushes never block: when the buffer is
// full the event is dropped and counted.
type remoteClient struct {
	id      model.ClientID
	events  chan *structpb.Struct
	dropped atomic.Uint64

	mu       sync.Mutex
	attached bool
	filter   map[string]bool
}

func newRemoteClient(id model.ClientID, buffer int) *remoteClient {
	return &remoteClient{id: id, events: make(chan *structpb.Struct, buffer)}
}

func (c *remoteClient) ID() model.ClientID { return c.id }

func (c *remoteClient) attach(filter map[string]bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return false
	}
	c.attached = true
	c.filter = filter
	return true
}

func (c *remoteClient) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = false
	c.filter = nil
}

func (c *remoteClient) wants(kind string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter == nil || c.filter[kind]
}

func (c *remoteClient) push(kind string, ev func() *structpb.Struct) {
	if !c.wants(kind) {
		return
	}
	select {
	case c.events <- ev():
	default:
		c.dropped.Add(1)
	}
}

func (c *remoteClient) OnPosition(key model.SessionKey, loc model.Location) {
	c.push(EventPosition, func() *structpb.Struct { return encodePosition(key, loc) })
}

func (c *remoteClient) OnSvReport(r model.SvReport) {
	c.push(EventSv, func() *structpb.Struct { return encodeSv(r) })
}

func (c *remoteClient) OnMeasurements(r model.MeasurementReport) {
	c.push(EventMeasurement, func() *structpb.Struct { return encodeMeasurements(r) })
}

func (c *remoteClient) OnNmea(r model.NmeaReport) {
	c.push(EventNmea, func() *structpb.Struct { return encodeNmea(r) })
}

func (c *remoteClient) OnNiRequest(r model.NiRequest) {
	c.push(EventNiRequest, func() *structpb.Struct { return encodeNi(r) })
}

func (c *remoteClient) OnOdcpiRequest(r model.OdcpiRequest) {
	c.push(EventOdcpiRequest, func() *structpb.Struct { return encodeOdcpi(r) })
}

func (c *remoteClient) OnCapabilities(caps model.Capabilities) {
	c.push(EventCapabilities, func() *structpb.Struct { return encodeCapabilitiesEvent(caps) })
}

func (c *remoteClient) OnAgpsConnRequest(r model.AgpsConnRequest) {
	c.push(EventAgpsRequest, func() *structpb.Struct { return encodeAgps(r) })
}

func (c *remoteClient) OnResponse(requestID string, res adapter.Result) {
	c.push(EventResponse, func() *structpb.Struct { return encodeResponse(requestID, res) })
}
