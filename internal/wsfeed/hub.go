// Package wsfeed serves a live WebSocket feed of fixes and satellite reports.
// The hub is itself an adapter client: it holds one time-based tracking
// session while at least one browser is connected.
package wsfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = 15 * time.Second

	maxMessageSize = 512

	subscriberBuffer = 64

	// DefaultClientID is the adapter client id used by the hub.
	DefaultClientID model.ClientID = "wsfeed"
)

// Commander is the adapter surface the hub drives.
type Commander interface {
	Execute(ctx context.Context, cmd adapter.Command) (adapter.Result, error)
	NewSessionID(ctx context.Context) (model.SessionID, error)
}

// Message is one JSON frame sent to browsers.
type Message struct {
	Type     string      `json:"type"`
	Time     time.Time   `json:"time"`
	Position *Position   `json:"position,omitempty"`
	Svs      []Satellite `json:"svs,omitempty"`
	Sentence string      `json:"sentence,omitempty"`
}

// Position is the browser view of a fix.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt_m"`
	Speed     float64 `json:"speed_mps"`
	Bearing   float64 `json:"bearing"`
	Accuracy  float64 `json:"accuracy_m"`
}

// Satellite is the browser view of one SV in view.
type Satellite struct {
	Constellation string  `json:"constellation"`
	Svid          int     `json:"svid"`
	CN0           float64 `json:"cn0"`
	Elevation     float64 `json:"el"`
	Azimuth       float64 `json:"az"`
	Used          bool    `json:"used"`
}

type subscriber struct {
	send chan []byte
}

// Hub fans adapter reports out to WebSocket subscribers.
type Hub struct {
	id       model.ClientID
	cmd      Commander
	log      logging.Logger
	interval time.Duration
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	sessionMu sync.Mutex
	session   model.SessionID
	tracking  bool

	dropped atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithInterval sets the tracking interval requested while browsers are
// connected.
func WithInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithClientID overrides DefaultClientID.
func WithClientID(id model.ClientID) Option {
	return func(h *Hub) {
		if id != "" {
			h.id = id
		}
	}
}

// NewHub returns a hub; call Register before serving.
func NewHub(cmd Commander, log logging.Logger, opts ...Option) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	h := &Hub{
		id:       DefaultClientID,
		cmd:      cmd,
		log:      log,
		interval: time.Second,
		subs:     make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) ID() model.ClientID { return h.id }

// Register adds the hub to the adapter's client set.
func (h *Hub) Register(ctx context.Context) error {
	_, err := h.cmd.Execute(ctx, adapter.SetControlCallbacks{Client: h})
	return err
}

// Close stops the hub's tracking session and removes it from the adapter.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	for s := range h.subs {
		close(s.send)
		delete(h.subs, s)
	}
	h.mu.Unlock()

	h.sessionMu.Lock()
	h.tracking = false
	h.sessionMu.Unlock()
	_, err := h.cmd.Execute(ctx, adapter.RemoveClient{Client: h.id})
	return err
}

// Subscribers returns the number of connected browsers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) add(ctx context.Context, s *subscriber) error {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return h.ensureTracking(ctx)
}

func (h *Hub) remove(ctx context.Context, s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
	h.mu.Unlock()
	h.releaseTracking(ctx)
}

func (h *Hub) ensureTracking(ctx context.Context) error {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	// The subscriber may already be gone, with its release finding nothing
	// to stop.
	if h.tracking || h.Subscribers() == 0 {
		return nil
	}
	id, err := h.cmd.NewSessionID(ctx)
	if err != nil {
		return err
	}
	req := model.TrackingRequest{Mode: model.TrackingTimeBased, Interval: h.interval}
	if _, err := h.cmd.Execute(ctx, adapter.StartTracking{Client: h.id, Session: id, Request: req}); err != nil {
		return err
	}
	h.session = id
	h.tracking = true
	h.log.Info(ctx, "web feed tracking started", logging.Uint64("session", uint64(id)))
	return nil
}

func (h *Hub) releaseTracking(ctx context.Context) {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	if !h.tracking || h.Subscribers() > 0 {
		return
	}
	if _, err := h.cmd.Execute(ctx, adapter.StopTracking{Client: h.id, Session: h.session}); err != nil {
		h.log.Warn(ctx, "web feed stop tracking failed", logging.Err(err))
	}
	h.tracking = false
	h.log.Info(ctx, "web feed tracking stopped", logging.Uint64("session", uint64(h.session)))
}

func (h *Hub) broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn(context.Background(), "web feed encode failed", logging.Err(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.send <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) OnPosition(_ model.SessionKey, loc model.Location) {
	h.broadcast(Message{
		Type: "position",
		Time: loc.Timestamp,
		Position: &Position{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Altitude:  loc.Altitude,
			Speed:     loc.Speed,
			Bearing:   loc.Bearing,
			Accuracy:  loc.HorizontalAccuracy,
		},
	})
}

func (h *Hub) OnSvReport(r model.SvReport) {
	svs := make([]Satellite, 0, len(r.Svs))
	for _, sv := range r.Svs {
		svs = append(svs, Satellite{
			Constellation: sv.Constellation.String(),
			Svid:          sv.Svid,
			CN0:           sv.CN0DbHz,
			Elevation:     sv.ElevationDeg,
			Azimuth:       sv.AzimuthDeg,
			Used:          sv.UsedInFix,
		})
	}
	h.broadcast(Message{Type: "sv", Time: r.Timestamp, Svs: svs})
}

func (h *Hub) OnNmea(r model.NmeaReport) {
	h.broadcast(Message{Type: "nmea", Time: r.Timestamp, Sentence: r.Sentence})
}
