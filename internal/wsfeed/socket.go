package wsfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
)

// ServeHTTP upgrades the request and streams feed messages until either
// side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "web feed upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	s := &subscriber{send: make(chan []byte, subscriberBuffer)}
	ctx := context.WithoutCancel(r.Context())
	if err := h.add(ctx, s); err != nil {
		h.log.Warn(ctx, "web feed subscribe failed", logging.Err(err))
		h.remove(ctx, s)
		return
	}
	defer h.remove(ctx, s)

	hello, _ := json.Marshal(Message{Type: "hello", Time: time.Now().UTC()})
	conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return
	}

	stop := make(chan struct{})
	go h.readLoop(conn, stop)
	h.writeLoop(conn, s, stop)
}

// readLoop only services control frames; browsers do not send commands.
func (h *Hub) readLoop(conn *websocket.Conn, stop chan struct{}) {
	defer close(stop)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug(context.Background(), "web feed read failed", logging.Err(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, s *subscriber, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case b, ok := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
