package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"loom/internal/notifier"
	"loom/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// wsEvent is the JSON shape delivered to a WebSocket client for any
// notifier.Event.
type wsEvent struct {
	Kind      notifier.EventKind `json:"kind"`
	SessionID string             `json:"session_id,omitempty"`
	Payload   any                `json:"payload,omitempty"`
}

// connSink adapts a gorilla/websocket.Conn to notifier.Sink. It owns a
// buffered outbound queue and its own writer goroutine so a slow client
// socket never blocks the Hub's delivery goroutine — Send only enqueues and
// returns immediately, same non-blocking contract the Hub requires of every
// Sink. This adapter lives here, not in internal/notifier, because it's
// transport, same separation the teacher draws between gateway/websocket
// and the rest of the runtime.
type connSink struct {
	conn *websocket.Conn
	send chan wsEvent

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnSink(conn *websocket.Conn) *connSink {
	return &connSink{
		conn:   conn,
		send:   make(chan wsEvent, 64),
		closed: make(chan struct{}),
	}
}

// Send implements notifier.Sink. It never blocks: a full outbound queue
// means the client is too slow, and the event is dropped for it alone.
func (s *connSink) Send(e notifier.Event) error {
	select {
	case <-s.closed:
		return errSinkClosed
	default:
	}
	select {
	case s.send <- wsEvent{Kind: e.Kind, SessionID: e.SessionID, Payload: e.Payload}:
		return nil
	default:
		logger.Warn().Str("session", e.SessionID).Msg("websocket client too slow, dropping event")
		return nil
	}
}

func (s *connSink) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

var errSinkClosed = &sinkClosedError{}

type sinkClosedError struct{}

func (*sinkClosedError) Error() string { return "websocket sink closed" }

// writePump drains the outbound queue to the socket until it's closed.
func (s *connSink) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case evt, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			return
		}
	}
}

// readPump discards client frames but keeps the read deadline/pong handler
// alive, so a dead TCP connection is detected and the sink unsubscribed.
func (s *connSink) readPump(hub *notifier.Hub) {
	defer func() {
		hub.UnsubscribeAll(s)
		s.close()
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var envelope struct {
		SessionID string `json:"session_id"`
	}
	for {
		if _, data, err := s.conn.ReadMessage(); err != nil {
			return
		} else if json.Unmarshal(data, &envelope) == nil && envelope.SessionID != "" {
			hub.Subscribe(envelope.SessionID, s)
		}
	}
}

// serveWs upgrades the request to a WebSocket connection and subscribes it
// to every session-less event on the hub; it additionally subscribes to a
// specific session whenever the client sends {"session_id": "..."}.
func serveWs(hub *notifier.Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sink := newConnSink(conn)
	hub.SubscribeAll(sink)

	go sink.writePump()
	sink.readPump(hub)
}
