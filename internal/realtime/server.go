package realtime

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collab-playlist/internal/playlist"
)

// DefaultHeartbeat is the interval between ping frames on a push stream.
const DefaultHeartbeat = 15 * time.Second

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// Server exposes the hub over SSE (/stream) and WebSocket (/ws).
type Server struct {
	hub       *Hub
	heartbeat time.Duration
	upgrader  websocket.Upgrader
	log       *zap.Logger
	now       func() time.Time
}

// NewServer builds the push endpoints. allowedOrigin "*" or "" accepts any
// WebSocket origin.
func NewServer(hub *Hub, heartbeat time.Duration, allowedOrigin string, log *zap.Logger) *Server {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		hub:       hub,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		log: log.Named("stream"),
		now: time.Now,
	}
}

// HandleSSE streams `data: <json>\n\n` frames until the client goes away.
func (s *Server) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	if err := writeFrame(w, playlist.Ping(s.now())); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		var ev playlist.Event
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			ev = e
		case t := <-ticker.C:
			ev = playlist.Ping(t)
		}
		if err := writeFrame(w, ev); err != nil {
			s.log.Debug("sse write failed", zap.Error(err))
			return
		}
		flusher.Flush()
	}
}

func writeFrame(w io.Writer, ev playlist.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// HandleWS carries the same JSON frames as WebSocket text messages.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		server: s,
		conn:   conn,
		sub:    s.hub.Subscribe(),
		closed: make(chan struct{}),
	}
	go c.readPump()
	c.writePump()
}

type wsClient struct {
	server *Server
	conn   *websocket.Conn
	sub    *Subscriber
	closed chan struct{}
}

// readPump discards inbound messages and notices when the peer leaves.
func (c *wsClient) readPump() {
	defer close(c.closed)
	c.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.server.heartbeat)
	defer func() {
		ticker.Stop()
		c.server.hub.Unsubscribe(c.sub)
		_ = c.conn.Close()
	}()

	if err := c.write(playlist.Ping(c.server.now())); err != nil {
		return
	}
	for {
		select {
		case <-c.closed:
			return
		case ev, ok := <-c.sub.Events():
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if err := c.write(ev); err != nil {
				return
			}
		case t := <-ticker.C:
			if err := c.write(playlist.Ping(t)); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) write(ev playlist.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}
