package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"collab-playlist/internal/playlist"
)

// Transport opens push streams. Every call yields a fresh stream.
type Transport interface {
	Connect(ctx context.Context) (Stream, error)
}

// Stream yields server events until it fails or is closed. Close unblocks a
// pending Next.
type Stream interface {
	Next() (playlist.Event, error)
	Close() error
}

// SSETransport reads `data: <json>` frames from GET /stream.
type SSETransport struct {
	URL    string
	Client *http.Client
}

func (t *SSETransport) Connect(ctx context.Context) (Stream, error) {
	hc := t.Client
	if hc == nil {
		// No overall timeout: the response body lives as long as the stream.
		hc = &http.Client{}
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := hc.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: stream status %d", ErrTransport, resp.StatusCode)
	}
	return &sseStream{body: resp.Body, r: bufio.NewReader(resp.Body), cancel: cancel}, nil
}

type sseStream struct {
	body   io.ReadCloser
	r      *bufio.Reader
	cancel context.CancelFunc
}

// Next returns the next event. Multi-line data fields are joined with "\n";
// comment lines and other fields are skipped.
func (s *sseStream) Next() (playlist.Event, error) {
	var data []string
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return playlist.Event{}, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) == 0 {
				continue
			}
			var ev playlist.Event
			if err := json.Unmarshal([]byte(strings.Join(data, "\n")), &ev); err != nil {
				data = data[:0]
				continue
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(v, " "))
		}
	}
}

func (s *sseStream) Close() error {
	s.cancel()
	return s.body.Close()
}

// WSTransport reads JSON text messages from GET /ws.
type WSTransport struct {
	URL    string
	Dialer *websocket.Dialer
}

func (t *WSTransport) Connect(ctx context.Context) (Stream, error) {
	d := t.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	conn, resp, err := d.DialContext(ctx, t.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Next() (playlist.Event, error) {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return playlist.Event{}, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		var ev playlist.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		return ev, nil
	}
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

// StreamURLs derives the push endpoints from an API base URL.
func StreamURLs(apiBase string) (sse, ws string) {
	base := strings.TrimRight(apiBase, "/")
	sse = base + "/stream"
	switch {
	case strings.HasPrefix(base, "https://"):
		ws = "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		ws = "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		ws = base + "/ws"
	}
	return sse, ws
}
