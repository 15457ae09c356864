package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"collab-playlist/internal/playlist"
)

// ErrTransport means the server could not be reached. Callers absorb it into
// the offline queue and the reconnect loop.
var ErrTransport = errors.New("transport failure")

// APIError is a response the server produced with an error envelope.
type APIError struct {
	Status     int
	Code       string
	Message    string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Permanent reports whether retrying the same request cannot succeed. Client
// errors are permanent except timeouts and rate limiting.
func (e *APIError) Permanent() bool {
	switch e.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// IsNotFound reports whether err is a NOT_FOUND response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// UpdateRequest is the PATCH /playlist/{id} body.
type UpdateRequest struct {
	Position  *float64 `json:"position,omitempty"`
	IsPlaying *bool    `json:"is_playing,omitempty"`
}

// API is the mutation and read surface of the playlist server.
type API interface {
	Tracks(ctx context.Context, f playlist.TrackFilter) ([]playlist.Track, error)
	Playlist(ctx context.Context) ([]playlist.Item, error)
	Add(ctx context.Context, trackID, addedBy string) (playlist.Item, error)
	Remove(ctx context.Context, id string) error
	Vote(ctx context.Context, id, direction string) (int, error)
	Update(ctx context.Context, id string, req UpdateRequest) error
}

// APIClient talks JSON over HTTP to the playlist server.
type APIClient struct {
	base string
	http *http.Client
}

// NewAPIClient targets base, e.g. "http://localhost:4000/api".
func NewAPIClient(base string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &APIClient{base: strings.TrimRight(base, "/"), http: httpClient}
}

func (c *APIClient) Tracks(ctx context.Context, f playlist.TrackFilter) ([]playlist.Track, error) {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Genre != "" {
		q.Set("genre", f.Genre)
	}
	path := "/tracks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []playlist.Track
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *APIClient) Playlist(ctx context.Context) ([]playlist.Item, error) {
	var out []playlist.Item
	err := c.do(ctx, http.MethodGet, "/playlist", nil, &out)
	return out, err
}

func (c *APIClient) Add(ctx context.Context, trackID, addedBy string) (playlist.Item, error) {
	var out playlist.Item
	err := c.do(ctx, http.MethodPost, "/playlist", map[string]string{
		"track_id": trackID,
		"added_by": addedBy,
	}, &out)
	return out, err
}

func (c *APIClient) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/playlist/"+url.PathEscape(id), nil, nil)
}

func (c *APIClient) Vote(ctx context.Context, id, direction string) (int, error) {
	var out struct {
		Votes int `json:"votes"`
	}
	err := c.do(ctx, http.MethodPost, "/playlist/"+url.PathEscape(id)+"/vote",
		map[string]string{"direction": direction}, &out)
	return out.Votes, err
}

func (c *APIClient) Update(ctx context.Context, id string, req UpdateRequest) error {
	return c.do(ctx, http.MethodPatch, "/playlist/"+url.PathEscape(id), req, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&env)
		if env.Error.Message == "" {
			env.Error.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{
			Status:     resp.StatusCode,
			Code:       env.Error.Code,
			Message:    env.Error.Message,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrTransport, method, path, err)
	}
	return nil
}

// retryAfter reads the delay-seconds form of Retry-After.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
