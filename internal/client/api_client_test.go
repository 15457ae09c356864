package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-playlist/internal/api"
	"collab-playlist/internal/playlist"
	"collab-playlist/internal/realtime"
)

// startServer runs the real playlist API over httptest and returns its
// API base URL.
func startServer(t *testing.T) string {
	t.Helper()
	base, _ := startServerWith(t, api.Options{})
	return base
}

func startServerWith(t *testing.T, opts api.Options) (string, *playlist.Service) {
	t.Helper()
	store := playlist.NewMemoryStore()
	require.NoError(t, store.Seed(context.Background(), playlist.SeedTracks(), nil))

	hub := realtime.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	svc := playlist.NewService(store, hub, nil)
	stream := realtime.NewServer(hub, time.Hour, "*", nil)
	srv := api.NewServer(svc, hub, stream, opts, nil)

	server := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return server.URL + "/api", svc
}

func TestAPIClient_Flow(t *testing.T) {
	ctx := context.Background()
	c := NewAPIClient(startServer(t), nil)

	tracks, err := c.Tracks(ctx, playlist.TrackFilter{Genre: "Classical", Query: "moon"})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "track-36", tracks[0].ID)

	a, err := c.Add(ctx, "track-1", "Ana")
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.Position)
	assert.Equal(t, "Ana", a.AddedBy)

	b, err := c.Add(ctx, "track-2", "")
	require.NoError(t, err)
	assert.Equal(t, 2.0, b.Position)
	assert.Equal(t, playlist.DefaultAddedBy, b.AddedBy)

	votes, err := c.Vote(ctx, b.ID, "up")
	require.NoError(t, err)
	assert.Equal(t, 1, votes)

	half := 0.5
	require.NoError(t, c.Update(ctx, b.ID, UpdateRequest{Position: &half}))
	playing := true
	require.NoError(t, c.Update(ctx, a.ID, UpdateRequest{IsPlaying: &playing}))

	items, err := c.Playlist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, itemIDs(items))
	assert.True(t, items[1].IsPlaying)

	require.NoError(t, c.Remove(ctx, a.ID))
	items, err = c.Playlist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, itemIDs(items))
}

func TestAPIClient_Errors(t *testing.T) {
	ctx := context.Background()
	c := NewAPIClient(startServer(t), nil)

	_, err := c.Add(ctx, "track-1", "")
	require.NoError(t, err)

	_, err = c.Add(ctx, "track-1", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
	assert.Equal(t, api.CodeDuplicateTrack, apiErr.Code)
	assert.True(t, apiErr.Permanent())

	_, err = c.Vote(ctx, "missing", "up")
	assert.True(t, IsNotFound(err))

	items, err := c.Playlist(ctx)
	require.NoError(t, err)
	_, err = c.Vote(ctx, items[0].ID, "sideways")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.CodeInvalidRequest, apiErr.Code)
	assert.False(t, errors.Is(err, ErrTransport))
}

func TestAPIClient_RateLimited(t *testing.T) {
	ctx := context.Background()
	base, svc := startServerWith(t, api.Options{RateLimitRPS: 1})
	it, _, err := svc.Add(ctx, "track-1", "")
	require.NoError(t, err)

	c := NewAPIClient(base, nil)
	_, err = c.Vote(ctx, it.ID, "up")
	require.NoError(t, err)

	_, err = c.Vote(ctx, it.ID, "up")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, api.CodeRateLimited, apiErr.Code)
	assert.Equal(t, time.Second, apiErr.RetryAfter)
	assert.False(t, apiErr.Permanent())
}

func TestAPIError_Permanent(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
		{http.StatusConflict, true},
		{http.StatusRequestEntityTooLarge, true},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.permanent, (&APIError{Status: tt.status}).Permanent())
		})
	}
}

func TestAPIClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(nil)
	base := server.URL + "/api"
	server.Close()

	_, err := NewAPIClient(base, nil).Playlist(context.Background())
	assert.ErrorIs(t, err, ErrTransport)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
