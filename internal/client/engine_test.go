package client

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apipkg "collab-playlist/internal/api"
	"collab-playlist/internal/offline"
	"collab-playlist/internal/playlist"
	"collab-playlist/internal/position"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
	ticks  chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		ticks: make(chan time.Time),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After records d and fires immediately.
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) NewTicker(time.Duration) Ticker { return fakeTicker{c.ticks} }

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

type fakeTicker struct{ c chan time.Time }

func (t fakeTicker) C() <-chan time.Time { return t.c }
func (t fakeTicker) Stop()               {}

type fakeStream struct {
	events chan playlist.Event
	closed chan struct{}
	once   sync.Once
}

func newFakeStream(events ...playlist.Event) *fakeStream {
	s := &fakeStream{events: make(chan playlist.Event, len(events)+8), closed: make(chan struct{})}
	for _, ev := range events {
		s.events <- ev
	}
	return s
}

func (s *fakeStream) Next() (playlist.Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return playlist.Event{}, fmt.Errorf("%w: eof", ErrTransport)
		}
		return ev, nil
	case <-s.closed:
		return playlist.Event{}, fmt.Errorf("%w: closed", ErrTransport)
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// scriptedTransport hands out one scripted result per Connect, then blocks
// until the context ends.
type scriptedTransport struct {
	mu     sync.Mutex
	script []func() (Stream, error)
	dials  int
}

func (t *scriptedTransport) Connect(ctx context.Context) (Stream, error) {
	t.mu.Lock()
	i := t.dials
	t.dials++
	t.mu.Unlock()
	if i < len(t.script) {
		return t.script[i]()
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func failDial() (Stream, error) { return nil, fmt.Errorf("%w: refused", ErrTransport) }

func dialStream(s Stream) func() (Stream, error) {
	return func() (Stream, error) { return s, nil }
}

type fakeAPI struct {
	mu    sync.Mutex
	items []playlist.Item
	added playlist.Item
	errs  map[string]error
	calls []string
}

func newFakeAPI(items ...playlist.Item) *fakeAPI {
	return &fakeAPI{items: items, errs: map[string]error{}}
}

func (f *fakeAPI) record(method, call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.errs[method]
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) setErr(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakeAPI) Tracks(ctx context.Context, _ playlist.TrackFilter) ([]playlist.Track, error) {
	return playlist.SeedTracks()[:3], nil
}

func (f *fakeAPI) Playlist(ctx context.Context) ([]playlist.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneItems(f.items), f.errs["playlist"]
}

func (f *fakeAPI) Add(ctx context.Context, trackID, addedBy string) (playlist.Item, error) {
	if err := f.record("add", "add "+trackID+" "+addedBy); err != nil {
		return playlist.Item{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.added, nil
}

func (f *fakeAPI) Remove(ctx context.Context, id string) error {
	return f.record("remove", "remove "+id)
}

func (f *fakeAPI) Vote(ctx context.Context, id, direction string) (int, error) {
	return 0, f.record("vote", "vote "+id+" "+direction)
}

func (f *fakeAPI) Update(ctx context.Context, id string, req UpdateRequest) error {
	call := "update " + id
	if req.Position != nil {
		call += fmt.Sprintf(" position=%g", *req.Position)
	}
	if req.IsPlaying != nil {
		call += " playing"
	}
	return f.record("update", call)
}

func newTestEngine(t *testing.T, api API, transport Transport) (*Engine, *fakeClock, *offline.Queue) {
	t.Helper()
	store, err := offline.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := offline.NewQueue(store, nil)
	clk := newFakeClock()
	e := NewEngine(api, transport, q, Options{Clock: clk})
	return e, clk, q
}

func goOnline(e *Engine, items ...playlist.Item) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusOnline
	e.items = items
}

func item(id string, pos float64) playlist.Item {
	return playlist.Item{
		ID:       id,
		TrackID:  "track-" + id,
		Track:    playlist.TrackSummary{Title: id, DurationSeconds: 60},
		Position: pos,
	}
}

func withSeq(ev playlist.Event, seq int64) playlist.Event {
	ev.EventID = seq
	return ev
}

func TestEngine_HandleEventDropsStaleSequences(t *testing.T) {
	e, _, _ := newTestEngine(t, newFakeAPI(), &scriptedTransport{})
	goOnline(e, item("a", 1))

	deliveries := []struct {
		seq   int64
		votes int
	}{{1, 1}, {2, 2}, {2, 20}, {1, 10}, {3, 3}}

	var applied []int64
	for _, d := range deliveries {
		if e.HandleEvent(withSeq(playlist.TrackVoted("a", d.votes), d.seq)) {
			applied = append(applied, d.seq)
		}
	}

	assert.Equal(t, []int64{1, 2, 3}, applied)
	assert.Equal(t, int64(3), e.LastSeq())
	assert.Equal(t, 3, e.Items()[0].Votes)
}

func TestEngine_HandleEventIgnoresPing(t *testing.T) {
	e, _, _ := newTestEngine(t, newFakeAPI(), &scriptedTransport{})
	assert.False(t, e.HandleEvent(playlist.Ping(time.Now())))
	assert.Zero(t, e.LastSeq())
}

func TestEngine_HandleEventReconciles(t *testing.T) {
	e, _, _ := newTestEngine(t, newFakeAPI(), &scriptedTransport{})
	goOnline(e, item("a", 1), item("b", 2))

	require.True(t, e.HandleEvent(withSeq(playlist.TrackMoved("b", 0.5), 1)))
	assert.Equal(t, []string{"b", "a"}, itemIDs(e.Items()))

	require.True(t, e.HandleEvent(withSeq(playlist.TrackAdded(item("c", 3)), 2)))
	require.True(t, e.HandleEvent(withSeq(playlist.TrackAdded(item("c", 3)), 3)), "re-delivery replaces by id")
	assert.Equal(t, []string{"b", "a", "c"}, itemIDs(e.Items()))

	require.True(t, e.HandleEvent(withSeq(playlist.TrackPlaying("a"), 4)))
	require.True(t, e.HandleEvent(withSeq(playlist.TrackPlaying("c"), 5)))
	var playing []string
	for _, it := range e.Items() {
		if it.IsPlaying {
			playing = append(playing, it.ID)
		}
	}
	assert.Equal(t, []string{"c"}, playing)
	assert.Equal(t, "c", e.Player().Current())

	require.True(t, e.HandleEvent(withSeq(playlist.TrackRemoved("b"), 6)))
	assert.Equal(t, []string{"a", "c"}, itemIDs(e.Items()))

	require.True(t, e.HandleEvent(withSeq(playlist.Reordered([]playlist.Item{item("z", 9)}), 7)))
	assert.Equal(t, []string{"z"}, itemIDs(e.Items()))
}

func TestEngine_ReconnectBackoff(t *testing.T) {
	transport := &scriptedTransport{script: []func() (Stream, error){
		failDial,
		failDial,
		failDial,
		dialStream(newFakeStream()), // online, then closes at once
		failDial,
	}}
	closing := transport.script[3]
	transport.script[3] = func() (Stream, error) {
		s, err := closing()
		close(s.(*fakeStream).events)
		return s, err
	}

	e, clk, _ := newTestEngine(t, newFakeAPI(), transport)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return len(clk.Delays()) == 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Reaching online resets the schedule.
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		1 * time.Second,
		2 * time.Second,
	}, clk.Delays())
	assert.Equal(t, StatusOffline, e.Status())
}

func TestEngine_ResetsSequenceOnReconnect(t *testing.T) {
	first := newFakeStream(withSeq(playlist.TrackVoted("a", 5), 5))
	close(first.events)
	second := newFakeStream(withSeq(playlist.TrackVoted("a", 1), 1))

	transport := &scriptedTransport{script: []func() (Stream, error){
		dialStream(first),
		dialStream(second),
	}}
	e, _, _ := newTestEngine(t, newFakeAPI(item("a", 1)), transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	require.Eventually(t, func() bool {
		items := e.Items()
		return e.Status() == StatusOnline && e.LastSeq() == 1 && len(items) == 1 && items[0].Votes == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_ReplaysQueueOnOnline(t *testing.T) {
	api := newFakeAPI()
	api.setErr("remove", &APIError{Status: 404, Code: "NOT_FOUND"})
	transport := &scriptedTransport{script: []func() (Stream, error){
		dialStream(newFakeStream()),
	}}
	e, _, q := newTestEngine(t, api, transport)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, offline.Action{Type: offline.ActionVote, ID: "a", Direction: "up"}))
	require.NoError(t, q.Enqueue(ctx, offline.Action{Type: offline.ActionRemove, ID: "b"}))
	require.NoError(t, q.Enqueue(ctx, offline.Action{Type: offline.ActionMove, ID: "c", Position: position.Of(2.5)}))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = e.Run(runCtx) }()

	require.Eventually(t, func() bool { return len(api.Calls()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"vote a up", "remove b", "update c position=2.5"}, api.Calls())

	// The rejected remove is dropped, not retried.
	require.Eventually(t, func() bool {
		pending, err := e.Pending(ctx)
		return err == nil && len(pending) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_OfflineMutationsAreQueued(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	e, _, _ := newTestEngine(t, api, &scriptedTransport{})
	e.items = []playlist.Item{item("a", 1), item("b", 2)}

	require.NoError(t, e.Vote(ctx, "a", "up"))
	require.NoError(t, e.Remove(ctx, "b"))

	assert.Empty(t, api.Calls())
	items := e.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Votes, "optimistic state is kept")

	pending, err := e.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, offline.ActionVote, pending[0].Type)
	assert.Equal(t, offline.ActionRemove, pending[1].Type)
}

func TestEngine_InvalidDirection(t *testing.T) {
	e, _, _ := newTestEngine(t, newFakeAPI(), &scriptedTransport{})
	goOnline(e, item("a", 1))
	assert.ErrorIs(t, e.Vote(context.Background(), "a", "sideways"), playlist.ErrInvalidDirection)
	assert.Zero(t, e.Items()[0].Votes)
}

func TestEngine_TransportFailureQueuesAndDrops(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.setErr("vote", fmt.Errorf("%w: reset", ErrTransport))
	e, _, _ := newTestEngine(t, api, &scriptedTransport{})
	goOnline(e, item("a", 1))
	stream := newFakeStream()
	e.stream = stream

	require.NoError(t, e.Vote(ctx, "a", "down"))

	assert.True(t, stream.isClosed())
	assert.Equal(t, -1, e.Items()[0].Votes)
	pending, err := e.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "down", pending[0].Direction)
}

func TestEngine_RejectedVoteRollsBack(t *testing.T) {
	api := newFakeAPI()
	api.setErr("vote", &APIError{Status: 400, Code: "INVALID_REQUEST"})
	e, _, _ := newTestEngine(t, api, &scriptedTransport{})
	goOnline(e, item("a", 1))

	err := e.Vote(context.Background(), "a", "up")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, e.Items()[0].Votes)
}

func TestEngine_NotFoundRollsBackAndRefreshes(t *testing.T) {
	api := newFakeAPI(item("a", 1))
	api.setErr("remove", &APIError{Status: 404, Code: "NOT_FOUND"})
	e, _, _ := newTestEngine(t, api, &scriptedTransport{})
	goOnline(e, item("a", 1), item("b", 2))

	err := e.Remove(context.Background(), "b")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, []string{"a"}, itemIDs(e.Items()), "server state wins")
}

func TestEngine_FailedMoveRefreshes(t *testing.T) {
	api := newFakeAPI(item("a", 1), item("b", 2))
	api.setErr("update", &APIError{Status: 500, Code: "SERVER_ERROR"})
	e, _, _ := newTestEngine(t, api, &scriptedTransport{})
	goOnline(e, item("a", 1), item("b", 2))

	require.Error(t, e.MoveTo(context.Background(), "a", 9))
	items := e.Items()
	assert.Equal(t, []string{"a", "b"}, itemIDs(items))
	assert.Equal(t, 1.0, items[0].Position)
}

func TestEngine_MoveAllocatesBetweenNeighbours(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	e, _, _ := newTestEngine(t, api, &scriptedTransport{})
	goOnline(e, item("a", 1), item("b", 2), item("c", 3))

	require.NoError(t, e.Move(ctx, "c", 1))
	assert.Equal(t, []string{"a", "c", "b"}, itemIDs(e.Items()))

	require.NoError(t, e.Move(ctx, "a", 99))
	assert.Equal(t, []string{"c", "b", "a"}, itemIDs(e.Items()))

	require.NoError(t, e.Move(ctx, "a", 0))
	assert.Equal(t, []string{"a", "c", "b"}, itemIDs(e.Items()))

	assert.Equal(t, []string{
		"update c position=1.5",
		"update a position=3",
		"update a position=0.5",
	}, api.Calls())

	assert.ErrorIs(t, e.Move(ctx, "missing", 0), playlist.ErrNotFound)
}

func TestEngine_MoveWithoutRoom(t *testing.T) {
	api := newFakeAPI()
	e, _, _ := newTestEngine(t, api, &scriptedTransport{})
	goOnline(e, item("a", 1), item("b", math.Nextafter(1, 2)), item("c", 5))

	assert.ErrorIs(t, e.Move(context.Background(), "c", 1), position.ErrNoRoom)
	assert.Empty(t, api.Calls())
	assert.Equal(t, 5.0, e.Items()[2].Position)
}

func TestEngine_AddConfirmsPendingItem(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.added = playlist.Item{ID: "srv-1", TrackID: "track-3", Position: 2}
	e, _, _ := newTestEngine(t, api, &scriptedTransport{})
	goOnline(e, item("a", 1))

	_, err := e.LoadTracks(ctx, playlist.TrackFilter{})
	require.NoError(t, err)
	require.NoError(t, e.Add(ctx, "track-3"))

	assert.Equal(t, []string{"a", "srv-1"}, itemIDs(e.Items()))
	assert.Equal(t, []string{"add track-3 Anonymous"}, api.Calls())

	assert.ErrorIs(t, e.Add(ctx, "track-3"), playlist.ErrDuplicateTrack)
}

func TestEngine_RejectedAddRemovesPending(t *testing.T) {
	api := newFakeAPI()
	api.setErr("add", &APIError{Status: 400, Code: "DUPLICATE_TRACK"})
	e, _, _ := newTestEngine(t, api, &scriptedTransport{})
	goOnline(e)

	require.Error(t, e.Add(context.Background(), "track-3"))
	assert.Empty(t, e.Items())
}

func TestEngine_OfflineAddResolvedByEvent(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, newFakeAPI(), &scriptedTransport{})

	require.NoError(t, e.Add(ctx, "track-3"))
	items := e.Items()
	require.Len(t, items, 1)
	assert.Contains(t, items[0].ID, pendingPrefix)
	assert.Equal(t, position.Seed, items[0].Position)

	confirmed := playlist.Item{ID: "srv-9", TrackID: "track-3", Position: 1}
	require.True(t, e.HandleEvent(withSeq(playlist.TrackAdded(confirmed), 1)))
	assert.Equal(t, []string{"srv-9"}, itemIDs(e.Items()))

	pending, err := e.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "track-3", pending[0].TrackID)
}

func TestEngine_PlayNextWraps(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	e, _, _ := newTestEngine(t, api, &scriptedTransport{})
	b := item("b", 2)
	b.IsPlaying = true
	goOnline(e, item("a", 1), b)

	require.NoError(t, e.PlayNext(ctx))
	items := e.Items()
	assert.True(t, items[0].IsPlaying)
	assert.False(t, items[1].IsPlaying)
	assert.Equal(t, "a", e.Player().Current())
	assert.Equal(t, []string{"update a playing"}, api.Calls())
}

func TestEngine_PlayerAutoAdvances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := newFakeAPI()
	e, clk, _ := newTestEngine(t, api, &scriptedTransport{})
	goOnline(e, item("a", 1), item("b", 2))

	require.NoError(t, e.Play(ctx, "a"))
	go e.runPlayer(ctx)

	clk.Advance(30 * time.Second)
	clk.ticks <- clk.Now()
	assert.Equal(t, "a", e.Player().Current(), "halfway through")

	clk.Advance(30 * time.Second)
	clk.ticks <- clk.Now()
	require.Eventually(t, func() bool { return e.Player().Current() == "b" }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"update a playing", "update b playing"}, api.Calls())
}

// throttledAPI turns away the first votes with the scripted errors.
type throttledAPI struct {
	*fakeAPI
	mu      sync.Mutex
	rejects []error
}

func (a *throttledAPI) Vote(ctx context.Context, id, direction string) (int, error) {
	a.mu.Lock()
	if len(a.rejects) > 0 {
		err := a.rejects[0]
		a.rejects = a.rejects[1:]
		a.mu.Unlock()
		_ = a.record("throttled", "throttled "+id)
		return 0, err
	}
	a.mu.Unlock()
	return a.fakeAPI.Vote(ctx, id, direction)
}

func TestEngine_ReplayWaitsOutRetryableRejections(t *testing.T) {
	ctx := context.Background()
	api := &throttledAPI{fakeAPI: newFakeAPI(), rejects: []error{
		&APIError{Status: http.StatusTooManyRequests, Code: "RATE_LIMITED", RetryAfter: 3 * time.Second},
		&APIError{Status: http.StatusRequestTimeout},
	}}
	e, clk, q := newTestEngine(t, api, &scriptedTransport{})
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, offline.Action{Type: offline.ActionVote, ID: id, Direction: "up"}))
	}
	goOnline(e)

	e.replay(ctx)

	assert.Equal(t, []string{
		"throttled a",
		"throttled a",
		"vote a up",
		"vote b up",
		"vote c up",
	}, api.Calls())
	assert.Equal(t, []time.Duration{3 * time.Second, time.Second}, clk.Delays(),
		"the Retry-After hint wins, otherwise the backoff schedule")
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEngine_ReplayKeepsQueueWhenOffline(t *testing.T) {
	ctx := context.Background()
	api := &throttledAPI{fakeAPI: newFakeAPI(), rejects: []error{
		&APIError{Status: http.StatusTooManyRequests, RetryAfter: time.Second},
	}}
	e, clk, q := newTestEngine(t, api, &scriptedTransport{})
	require.NoError(t, q.Enqueue(ctx, offline.Action{Type: offline.ActionVote, ID: "a", Direction: "up"}))
	require.NoError(t, q.Enqueue(ctx, offline.Action{Type: offline.ActionVote, ID: "b", Direction: "down"}))

	e.replay(ctx)

	assert.Empty(t, clk.Delays(), "the next online transition replays instead")
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ID)
	assert.Equal(t, "b", pending[1].ID)
}

func TestEngine_ReplayAgainstRateLimitedServer(t *testing.T) {
	ctx := context.Background()
	base, svc := startServerWith(t, apipkg.Options{RateLimitRPS: 2})
	it, _, err := svc.Add(ctx, "track-1", "")
	require.NoError(t, err)

	store, err := offline.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	q := offline.NewQueue(store, nil)
	e := NewEngine(NewAPIClient(base, nil), &scriptedTransport{}, q, Options{})

	const queued = 6
	for i := 0; i < queued; i++ {
		require.NoError(t, e.Vote(ctx, it.ID, "up"))
	}
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, queued)

	goOnline(e)
	start := time.Now()
	e.replay(ctx)

	items, err := svc.Playlist(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, queued, items[0].Votes, "no vote is lost to rate limiting")
	assert.GreaterOrEqual(t, time.Since(start), time.Second, "replay waited for the limiter")
	pending, err = q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEngine_PendingItemsRefuseMutations(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	e, _, q := newTestEngine(t, api, &scriptedTransport{})

	require.NoError(t, e.Add(ctx, "track-3"))
	pendingID := e.Items()[0].ID
	require.Contains(t, pendingID, pendingPrefix)

	assert.ErrorIs(t, e.Vote(ctx, pendingID, "up"), ErrPendingItem)
	assert.ErrorIs(t, e.Remove(ctx, pendingID), ErrPendingItem)
	assert.ErrorIs(t, e.Play(ctx, pendingID), ErrPendingItem)
	assert.ErrorIs(t, e.MoveTo(ctx, pendingID, 7), ErrPendingItem)
	assert.ErrorIs(t, e.Move(ctx, pendingID, 0), ErrPendingItem)

	items := e.Items()
	require.Len(t, items, 1)
	assert.Zero(t, items[0].Votes)
	assert.False(t, items[0].IsPlaying)
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1, "only the add is queued")
	assert.Equal(t, offline.ActionAdd, pending[0].Type)
}

func TestEngine_OfflineAddThenVoteReachesServer(t *testing.T) {
	ctx := context.Background()
	base, svc := startServerWith(t, apipkg.Options{})
	e, _, q := newTestEngine(t, NewAPIClient(base, nil), &scriptedTransport{})

	require.NoError(t, e.Add(ctx, "track-1"))
	assert.ErrorIs(t, e.Vote(ctx, e.Items()[0].ID, "up"), ErrPendingItem)

	goOnline(e)
	e.replay(ctx)
	require.NoError(t, e.Refresh(ctx))

	items := e.Items()
	require.Len(t, items, 1)
	require.NotContains(t, items[0].ID, pendingPrefix)
	require.NoError(t, e.Vote(ctx, items[0].ID, "up"))

	server, err := svc.Playlist(ctx)
	require.NoError(t, err)
	require.Len(t, server, 1)
	assert.Equal(t, 1, server[0].Votes)
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEngine_PlayNextSkipsPendingItems(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	e, _, _ := newTestEngine(t, api, &scriptedTransport{})
	b := item("b", 2)
	b.IsPlaying = true
	pending := item(pendingPrefix+"x", 3)
	goOnline(e, item("a", 1), b, pending)

	require.NoError(t, e.PlayNext(ctx))
	assert.Equal(t, "a", e.Player().Current())
	assert.Equal(t, []string{"update a playing"}, api.Calls())
}

func TestEngine_PlayerStopsWhenPlayingItemGoes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := newFakeAPI(item("b", 2))
	e, clk, _ := newTestEngine(t, api, &scriptedTransport{})
	goOnline(e, item("a", 1), item("b", 2))

	require.NoError(t, e.Play(ctx, "a"))
	require.NoError(t, e.Refresh(ctx))
	assert.Empty(t, e.Player().Current(), "snapshot without a playing item stops the player")

	go e.runPlayer(ctx)
	clk.Advance(2 * time.Minute)
	clk.ticks <- clk.Now()
	clk.ticks <- clk.Now()
	assert.Equal(t, []string{"update a playing"}, api.Calls(), "no auto-advance from a stale item")

	require.NoError(t, e.Play(ctx, "b"))
	require.True(t, e.HandleEvent(withSeq(playlist.TrackRemoved("b"), 1)))
	assert.Empty(t, e.Player().Current())
}
