package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"collab-playlist/internal/offline"
	"collab-playlist/internal/playlist"
	"collab-playlist/internal/position"
)

// pendingPrefix marks optimistic items the server has not confirmed yet.
const pendingPrefix = "local-"

// ErrPendingItem rejects changes to an item the server has not confirmed.
// Its id only exists on this client, so a queued request naming it could
// never apply.
var ErrPendingItem = errors.New("item is not confirmed by the server yet")

func checkConfirmed(id string) error {
	if strings.HasPrefix(id, pendingPrefix) {
		return ErrPendingItem
	}
	return nil
}

type Options struct {
	// AddedBy names this client on added tracks.
	AddedBy string
	Clock   Clock
	Log     *zap.Logger
}

// Engine keeps the local playlist in sync with the server: optimistic
// mutations, event reconciliation, reconnects and offline replay.
type Engine struct {
	api       API
	transport Transport
	queue     *offline.Queue
	clock     Clock
	log       *zap.Logger
	addedBy   string
	player    *Player

	mu      sync.Mutex
	status  Status
	items   []playlist.Item
	tracks  map[string]playlist.Track
	lastSeq int64
	stream  Stream
	changes chan struct{}

	// Owned by the Run goroutine.
	bo *backoff.ExponentialBackOff

	replayMu sync.Mutex
}

func NewEngine(api API, transport Transport, queue *offline.Queue, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if strings.TrimSpace(opts.AddedBy) == "" {
		opts.AddedBy = playlist.DefaultAddedBy
	}
	return &Engine{
		api:       api,
		transport: transport,
		queue:     queue,
		clock:     opts.Clock,
		log:       opts.Log.Named("sync"),
		addedBy:   opts.AddedBy,
		player:    &Player{},
		status:    StatusOffline,
		tracks:    make(map[string]playlist.Track),
		changes:   make(chan struct{}, 1),
		bo:        NewBackoff(),
	}
}

// Status is the current connection state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Items returns the local snapshot in canonical (position) order.
func (e *Engine) Items() []playlist.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SortForDisplay(e.items, SortManual)
}

// Display returns the local snapshot in the requested display order.
func (e *Engine) Display(mode SortMode) []playlist.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SortForDisplay(e.items, mode)
}

// LastSeq is the highest sequence number accepted on this connection.
func (e *Engine) LastSeq() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeq
}

// Changes receives a value whenever local state changes. Bursts coalesce.
func (e *Engine) Changes() <-chan struct{} { return e.changes }

func (e *Engine) Player() *Player { return e.player }

// Run keeps a push stream open until ctx is cancelled, reconnecting with
// exponential backoff.
func (e *Engine) Run(ctx context.Context) error {
	go e.runPlayer(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		e.signal(SignalDial)

		stream, err := e.transport.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				e.signal(SignalClose)
				return nil
			}
			e.log.Debug("connect failed", zap.Error(err))
			e.signal(SignalError)
			if !e.wait(ctx) {
				return nil
			}
			continue
		}

		stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
		e.online(ctx, stream)
		e.consume(stream)
		stop()
		_ = stream.Close()
		e.detach(stream)

		e.signal(SignalClose)
		if !e.wait(ctx) {
			return nil
		}
	}
}

func (e *Engine) wait(ctx context.Context) bool {
	d := e.bo.NextBackOff()
	e.log.Debug("reconnecting", zap.Duration("in", d))
	select {
	case <-ctx.Done():
		return false
	case <-e.clock.After(d):
		return true
	}
}

// online runs on every transition to online: sequence numbers restart with
// the new stream, state is refetched, then queued actions replay.
func (e *Engine) online(ctx context.Context, stream Stream) {
	e.mu.Lock()
	e.stream = stream
	e.lastSeq = 0
	e.mu.Unlock()

	e.signal(SignalOpen)
	e.bo.Reset()

	if err := e.Refresh(ctx); err != nil {
		e.log.Warn("resync failed", zap.Error(err))
	}
	go e.replay(ctx)
}

func (e *Engine) consume(stream Stream) {
	for {
		ev, err := stream.Next()
		if err != nil {
			e.log.Debug("stream ended", zap.Error(err))
			return
		}
		e.HandleEvent(ev)
	}
}

func (e *Engine) detach(stream Stream) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == stream {
		e.stream = nil
	}
}

// dropStream tears down the current stream, forcing a reconnect.
func (e *Engine) dropStream() {
	e.mu.Lock()
	s := e.stream
	e.mu.Unlock()
	if s != nil {
		_ = s.Close()
	}
}

func (e *Engine) signal(sig Signal) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := Next(e.status, sig)
	if next != e.status {
		e.log.Info("status", zap.String("from", string(e.status)), zap.String("to", string(next)), zap.Stringer("signal", sig))
		e.status = next
		e.notifyLocked()
	}
	return next
}

func (e *Engine) notifyLocked() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

// Refresh replaces the local snapshot with a full fetch.
func (e *Engine) Refresh(ctx context.Context) error {
	items, err := e.api.Playlist(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.items = items
	e.syncPlayerLocked()
	e.notifyLocked()
	e.mu.Unlock()
	return nil
}

// LoadTracks fetches the catalog and remembers it for optimistic adds.
func (e *Engine) LoadTracks(ctx context.Context, f playlist.TrackFilter) ([]playlist.Track, error) {
	tracks, err := e.api.Tracks(ctx, f)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	for _, t := range tracks {
		e.tracks[t.ID] = t
	}
	e.mu.Unlock()
	return tracks, nil
}

// HandleEvent reconciles one pushed event and reports whether it was applied.
// Pings and events at or below the last accepted sequence number are dropped.
func (e *Engine) HandleEvent(ev playlist.Event) bool {
	if !ev.Sequenced() {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if ev.EventID > 0 {
		if ev.EventID <= e.lastSeq {
			return false
		}
		e.lastSeq = ev.EventID
	}

	switch ev.Type {
	case playlist.TypePlaylistReordered:
		e.items = cloneItems(ev.Items)
		e.syncPlayerLocked()
	case playlist.TypeTrackAdded:
		if ev.Item != nil {
			e.items = upsert(dropPending(e.items, ev.Item.TrackID), *ev.Item)
		}
	case playlist.TypeTrackRemoved:
		e.items = removeItem(e.items, ev.ID)
		if e.player.Current() == ev.ID {
			e.player.Stop()
		}
	case playlist.TypeTrackMoved:
		if ev.Patch != nil && ev.Patch.Position != nil {
			e.items = patchItem(e.items, ev.Patch.ID, func(it *playlist.Item) { it.Position = *ev.Patch.Position })
		}
	case playlist.TypeTrackVoted:
		if ev.Patch != nil && ev.Patch.Votes != nil {
			e.items = patchItem(e.items, ev.Patch.ID, func(it *playlist.Item) { it.Votes = *ev.Patch.Votes })
		}
	case playlist.TypeTrackPlaying:
		e.items = setPlaying(e.items, ev.ID)
		e.startPlayerLocked(ev.ID)
	default:
		return false
	}
	e.notifyLocked()
	return true
}

// Add optimistically appends trackID under a pending id.
func (e *Engine) Add(ctx context.Context, trackID string) error {
	trackID = strings.TrimSpace(trackID)
	if trackID == "" {
		return playlist.ErrInvalidRequest
	}

	e.mu.Lock()
	for _, it := range e.items {
		if it.TrackID == trackID {
			e.mu.Unlock()
			return playlist.ErrDuplicateTrack
		}
	}
	var last *float64
	for _, it := range e.items {
		if last == nil || it.Position > *last {
			p := it.Position
			last = &p
		}
	}
	summary := playlist.TrackSummary{Title: trackID}
	if t, ok := e.tracks[trackID]; ok {
		summary = playlist.TrackSummary{Title: t.Title, Artist: t.Artist, DurationSeconds: t.DurationSeconds}
	}
	pending := playlist.Item{
		ID:       pendingPrefix + uuid.NewString(),
		TrackID:  trackID,
		Track:    summary,
		Position: position.Allocate(last, nil),
		AddedBy:  e.addedBy,
		AddedAt:  e.clock.Now().UTC(),
	}
	e.items = append(cloneItems(e.items), pending)
	e.notifyLocked()
	e.mu.Unlock()

	action := offline.Action{Type: offline.ActionAdd, TrackID: trackID, AddedBy: e.addedBy}
	return e.send(ctx, action,
		func(ctx context.Context) error {
			item, err := e.api.Add(ctx, trackID, e.addedBy)
			if err == nil {
				e.confirmAdd(pending.ID, item)
			}
			return err
		},
		func(ctx context.Context, err error) {
			e.mu.Lock()
			e.items = removeItem(e.items, pending.ID)
			e.notifyLocked()
			e.mu.Unlock()
		})
}

func (e *Engine) confirmAdd(pendingID string, item playlist.Item) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = upsert(removeItem(e.items, pendingID), item)
	e.notifyLocked()
}

// Remove optimistically deletes id; a rejected request restores the
// previous snapshot.
func (e *Engine) Remove(ctx context.Context, id string) error {
	if err := checkConfirmed(id); err != nil {
		return err
	}
	prev := e.mutate(func(items []playlist.Item) []playlist.Item {
		return removeItem(items, id)
	})
	return e.send(ctx, offline.Action{Type: offline.ActionRemove, ID: id},
		func(ctx context.Context) error { return e.api.Remove(ctx, id) },
		e.rollback(prev))
}

// Vote optimistically changes the vote count; a rejected request restores
// the previous snapshot.
func (e *Engine) Vote(ctx context.Context, id, direction string) error {
	dir, err := playlist.ParseDirection(direction)
	if err != nil {
		return err
	}
	if err := checkConfirmed(id); err != nil {
		return err
	}
	prev := e.mutate(func(items []playlist.Item) []playlist.Item {
		return patchItem(items, id, func(it *playlist.Item) { it.Votes += dir.Delta() })
	})
	return e.send(ctx, offline.Action{Type: offline.ActionVote, ID: id, Direction: string(dir)},
		func(ctx context.Context) error {
			_, err := e.api.Vote(ctx, id, string(dir))
			return err
		},
		e.rollback(prev))
}

// Play optimistically makes id the only playing item and restarts the
// player; a rejected request refetches the playlist.
func (e *Engine) Play(ctx context.Context, id string) error {
	if err := checkConfirmed(id); err != nil {
		return err
	}
	e.mutate(func(items []playlist.Item) []playlist.Item {
		return setPlaying(items, id)
	})
	e.mu.Lock()
	e.startPlayerLocked(id)
	e.mu.Unlock()

	playing := true
	return e.send(ctx, offline.Action{Type: offline.ActionPlay, ID: id},
		func(ctx context.Context) error {
			return e.api.Update(ctx, id, UpdateRequest{IsPlaying: &playing})
		},
		e.refreshOnFailure)
}

// PlayNext plays the item after the current one in position order, wrapping
// around at the end. Unconfirmed items are skipped.
func (e *Engine) PlayNext(ctx context.Context) error {
	e.mu.Lock()
	confirmed := make([]playlist.Item, 0, len(e.items))
	for _, it := range e.items {
		if checkConfirmed(it.ID) == nil {
			confirmed = append(confirmed, it)
		}
	}
	e.mu.Unlock()
	next, ok := nextToPlay(confirmed)
	if !ok {
		return nil
	}
	return e.Play(ctx, next.ID)
}

// Move drops id at index of the position-ordered list, allocating a position
// between its new neighbours.
func (e *Engine) Move(ctx context.Context, id string, index int) error {
	if err := checkConfirmed(id); err != nil {
		return err
	}
	e.mu.Lock()
	ordered := SortForDisplay(e.items, SortManual)
	e.mu.Unlock()

	rest := make([]playlist.Item, 0, len(ordered))
	found := false
	for _, it := range ordered {
		if it.ID == id {
			found = true
			continue
		}
		rest = append(rest, it)
	}
	if !found {
		return playlist.ErrNotFound
	}
	if index < 0 {
		index = 0
	}
	if index > len(rest) {
		index = len(rest)
	}

	var prev, next *float64
	if index > 0 {
		prev = position.Of(rest[index-1].Position)
	}
	if index < len(rest) {
		next = position.Of(rest[index].Position)
	}
	pos, err := position.AllocateStrict(prev, next)
	if err != nil {
		return err
	}
	return e.MoveTo(ctx, id, pos)
}

// MoveTo optimistically sets the position of id; a rejected request
// refetches the playlist.
func (e *Engine) MoveTo(ctx context.Context, id string, pos float64) error {
	if err := checkConfirmed(id); err != nil {
		return err
	}
	e.mutate(func(items []playlist.Item) []playlist.Item {
		return patchItem(items, id, func(it *playlist.Item) { it.Position = pos })
	})
	return e.send(ctx, offline.Action{Type: offline.ActionMove, ID: id, Position: position.Of(pos)},
		func(ctx context.Context) error {
			return e.api.Update(ctx, id, UpdateRequest{Position: &pos})
		},
		e.refreshOnFailure)
}

func (e *Engine) Pause() { e.player.Pause(e.clock.Now()) }
func (e *Engine) Resume() { e.player.Resume(e.clock.Now()) }
func (e *Engine) Seek(delta time.Duration) { e.player.Seek(delta, e.clock.Now()) }
func (e *Engine) Elapsed() time.Duration { return e.player.Elapsed(e.clock.Now()) }

// Pending lists the actions waiting for the next replay.
func (e *Engine) Pending(ctx context.Context) ([]offline.Action, error) {
	return e.queue.Pending(ctx)
}

// send issues call when online and queues action otherwise. A transport
// failure also queues the action and drops the stream so the reconnect loop
// takes over. Any other failure runs onFail and is returned.
func (e *Engine) send(ctx context.Context, action offline.Action, call func(context.Context) error, onFail func(context.Context, error)) error {
	if e.Status() != StatusOnline {
		return e.capture(ctx, action)
	}

	err := call(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) {
		e.log.Warn("request failed, queued for replay", zap.String("type", string(action.Type)), zap.Error(err))
		e.dropStream()
		return e.capture(ctx, action)
	}
	onFail(ctx, err)
	return err
}

func (e *Engine) capture(ctx context.Context, action offline.Action) error {
	if err := e.queue.Enqueue(ctx, action); err != nil {
		e.log.Error("offline queue write failed", zap.Error(err))
		return err
	}
	return nil
}

func (e *Engine) mutate(fn func([]playlist.Item) []playlist.Item) []playlist.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := cloneItems(e.items)
	e.items = fn(cloneItems(e.items))
	e.notifyLocked()
	return prev
}

func (e *Engine) rollback(prev []playlist.Item) func(context.Context, error) {
	return func(ctx context.Context, err error) {
		e.mu.Lock()
		e.items = prev
		e.syncPlayerLocked()
		e.notifyLocked()
		e.mu.Unlock()
		if IsNotFound(err) {
			e.refreshOnFailure(ctx, err)
		}
	}
}

func (e *Engine) refreshOnFailure(ctx context.Context, cause error) {
	if err := e.Refresh(ctx); err != nil {
		e.log.Warn("refresh after failed mutation", zap.NamedError("cause", cause), zap.Error(err))
	}
}

// replay drains the offline queue. When the server turns an action away
// with a retryable status such as 429, the rest stays queued and replay
// resumes after the Retry-After hint for as long as the engine is online.
func (e *Engine) replay(ctx context.Context) {
	e.replayMu.Lock()
	defer e.replayMu.Unlock()

	retry := NewBackoff()
	for {
		n, err := e.queue.Replay(ctx, offline.ExecutorFunc(e.execute))
		if n > 0 {
			e.log.Info("replayed offline actions", zap.Int("count", n))
			retry.Reset()
		}
		if err == nil {
			return
		}
		e.log.Warn("offline replay stopped", zap.Error(err))
		if errors.Is(err, ErrTransport) {
			e.dropStream()
			return
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || e.Status() != StatusOnline {
			return
		}
		delay := apiErr.RetryAfter
		if delay <= 0 {
			delay = retry.NextBackOff()
		}
		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(delay):
		}
	}
}

// execute replays one queued action. Optimistic state was applied when the
// action was captured, so only the request is sent. Client errors other
// than timeouts and rate limiting are permanent.
func (e *Engine) execute(ctx context.Context, a offline.Action) error {
	var err error
	switch a.Type {
	case offline.ActionAdd:
		addedBy := a.AddedBy
		if addedBy == "" {
			addedBy = e.addedBy
		}
		_, err = e.api.Add(ctx, a.TrackID, addedBy)
	case offline.ActionRemove:
		err = e.api.Remove(ctx, a.ID)
	case offline.ActionVote:
		_, err = e.api.Vote(ctx, a.ID, a.Direction)
	case offline.ActionMove:
		if a.Position == nil {
			return backoff.Permanent(playlist.ErrInvalidRequest)
		}
		err = e.api.Update(ctx, a.ID, UpdateRequest{Position: a.Position})
	case offline.ActionPlay:
		playing := true
		err = e.api.Update(ctx, a.ID, UpdateRequest{IsPlaying: &playing})
	default:
		return backoff.Permanent(offline.ErrUnknownAction)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Permanent() {
		return backoff.Permanent(err)
	}
	return err
}

func (e *Engine) runPlayer(ctx context.Context) {
	t := e.clock.NewTicker(PlayerTick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if e.player.Tick(e.clock.Now()) {
				if err := e.PlayNext(ctx); err != nil {
					e.log.Warn("auto-advance failed", zap.Error(err))
				}
			}
		}
	}
}

func (e *Engine) startPlayerLocked(id string) {
	for _, it := range e.items {
		if it.ID == id {
			e.player.Start(id, time.Duration(it.Track.DurationSeconds)*time.Second, e.clock.Now())
			return
		}
	}
}

// syncPlayerLocked follows a replaced snapshot's playing item, stopping the
// player when nothing is playing.
func (e *Engine) syncPlayerLocked() {
	for _, it := range e.items {
		if it.IsPlaying {
			if e.player.Current() != it.ID {
				e.startPlayerLocked(it.ID)
			}
			return
		}
	}
	e.player.Stop()
}

func cloneItems(items []playlist.Item) []playlist.Item {
	out := make([]playlist.Item, len(items))
	copy(out, items)
	return out
}

func removeItem(items []playlist.Item, id string) []playlist.Item {
	out := make([]playlist.Item, 0, len(items))
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

func dropPending(items []playlist.Item, trackID string) []playlist.Item {
	out := make([]playlist.Item, 0, len(items))
	for _, it := range items {
		if it.TrackID == trackID && strings.HasPrefix(it.ID, pendingPrefix) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func upsert(items []playlist.Item, item playlist.Item) []playlist.Item {
	out := cloneItems(items)
	for i := range out {
		if out[i].ID == item.ID {
			out[i] = item
			return out
		}
	}
	return append(out, item)
}

func patchItem(items []playlist.Item, id string, fn func(*playlist.Item)) []playlist.Item {
	out := cloneItems(items)
	for i := range out {
		if out[i].ID == id {
			fn(&out[i])
		}
	}
	return out
}

func setPlaying(items []playlist.Item, id string) []playlist.Item {
	out := cloneItems(items)
	for i := range out {
		out[i].IsPlaying = out[i].ID == id
	}
	return out
}
