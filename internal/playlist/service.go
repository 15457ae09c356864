package playlist

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"collab-playlist/internal/position"
)

// Publisher receives the events derived from each committed mutation.
// Publish must not block on slow subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Service applies playlist mutations atomically and publishes the events
// they produce, in commit order.
type Service struct {
	mu    sync.Mutex
	store Store
	pub   Publisher
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Store, pub Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store: store,
		pub:   pub,
		log:   log.Named("playlist"),
		now:   time.Now,
	}
}

// Tracks lists the catalog, narrowed by f.
func (s *Service) Tracks(ctx context.Context, f TrackFilter) ([]Track, error) {
	all, err := s.store.ListTracks(ctx)
	if err != nil {
		return nil, s.fail("tracks", err)
	}
	out := make([]Track, 0, len(all))
	for _, t := range all {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Playlist returns every item ordered by position ascending.
func (s *Service) Playlist(ctx context.Context) ([]Item, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, s.fail("playlist", err)
	}
	return items, nil
}

// Add appends trackID after the current last item.
func (s *Service) Add(ctx context.Context, trackID, addedBy string) (Item, []Event, error) {
	trackID = strings.TrimSpace(trackID)
	if trackID == "" {
		return Item{}, nil, fmt.Errorf("%w: track_id is required", ErrInvalidRequest)
	}
	addedBy = strings.TrimSpace(addedBy)
	if addedBy == "" {
		addedBy = DefaultAddedBy
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var created Item
	var items []Item
	err := s.store.WithTx(ctx, func(tx Tx) error {
		track, err := tx.GetTrack(ctx, trackID)
		if err != nil {
			return err
		}
		dup, err := tx.HasTrack(ctx, trackID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateTrack
		}
		last, err := tx.LastPosition(ctx)
		if err != nil {
			return err
		}
		created, err = tx.Insert(ctx, Item{
			TrackID:  trackID,
			Track:    summarize(track),
			Position: position.Allocate(last, nil),
			AddedBy:  addedBy,
			AddedAt:  s.now().UTC(),
		})
		if err != nil {
			return err
		}
		items, err = tx.Items(ctx)
		return err
	})
	if err != nil {
		return Item{}, nil, s.fail("add", err)
	}

	events := []Event{TrackAdded(created), Reordered(items)}
	s.publish(ctx, events)
	return created, events, nil
}

// Remove deletes the item with id.
func (s *Service) Remove(ctx context.Context, id string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []Item
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		var err error
		items, err = tx.Items(ctx)
		return err
	})
	if err != nil {
		return nil, s.fail("remove", err)
	}

	events := []Event{TrackRemoved(id), Reordered(items)}
	s.publish(ctx, events)
	return events, nil
}

// Vote changes the vote count of id by exactly one and returns the new count.
func (s *Service) Vote(ctx context.Context, id, direction string) (int, []Event, error) {
	dir, err := ParseDirection(direction)
	if err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var votes int
	var items []Item
	err = s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		if votes, err = tx.AddVotes(ctx, id, dir.Delta()); err != nil {
			return err
		}
		items, err = tx.Items(ctx)
		return err
	})
	if err != nil {
		return 0, nil, s.fail("vote", err)
	}

	events := []Event{TrackVoted(id, votes), Reordered(items)}
	s.publish(ctx, events)
	return votes, events, nil
}

// Move sets the position of id to pos, computed by the caller from the
// neighbours it observed.
func (s *Service) Move(ctx context.Context, id string, pos float64) (Item, []Event, error) {
	if math.IsNaN(pos) || math.IsInf(pos, 0) {
		return Item{}, nil, fmt.Errorf("%w: position must be a finite number", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var moved Item
	var items []Item
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.SetPosition(ctx, id, pos); err != nil {
			return err
		}
		var err error
		if moved, err = tx.Item(ctx, id); err != nil {
			return err
		}
		items, err = tx.Items(ctx)
		return err
	})
	if err != nil {
		return Item{}, nil, s.fail("move", err)
	}

	events := []Event{TrackMoved(id, pos), Reordered(items)}
	s.publish(ctx, events)
	return moved, events, nil
}

// SetPlaying marks id as the only playing item.
func (s *Service) SetPlaying(ctx context.Context, id string) (Item, []Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var playing Item
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.SetPlaying(ctx, id, s.now().UTC()); err != nil {
			return err
		}
		var err error
		playing, err = tx.Item(ctx, id)
		return err
	})
	if err != nil {
		return Item{}, nil, s.fail("play", err)
	}

	events := []Event{TrackPlaying(id)}
	s.publish(ctx, events)
	return playing, events, nil
}

// Update is a partial item update. IsPlaying=true is applied before
// Position; IsPlaying=false is ignored.
type Update struct {
	Position  *float64
	IsPlaying *bool
}

// Update applies u to id and returns every event it produced.
func (s *Service) Update(ctx context.Context, id string, u Update) ([]Event, error) {
	if u.Position != nil && (math.IsNaN(*u.Position) || math.IsInf(*u.Position, 0)) {
		return nil, fmt.Errorf("%w: position must be a finite number", ErrInvalidRequest)
	}

	var events []Event
	applied := false
	if u.IsPlaying != nil && *u.IsPlaying {
		_, evs, err := s.SetPlaying(ctx, id)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
		applied = true
	}
	if u.Position != nil {
		_, evs, err := s.Move(ctx, id, *u.Position)
		if err != nil {
			return events, err
		}
		events = append(events, evs...)
		applied = true
	}
	if !applied {
		if err := s.exists(ctx, id); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (s *Service) exists(ctx context.Context, id string) error {
	items, err := s.Playlist(ctx)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.ID == id {
			return nil
		}
	}
	return ErrNotFound
}

// Seed replaces the catalog and playlist with the demo data set.
func (s *Service) Seed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := SeedDemo(ctx, s.store, s.now().UTC()); err != nil {
		return s.fail("seed", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, events []Event) {
	if s.pub == nil {
		return
	}
	for _, ev := range events {
		s.pub.Publish(ctx, ev)
	}
}

// fail logs storage failures. Domain errors pass through untouched.
func (s *Service) fail(op string, err error) error {
	if IsDomainError(err) {
		return err
	}
	s.log.Error("playlist operation failed", zap.String("op", op), zap.Error(err))
	return err
}

// IsDomainError reports whether err belongs to the client-facing taxonomy
// rather than being an unexpected storage failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrDuplicateTrack) ||
		errors.Is(err, ErrNotFound)
}
