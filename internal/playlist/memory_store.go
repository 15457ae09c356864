package playlist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the catalog and playlist in process memory. Transactions
// run on a private copy that replaces the live state only on success.
type MemoryStore struct {
	mu     sync.RWMutex
	tracks map[string]Track
	items  map[string]Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tracks: make(map[string]Track),
		items:  make(map[string]Item),
	}
}

func (m *MemoryStore) ListTracks(ctx context.Context) ([]Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Track, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetTrack(ctx context.Context, id string) (Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tracks[id]
	if !ok {
		return Track{}, ErrUnknownTrack
	}
	return t, nil
}

func (m *MemoryStore) ListItems(ctx context.Context) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot(m.items), nil
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := make(map[string]Item, len(m.items))
	for id, it := range m.items {
		work[id] = it
	}
	if err := fn(&memTx{tracks: m.tracks, items: work}); err != nil {
		return err
	}
	m.items = work
	return nil
}

func (m *MemoryStore) Seed(ctx context.Context, tracks []Track, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracks = make(map[string]Track, len(tracks))
	for _, t := range tracks {
		m.tracks[t.ID] = t
	}
	m.items = make(map[string]Item, len(items))
	for _, it := range items {
		t, ok := m.tracks[it.TrackID]
		if !ok {
			return ErrUnknownTrack
		}
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.Track = summarize(t)
		m.items[it.ID] = it
	}
	return nil
}

func snapshot(items map[string]Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	sortItems(out)
	return out
}

type memTx struct {
	tracks map[string]Track
	items  map[string]Item
}

func (tx *memTx) GetTrack(ctx context.Context, id string) (Track, error) {
	t, ok := tx.tracks[id]
	if !ok {
		return Track{}, ErrUnknownTrack
	}
	return t, nil
}

func (tx *memTx) Items(ctx context.Context) ([]Item, error) {
	return snapshot(tx.items), nil
}

func (tx *memTx) Item(ctx context.Context, id string) (Item, error) {
	it, ok := tx.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (tx *memTx) HasTrack(ctx context.Context, trackID string) (bool, error) {
	for _, it := range tx.items {
		if it.TrackID == trackID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) LastPosition(ctx context.Context) (*float64, error) {
	var last *float64
	for _, it := range tx.items {
		if last == nil || it.Position > *last {
			p := it.Position
			last = &p
		}
	}
	return last, nil
}

func (tx *memTx) Insert(ctx context.Context, it Item) (Item, error) {
	if dup, _ := tx.HasTrack(ctx, it.TrackID); dup {
		return Item{}, ErrDuplicateTrack
	}
	t, err := tx.GetTrack(ctx, it.TrackID)
	if err != nil {
		return Item{}, err
	}
	it.ID = uuid.NewString()
	it.Track = summarize(t)
	tx.items[it.ID] = it
	return it, nil
}

func (tx *memTx) Delete(ctx context.Context, id string) error {
	if _, ok := tx.items[id]; !ok {
		return ErrNotFound
	}
	delete(tx.items, id)
	return nil
}

func (tx *memTx) SetPosition(ctx context.Context, id string, pos float64) error {
	it, ok := tx.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Position = pos
	tx.items[id] = it
	return nil
}

func (tx *memTx) AddVotes(ctx context.Context, id string, delta int) (int, error) {
	it, ok := tx.items[id]
	if !ok {
		return 0, ErrNotFound
	}
	it.Votes += delta
	tx.items[id] = it
	return it.Votes, nil
}

func (tx *memTx) SetPlaying(ctx context.Context, id string, at time.Time) error {
	if _, ok := tx.items[id]; !ok {
		return ErrNotFound
	}
	for key, it := range tx.items {
		if key == id {
			played := at
			it.IsPlaying = true
			it.PlayedAt = &played
		} else {
			it.IsPlaying = false
		}
		tx.items[key] = it
	}
	return nil
}
