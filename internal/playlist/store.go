package playlist

import (
	"context"
	"sort"
	"time"
)

// Catalog is the read-only track library.
type Catalog interface {
	ListTracks(ctx context.Context) ([]Track, error)
	GetTrack(ctx context.Context, id string) (Track, error)
}

// Store is durable keyed storage for playlist items. Every multi-step
// mutation runs inside WithTx and is applied atomically or not at all.
type Store interface {
	Catalog
	ListItems(ctx context.Context) ([]Item, error)
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	// Seed replaces the catalog and the playlist.
	Seed(ctx context.Context, tracks []Track, items []Item) error
}

// Tx is the view of the store inside one atomic unit.
type Tx interface {
	GetTrack(ctx context.Context, id string) (Track, error)
	Items(ctx context.Context) ([]Item, error)
	Item(ctx context.Context, id string) (Item, error)
	HasTrack(ctx context.Context, trackID string) (bool, error)
	LastPosition(ctx context.Context) (*float64, error)
	Insert(ctx context.Context, it Item) (Item, error)
	Delete(ctx context.Context, id string) error
	SetPosition(ctx context.Context, id string, pos float64) error
	AddVotes(ctx context.Context, id string, delta int) (int, error)
	// SetPlaying clears is_playing on every other item and sets it on id.
	SetPlaying(ctx context.Context, id string, at time.Time) error
}

// sortItems orders by position, breaking ties by insertion time then id.
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.AddedAt.Equal(b.AddedAt) {
			return a.AddedAt.Before(b.AddedAt)
		}
		return a.ID < b.ID
	})
}
