package client

import (
	"sort"

	"collab-playlist/internal/playlist"
)

// SortMode selects the display order. It never affects canonical order.
type SortMode string

const (
	SortManual SortMode = "manual"
	SortVotes  SortMode = "votes"
)

// SortForDisplay returns a sorted copy of items. Manual is position
// ascending; votes is votes descending with position as tie-break.
func SortForDisplay(items []playlist.Item, mode SortMode) []playlist.Item {
	out := make([]playlist.Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if mode == SortVotes && a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		return a.Position < b.Position
	})
	return out
}

// nextToPlay picks the item after the playing one in position order,
// wrapping to the start. With nothing playing it picks the first item.
func nextToPlay(items []playlist.Item) (playlist.Item, bool) {
	if len(items) == 0 {
		return playlist.Item{}, false
	}
	ordered := SortForDisplay(items, SortManual)
	current := -1
	for i, it := range ordered {
		if it.IsPlaying {
			current = i
			break
		}
	}
	return ordered[(current+1)%len(ordered)], true
}
