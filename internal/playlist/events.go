package playlist

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types pushed to clients.
const (
	TypeTrackAdded        = "track.added"
	TypeTrackRemoved      = "track.removed"
	TypeTrackMoved        = "track.moved"
	TypeTrackVoted        = "track.voted"
	TypeTrackPlaying      = "track.playing"
	TypePlaylistReordered = "playlist.reordered"
	TypePing              = "ping"
)

// Event is one mutation notice. EventID is zero until the bus stamps it, and
// stays zero for pings.
type Event struct {
	Type    string
	EventID int64

	ID    string     // track.removed, track.playing
	Item  *Item      // track.added
	Patch *ItemPatch // track.moved, track.voted
	Items []Item     // playlist.reordered
	TS    time.Time  // ping
}

func TrackAdded(it Item) Event { return Event{Type: TypeTrackAdded, Item: &it} }

func TrackRemoved(id string) Event { return Event{Type: TypeTrackRemoved, ID: id} }

func TrackMoved(id string, pos float64) Event {
	return Event{Type: TypeTrackMoved, Patch: &ItemPatch{ID: id, Position: &pos}}
}

func TrackVoted(id string, votes int) Event {
	return Event{Type: TypeTrackVoted, Patch: &ItemPatch{ID: id, Votes: &votes}}
}

func TrackPlaying(id string) Event { return Event{Type: TypeTrackPlaying, ID: id} }

// Reordered carries the full authoritative playlist, ordered by position.
func Reordered(items []Item) Event {
	if items == nil {
		items = []Item{}
	}
	return Event{Type: TypePlaylistReordered, Items: items}
}

func Ping(ts time.Time) Event { return Event{Type: TypePing, TS: ts.UTC()} }

// Sequenced reports whether the event takes part in sequence ordering.
func (e Event) Sequenced() bool { return e.Type != TypePing }

// MarshalJSON writes the flat wire frame: {type, eventId?, ...fields}.
func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": e.Type}
	if e.EventID > 0 {
		m["eventId"] = e.EventID
	}
	switch e.Type {
	case TypeTrackAdded:
		m["item"] = e.Item
	case TypeTrackRemoved, TypeTrackPlaying:
		m["id"] = e.ID
	case TypeTrackMoved, TypeTrackVoted:
		m["item"] = e.Patch
	case TypePlaylistReordered:
		items := e.Items
		if items == nil {
			items = []Item{}
		}
		m["items"] = items
	case TypePing:
		m["ts"] = e.TS.Format(time.RFC3339Nano)
	}
	return json.Marshal(m)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var wire struct {
		Type    string          `json:"type"`
		EventID int64           `json:"eventId"`
		ID      string          `json:"id"`
		Item    json.RawMessage `json:"item"`
		Items   []Item          `json:"items"`
		TS      string          `json:"ts"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*e = Event{Type: wire.Type, EventID: wire.EventID, ID: wire.ID, Items: wire.Items}

	switch wire.Type {
	case TypeTrackAdded:
		var it Item
		if err := json.Unmarshal(wire.Item, &it); err != nil {
			return fmt.Errorf("decode %s item: %w", wire.Type, err)
		}
		e.Item = &it
	case TypeTrackMoved, TypeTrackVoted:
		var p ItemPatch
		if err := json.Unmarshal(wire.Item, &p); err != nil {
			return fmt.Errorf("decode %s item: %w", wire.Type, err)
		}
		e.Patch = &p
	case TypePlaylistReordered:
		if e.Items == nil {
			e.Items = []Item{}
		}
	case TypePing:
		if wire.TS != "" {
			ts, err := time.Parse(time.RFC3339Nano, wire.TS)
			if err == nil {
				e.TS = ts
			}
		}
	}
	return nil
}
