package playlist

import (
	"strings"
	"time"
)

// Track is an immutable catalog entry. Playlist operations never mutate it.
type Track struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	Album           string  `json:"album"`
	DurationSeconds int     `json:"duration_seconds"`
	Genre           *string `json:"genre"`
	CoverURL        *string `json:"cover_url"`
}

// TrackSummary is the slice of the catalog entry embedded in every item.
type TrackSummary struct {
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Item is one entry of the shared playlist. Canonical order is Position
// ascending; Votes is display data only.
type Item struct {
	ID        string       `json:"id"`
	TrackID   string       `json:"track_id"`
	Track     TrackSummary `json:"track"`
	Position  float64      `json:"position"`
	Votes     int          `json:"votes"`
	AddedBy   string       `json:"added_by"`
	IsPlaying bool         `json:"is_playing"`
	AddedAt   time.Time    `json:"added_at"`
	PlayedAt  *time.Time   `json:"played_at"`
}

// ItemPatch is the partial item carried by track.moved and track.voted.
type ItemPatch struct {
	ID       string   `json:"id"`
	Position *float64 `json:"position,omitempty"`
	Votes    *int     `json:"votes,omitempty"`
}

// Direction of a vote.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection accepts exactly "up" or "down".
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Up, Down:
		return Direction(s), nil
	}
	return "", ErrInvalidDirection
}

// Delta is the vote change applied for d.
func (d Direction) Delta() int {
	if d == Up {
		return 1
	}
	return -1
}

// DefaultAddedBy is used when an add request names nobody.
const DefaultAddedBy = "Anonymous"

// TrackFilter narrows the catalog listing.
type TrackFilter struct {
	Query string
	Genre string
}

// Match reports whether t passes the filter.
func (f TrackFilter) Match(t Track) bool {
	genre := ""
	if t.Genre != nil {
		genre = *t.Genre
	}
	if f.Genre != "" && !strings.EqualFold(f.Genre, "all") && genre != f.Genre {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Artist), q) ||
		strings.Contains(strings.ToLower(genre), q)
}

func summarize(t Track) TrackSummary {
	return TrackSummary{Title: t.Title, Artist: t.Artist, DurationSeconds: t.DurationSeconds}
}
