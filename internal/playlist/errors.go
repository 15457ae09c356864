package playlist

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks malformed or missing input. Never retried.
	ErrInvalidRequest = errors.New("invalid request")

	ErrInvalidDirection = fmt.Errorf("%w: direction must be \"up\" or \"down\"", ErrInvalidRequest)
	ErrUnknownTrack     = fmt.Errorf("%w: unknown track_id", ErrInvalidRequest)

	// ErrDuplicateTrack is returned when the track already has a playlist item.
	ErrDuplicateTrack = errors.New("this track is already in the playlist")

	// ErrNotFound is returned for a stale or unknown playlist item id.
	ErrNotFound = errors.New("playlist item not found")
)
