// Package position computes fractional ordering keys for playlist items.
//
// Items are ordered by a float64 key. Inserting between two neighbours takes
// the midpoint, so no other item ever has to be renumbered.
package position

import "errors"

// Seed is the key given to the first item of an empty list.
const Seed = 1.0

// ErrNoRoom is returned by AllocateStrict when float64 precision between two
// neighbours is exhausted and the midpoint collapses onto one of them.
var ErrNoRoom = errors.New("position: no room between neighbours")

// Allocate returns a key that sorts between prev and next. A nil neighbour
// means the list ends on that side.
func Allocate(prev, next *float64) float64 {
	switch {
	case prev == nil && next == nil:
		return Seed
	case prev == nil:
		return *next - 1
	case next == nil:
		return *prev + 1
	default:
		return (*prev + *next) / 2
	}
}

// AllocateStrict is Allocate, but fails with ErrNoRoom when the result would
// not sort strictly between the given neighbours.
func AllocateStrict(prev, next *float64) (float64, error) {
	p := Allocate(prev, next)
	if prev != nil && p <= *prev {
		return 0, ErrNoRoom
	}
	if next != nil && p >= *next {
		return 0, ErrNoRoom
	}
	return p, nil
}

// Of returns a pointer to v, for passing literal neighbours.
func Of(v float64) *float64 { return &v }
