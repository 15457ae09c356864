package client

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Status is the connection state shown to the user.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOnline     Status = "online"
	StatusOffline    Status = "offline"
)

// Signal drives Status transitions.
type Signal int

const (
	// SignalDial starts a new connection attempt.
	SignalDial Signal = iota
	// SignalOpen reports the push stream is established.
	SignalOpen
	// SignalError reports a failed attempt or a broken stream.
	SignalError
	// SignalClose reports the stream ended.
	SignalClose
)

func (s Signal) String() string {
	switch s {
	case SignalDial:
		return "dial"
	case SignalOpen:
		return "open"
	case SignalError:
		return "error"
	case SignalClose:
		return "close"
	}
	return "unknown"
}

// Next is the pure transition function:
//
//	offline    --dial--> connecting
//	connecting --open--> online
//	connecting|online --error|close--> offline
//
// Any other pair leaves the status unchanged.
func Next(s Status, sig Signal) Status {
	switch sig {
	case SignalDial:
		if s == StatusOffline {
			return StatusConnecting
		}
	case SignalOpen:
		if s == StatusConnecting {
			return StatusOnline
		}
	case SignalError, SignalClose:
		if s == StatusConnecting || s == StatusOnline {
			return StatusOffline
		}
	}
	return s
}

const (
	reconnectInitial = time.Second
	reconnectMax     = 30 * time.Second
)

// NewBackoff returns the reconnect schedule: 1s, 2s, 4s ... capped at 30s,
// without jitter and without giving up. Call Reset on reaching online.
func NewBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectInitial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = reconnectMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
