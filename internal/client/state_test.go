package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from Status
		sig  Signal
		want Status
	}{
		{StatusOffline, SignalDial, StatusConnecting},
		{StatusConnecting, SignalOpen, StatusOnline},
		{StatusConnecting, SignalError, StatusOffline},
		{StatusConnecting, SignalClose, StatusOffline},
		{StatusOnline, SignalError, StatusOffline},
		{StatusOnline, SignalClose, StatusOffline},

		// Everything else is a no-op.
		{StatusOnline, SignalDial, StatusOnline},
		{StatusOnline, SignalOpen, StatusOnline},
		{StatusOffline, SignalOpen, StatusOffline},
		{StatusOffline, SignalError, StatusOffline},
		{StatusConnecting, SignalDial, StatusConnecting},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+tt.sig.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.from, tt.sig))
		})
	}
}

func TestNewBackoff_Schedule(t *testing.T) {
	b := NewBackoff()

	var got []time.Duration
	for i := 0; i < 7; i++ {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}
