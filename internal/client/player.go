package client

import (
	"sync"
	"time"
)

// PlayerTick is how often the simulated playback advances.
const PlayerTick = 250 * time.Millisecond

// Player simulates playback of the now-playing item. It only keeps time;
// nothing is decoded or played.
type Player struct {
	mu       sync.Mutex
	id       string
	duration time.Duration
	// base is when playback would have started had it never paused.
	base     time.Time
	paused   bool
	pausedAt time.Duration
	ended    bool
}

// Start plays id from the beginning.
func (p *Player) Start(id string, duration time.Duration, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
	p.duration = duration
	p.base = now
	p.paused = false
	p.pausedAt = 0
	p.ended = false
}

// Stop leaves the player idle.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = ""
	p.duration = 0
	p.paused = false
	p.pausedAt = 0
	p.ended = false
}

// Current returns the item being played.
func (p *Player) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// Elapsed is the playback position at now, clamped to the duration.
func (p *Player) Elapsed(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed(now)
}

func (p *Player) elapsed(now time.Time) time.Duration {
	if p.id == "" {
		return 0
	}
	e := p.pausedAt
	if !p.paused {
		e = now.Sub(p.base)
	}
	return clampDuration(e, 0, p.duration)
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Pause(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused || p.id == "" {
		return
	}
	p.pausedAt = p.elapsed(now)
	p.paused = true
}

func (p *Player) Resume(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.base = now.Add(-p.pausedAt)
	p.paused = false
}

// Seek moves the position by delta, clamped to the track.
func (p *Player) Seek(delta time.Duration, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id == "" {
		return
	}
	target := clampDuration(p.elapsed(now)+delta, 0, p.duration)
	if p.paused {
		p.pausedAt = target
	} else {
		p.base = now.Add(-target)
	}
	p.ended = false
}

// Tick reports true exactly once when the current item reaches its end.
func (p *Player) Tick(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id == "" || p.paused || p.ended {
		return false
	}
	if p.elapsed(now) >= p.duration {
		p.ended = true
		return true
	}
	return false
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
