package status

import (
	"sync"
	"time"
)

// VisibilityPolicy suspends status delivery for consumers that stay hidden
// beyond a grace period. The grace period absorbs quick tab switches so a
// consumer flicking away and back keeps its cadence uninterrupted.
type VisibilityPolicy struct {
	grace  time.Duration
	pause  func()
	resume func()

	mu     sync.Mutex
	timer  *time.Timer
	hidden bool
	paused bool
}

// NewVisibilityPolicy creates a policy that calls pause after the consumer
// has been hidden for the grace period, and resume when it becomes visible
// again.
func NewVisibilityPolicy(grace time.Duration, pause, resume func()) *VisibilityPolicy {
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	return &VisibilityPolicy{
		grace:  grace,
		pause:  pause,
		resume: resume,
	}
}

// SetHidden marks the consumer hidden and arms the grace timer
func (p *VisibilityPolicy) SetHidden() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hidden {
		return
	}
	p.hidden = true

	p.timer = time.AfterFunc(p.grace, func() {
		p.mu.Lock()
		if !p.hidden || p.paused {
			p.mu.Unlock()
			return
		}
		p.paused = true
		p.mu.Unlock()
		p.pause()
	})
}

// SetVisible marks the consumer visible, disarming the grace timer and
// resuming delivery if it was paused.
func (p *VisibilityPolicy) SetVisible() {
	p.mu.Lock()
	if !p.hidden {
		p.mu.Unlock()
		return
	}
	p.hidden = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	wasPaused := p.paused
	p.paused = false
	p.mu.Unlock()

	if wasPaused {
		p.resume()
	}
}

// Paused reports whether delivery is currently suspended
func (p *VisibilityPolicy) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}
