package status

import (
	"sync"
	"time"
)

// Scheduler drives a callback on a fixed interval. It carries no status
// semantics of its own; cadence and pause decisions are made by its owner.
type Scheduler struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()
	ticker   *time.Ticker
	done     chan struct{}
	running  bool
}

// NewScheduler creates a stopped scheduler
func NewScheduler(interval time.Duration, fn func()) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Scheduler{
		interval: interval,
		fn:       fn,
	}
}

// Start begins ticking. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.startLocked()
}

// Stop halts ticking. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// SetInterval changes the tick cadence, restarting the ticker if running
func (s *Scheduler) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interval == interval {
		return
	}
	s.interval = interval

	if s.running {
		s.stopLocked()
		s.startLocked()
	}
}

// Interval returns the current cadence
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Running reports whether the scheduler is ticking
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) startLocked() {
	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan struct{})
	s.running = true

	go func(ticker *time.Ticker, done chan struct{}) {
		for {
			select {
			case <-ticker.C:
				s.fn()
			case <-done:
				return
			}
		}
	}(s.ticker, s.done)
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	s.ticker.Stop()
	close(s.done)
	s.ticker = nil
	s.done = nil
	s.running = false
}
