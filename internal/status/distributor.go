// -----------------------------------------------------------------------
// Status distributor - push delivery with a polling safety net
// -----------------------------------------------------------------------

package status

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/interfaces"
)

// Distributor fronts the push and poll adapters behind one subscription
// surface. Push carries the low-latency deliveries; the poll adapter keeps
// ticking underneath at the mode-driven cadence, so a snapshot the push
// throttler dropped is corrected on the next poll tick. The poll adapter's
// change suppression keeps the overlap quiet.
type Distributor struct {
	push   *PushAdapter
	poll   *PollAdapter
	logger arbor.ILogger

	mu           sync.Mutex
	pushDegraded bool
}

// NewDistributor creates the distributor over both adapters
func NewDistributor(push *PushAdapter, poll *PollAdapter, logger arbor.ILogger) *Distributor {
	return &Distributor{
		push:   push,
		poll:   poll,
		logger: logger,
	}
}

// Subscribe registers a topic callback on both adapters. A push subscription
// failure leaves polling as the only delivery path and is logged once rather
// than per subscription.
func (d *Distributor) Subscribe(topic string, callback interfaces.StatusCallback) error {
	if err := d.push.Subscribe(topic, callback); err != nil {
		d.mu.Lock()
		if !d.pushDegraded {
			d.pushDegraded = true
			d.logger.Warn().Err(err).Msg("Push delivery unavailable, relying on polling alone")
		}
		d.mu.Unlock()
	}

	return d.poll.Subscribe(topic, callback)
}

// Unsubscribe removes a topic from both adapters
func (d *Distributor) Unsubscribe(topic string) {
	d.push.Unsubscribe(topic)
	d.poll.Unsubscribe(topic)
}

// UnsubscribeAll clears both adapters
func (d *Distributor) UnsubscribeAll() {
	d.push.UnsubscribeAll()
	d.poll.UnsubscribeAll()
}

// SetPollInterval updates the poll cadence, used when the execution mode
// flips between automatic and manual.
func (d *Distributor) SetPollInterval(interval time.Duration) {
	d.poll.SetInterval(interval)
}

// SetVisible reports the dashboard consumer visible
func (d *Distributor) SetVisible() { d.poll.SetVisible() }

// SetHidden reports the dashboard consumer hidden
func (d *Distributor) SetHidden() { d.poll.SetHidden() }
