// -----------------------------------------------------------------------
// Poll adapter - interval snapshots with change suppression
// -----------------------------------------------------------------------

package status

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/interfaces"
)

const pollListLimit = 100

// PollAdapter delivers topic snapshots on a fixed cadence. A snapshot is
// only delivered when its content hash differs from the previous delivery,
// so an idle queue produces no traffic. Implements StatusAdapter.
type PollAdapter struct {
	queue  interfaces.JobQueue
	logger arbor.ILogger

	mu        sync.RWMutex
	callbacks map[string]interfaces.StatusCallback
	lastHash  map[string]string

	scheduler  *Scheduler
	visibility *VisibilityPolicy
}

// NewPollAdapter creates the poll adapter. interval is the tick cadence and
// grace the hidden-consumer suspension window.
func NewPollAdapter(queue interfaces.JobQueue, interval, grace time.Duration, logger arbor.ILogger) *PollAdapter {
	a := &PollAdapter{
		queue:     queue,
		logger:    logger,
		callbacks: make(map[string]interfaces.StatusCallback),
		lastHash:  make(map[string]string),
	}
	a.scheduler = NewScheduler(interval, a.tick)
	a.visibility = NewVisibilityPolicy(grace,
		func() {
			a.scheduler.Stop()
			logger.Debug().Msg("Status polling suspended for hidden consumer")
		},
		func() {
			a.scheduler.Start()
			a.tick()
			logger.Debug().Msg("Status polling resumed")
		},
	)
	return a
}

// Subscribe registers a callback for a topic. Re-subscribing a topic
// replaces its callback; an immediate snapshot is delivered on subscribe.
// A subscribe arriving while the consumer is suspended does not restart the
// scheduler; SetVisible does.
func (a *PollAdapter) Subscribe(topic string, callback interfaces.StatusCallback) error {
	a.mu.Lock()
	a.callbacks[topic] = callback
	delete(a.lastHash, topic)
	first := len(a.callbacks) == 1
	a.mu.Unlock()

	if first && !a.visibility.Paused() {
		a.scheduler.Start()
	}
	a.deliver(topic)
	return nil
}

// Unsubscribe removes a topic. The scheduler stops when no topics remain.
func (a *PollAdapter) Unsubscribe(topic string) {
	a.mu.Lock()
	delete(a.callbacks, topic)
	delete(a.lastHash, topic)
	empty := len(a.callbacks) == 0
	a.mu.Unlock()

	if empty {
		a.scheduler.Stop()
	}
}

// UnsubscribeAll removes every topic and stops the scheduler
func (a *PollAdapter) UnsubscribeAll() {
	a.mu.Lock()
	a.callbacks = make(map[string]interfaces.StatusCallback)
	a.lastHash = make(map[string]string)
	a.mu.Unlock()

	a.scheduler.Stop()
}

// SetInterval changes the poll cadence, used when the execution mode flips
func (a *PollAdapter) SetInterval(interval time.Duration) {
	a.scheduler.SetInterval(interval)
}

// SetVisible reports the consumer visible again
func (a *PollAdapter) SetVisible() { a.visibility.SetVisible() }

// SetHidden reports the consumer hidden
func (a *PollAdapter) SetHidden() { a.visibility.SetHidden() }

func (a *PollAdapter) tick() {
	a.mu.RLock()
	topics := make([]string, 0, len(a.callbacks))
	for topic := range a.callbacks {
		topics = append(topics, topic)
	}
	a.mu.RUnlock()

	for _, topic := range topics {
		a.deliver(topic)
	}
}

// deliver fetches a topic snapshot and invokes the callback when the
// content changed since the last delivery.
func (a *PollAdapter) deliver(topic string) {
	payload, err := a.snapshot(topic)
	if err != nil {
		a.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to build status snapshot")
		return
	}
	if payload == nil {
		return
	}

	hash, err := hashPayload(payload)
	if err != nil {
		a.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to hash status snapshot")
		return
	}

	a.mu.Lock()
	callback, subscribed := a.callbacks[topic]
	unchanged := subscribed && a.lastHash[topic] == hash
	if subscribed && !unchanged {
		a.lastHash[topic] = hash
	}
	a.mu.Unlock()

	if !subscribed || unchanged {
		return
	}
	callback(topic, payload)
}

func (a *PollAdapter) snapshot(topic string) (interface{}, error) {
	ctx := context.Background()
	switch topic {
	case interfaces.TopicJobList:
		jobs, total, err := a.queue.List(ctx, &interfaces.JobListOptions{Limit: pollListLimit})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"jobs": jobs, "total": total}, nil
	case interfaces.TopicQueueStatus:
		return a.queue.Stats(ctx)
	default:
		return nil, nil
	}
}

func hashPayload(payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
