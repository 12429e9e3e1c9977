// -----------------------------------------------------------------------
// Push adapter - event-bus-driven delivery with per-topic throttling
// -----------------------------------------------------------------------

package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/penmanapp/penman/internal/interfaces"
)

// PushAdapter delivers topic snapshots when the event bus signals a change.
// Bursts of job events are collapsed by a per-topic rate limiter so a fast
// pipeline cannot flood subscribers. Implements StatusAdapter.
type PushAdapter struct {
	queue  interfaces.JobQueue
	events interfaces.EventService
	logger arbor.ILogger

	mu         sync.RWMutex
	callbacks  map[string]interfaces.StatusCallback
	throttlers map[string]*rate.Limiter
	throttle   time.Duration
	wired      bool
}

// NewPushAdapter creates the push adapter. throttle is the minimum interval
// between deliveries per topic.
func NewPushAdapter(queue interfaces.JobQueue, events interfaces.EventService, throttle time.Duration, logger arbor.ILogger) *PushAdapter {
	if throttle <= 0 {
		throttle = time.Second
	}
	return &PushAdapter{
		queue:      queue,
		events:     events,
		logger:     logger,
		callbacks:  make(map[string]interfaces.StatusCallback),
		throttlers: make(map[string]*rate.Limiter),
		throttle:   throttle,
	}
}

// Subscribe registers a callback for a topic and wires the bus subscription
// on first use. Returns an error when no event bus is available, letting the
// distributor fall back to polling.
func (a *PushAdapter) Subscribe(topic string, callback interfaces.StatusCallback) error {
	if a.events == nil {
		return fmt.Errorf("push delivery unavailable: no event bus")
	}

	a.mu.Lock()
	a.callbacks[topic] = callback
	if _, ok := a.throttlers[topic]; !ok {
		a.throttlers[topic] = rate.NewLimiter(rate.Every(a.throttle), 1)
	}
	needsWiring := !a.wired
	a.wired = true
	a.mu.Unlock()

	if needsWiring {
		if err := a.wireBus(); err != nil {
			return err
		}
	}

	// Initial snapshot so a new subscriber is not blank until the next event
	a.deliver(topic)
	return nil
}

// Unsubscribe removes a topic. The bus subscription stays in place; events
// for topics without callbacks are dropped in the handler.
func (a *PushAdapter) Unsubscribe(topic string) {
	a.mu.Lock()
	delete(a.callbacks, topic)
	a.mu.Unlock()
}

// UnsubscribeAll removes every topic
func (a *PushAdapter) UnsubscribeAll() {
	a.mu.Lock()
	a.callbacks = make(map[string]interfaces.StatusCallback)
	a.mu.Unlock()
}

// wireBus subscribes the adapter to every job lifecycle event plus queue
// change signals.
func (a *PushAdapter) wireBus() error {
	handler := func(ctx context.Context, event interfaces.Event) error {
		a.onEvent(event)
		return nil
	}

	for _, eventType := range []interfaces.EventType{
		interfaces.EventJobCreated,
		interfaces.EventJobClaimed,
		interfaces.EventJobProgress,
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventJobCancelled,
		interfaces.EventJobRetried,
		interfaces.EventQueueChanged,
	} {
		if err := a.events.Subscribe(eventType, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
		}
	}
	return nil
}

func (a *PushAdapter) onEvent(event interfaces.Event) {
	switch event.Type {
	case interfaces.EventQueueChanged:
		a.deliver(interfaces.TopicQueueStatus)
	default:
		a.deliver(interfaces.TopicJobList)
	}
}

// deliver fetches and pushes a topic snapshot, subject to the throttle.
// A throttled delivery is dropped, not queued: the next event or the poll
// fallback carries the fresher state anyway.
func (a *PushAdapter) deliver(topic string) {
	a.mu.RLock()
	callback, subscribed := a.callbacks[topic]
	limiter := a.throttlers[topic]
	a.mu.RUnlock()

	if !subscribed {
		return
	}
	if limiter != nil && !limiter.Allow() {
		return
	}

	payload, err := a.snapshot(topic)
	if err != nil {
		a.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to build push snapshot")
		return
	}
	if payload == nil {
		return
	}
	callback(topic, payload)
}

func (a *PushAdapter) snapshot(topic string) (interface{}, error) {
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
