package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/interfaces"
)

// Service implements EventService with a pub/sub pattern
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	handlers := s.subscribers[event.Type]
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	for _, handler := range handlers {
		go func(h interfaces.EventHandler) {
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
			}
		}(handler)
	}

	return nil
}

// PublishSync sends an event to all subscribers and waits for completion
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	handlers := s.subscribers[event.Type]
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
				errChan <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errChan)

	failed := 0
	for range errChan {
		failed++
	}
	if failed > 0 {
		return fmt.Errorf("event handlers failed: %d errors", failed)
	}

	return nil
}

// Close shuts down the event service
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
	s.logger.Info().Msg("Event service closed")

	return nil
}
