package notifications

import (
	"sync"
	"time"
)

// EventType represents the type of notification event
type EventType string

const (
	EventConnected         EventType = "connected"
	EventSessionState      EventType = "session-state"
	EventSessionWarning    EventType = "session-warning"
	EventScreenshotAdded   EventType = "screenshot-added"
	EventScreenshotUpdated EventType = "screenshot-updated"
	EventScreenshotDeleted EventType = "screenshot-deleted"
	EventGalleryReordered  EventType = "gallery-reordered"
	EventGalleryCleared    EventType = "gallery-cleared"
	EventGalleryLoaded     EventType = "gallery-loaded"
	EventSelectionChanged  EventType = "selection-changed"
)

// Event represents a notification event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	ID        int64     `json:"id,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Service manages subscriptions and event broadcasting for the SSE and
// websocket endpoints
type Service struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	done        chan struct{}
}

// NewService creates a new notification service
func NewService() *Service {
	return &Service{
		subscribers: make(map[chan Event]struct{}),
		done:        make(chan struct{}),
	}
}

// Subscribe creates a new subscription channel
// Returns the event channel and an unsubscribe function
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// Only close if the channel is still in subscribers map
		if _, exists := s.subscribers[ch]; exists {
			delete(s.subscribers, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Done is closed by Shutdown
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Notify broadcasts an event to all subscribers
func (s *Service) Notify(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}

// NotifySessionState sends a session-state event carrying the controller snapshot
func (s *Service) NotifySessionState(snapshot any) {
	s.Notify(Event{Type: EventSessionState, Data: snapshot})
}

// NotifySessionWarning sends a non-fatal session message, e.g. a failed
// initial navigation
func (s *Service) NotifySessionWarning(sessionID, message string) {
	s.Notify(Event{
		Type: EventSessionWarning,
		Data: map[string]any{
			"sessionId": sessionID,
			"message":   message,
		},
	})
}

// NotifyScreenshot sends a screenshot-added/updated/deleted event
func (s *Service) NotifyScreenshot(t EventType, id int64, entry any) {
	s.Notify(Event{Type: t, ID: id, Data: entry})
}

// NotifyGallery sends a collection-wide event (reordered, cleared, loaded)
func (s *Service) NotifyGallery(t EventType, data any) {
	s.Notify(Event{Type: t, Data: data})
}

// NotifySelectionChanged sends the selected ids in display order
func (s *Service) NotifySelectionChanged(ids []int64) {
	s.Notify(Event{
		Type: EventSelectionChanged,
		Data: map[string]any{"ids": ids},
	})
}

// Shutdown closes the notification service
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)

	// Close all subscriber channels
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Event]struct{})
}

// SubscriberCount returns the number of active subscribers
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
