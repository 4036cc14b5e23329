package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"chat-relay/dto"
)

// Frame is one outbound push on a room destination.
type Frame struct {
	Destination string         `json:"destination"`
	Body        dto.MessageDTO `json:"body"`
}

// Subscriber owns the bounded outbound queue of a single connection.
//
// Offer never blocks the publisher: when the queue is full the oldest
// pending frame is dropped to make room. A reader that falls behind loses
// live frames, never stalls the room, and recovers through history.
type Subscriber struct {
	SessionID string

	mu     sync.Mutex
	queue  chan Frame
	closed bool
	log    *slog.Logger
}

func NewSubscriber(sessionID string, queueSize int, log *slog.Logger) *Subscriber {
	return &Subscriber{
		SessionID: sessionID,
		queue:     make(chan Frame, queueSize),
		log:       log,
	}
}

// Frames is consumed by the connection's write loop.
// The channel is closed when the subscriber is torn down.
func (s *Subscriber) Frames() <-chan Frame {
	return s.queue
}

// Offer enqueues a frame, applying the drop-oldest overflow policy.
func (s *Subscriber) Offer(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- frame:
		return
	default:
	}

	// Queue full: evict the oldest frame, then retry once.
	select {
	case dropped := <-s.queue:
		s.log.Warn("subscriber queue full, dropping oldest frame",
			"session_id", s.SessionID,
			"dropped_destination", dropped.Destination)
	default:
	}
	select {
	case s.queue <- frame:
	default:
	}
}

// Close ends delivery and releases the write loop.
// Safe to call more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

// Destination formats the broadcast destination of a room.
func Destination(roomID int64) string {
	return fmt.Sprintf("/room/messages/%d", roomID)
}
