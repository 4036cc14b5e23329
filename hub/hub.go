// Package hub fans persisted messages out to live room subscribers.
//
// It provides at-least-once delivery to currently-subscribed connections and
// nothing to disconnected ones; clients recover missed messages through the
// history endpoint. The hub never persists anything itself.
package hub

import (
	"log/slog"
	"sync"

	"chat-relay/domain"
	"chat-relay/dto"
)

type Hub struct {
	mu        sync.RWMutex
	log       *slog.Logger
	queueSize int
	// rooms maps a room to the subscribers of its destination.
	rooms map[domain.RoomID]map[string]*Subscriber
	// sessions maps a connection to its single subscriber and the set of
	// rooms it is subscribed to, for teardown.
	sessions map[string]*session
}

type session struct {
	subscriber *Subscriber
	rooms      map[domain.RoomID]struct{}
}

func New(log *slog.Logger, queueSize int) *Hub {
	return &Hub{
		log:       log,
		queueSize: queueSize,
		rooms:     make(map[domain.RoomID]map[string]*Subscriber),
		sessions:  make(map[string]*session),
	}
}

// Register creates the per-connection subscriber. A connection registers once
// at handshake time and subscribes to room destinations afterwards.
func (h *Hub) Register(sessionID string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.sessions[sessionID]; ok {
		return existing.subscriber
	}
	subscriber := NewSubscriber(sessionID, h.queueSize, h.log)
	h.sessions[sessionID] = &session{
		subscriber: subscriber,
		rooms:      make(map[domain.RoomID]struct{}),
	}
	return subscriber
}

// Subscribe attaches a registered session to a room destination.
// Membership authorization happens in the service layer before this call.
func (h *Hub) Subscribe(sessionID string, roomID domain.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	sess.rooms[roomID] = struct{}{}

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Subscriber)
	}
	h.rooms[roomID][sessionID] = sess.subscriber
}

// Unsubscribe detaches a session from one room destination.
func (h *Hub) Unsubscribe(sessionID string, roomID domain.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach(sessionID, roomID)
	if sess, ok := h.sessions[sessionID]; ok {
		delete(sess.rooms, roomID)
	}
}

// Unregister tears a session down entirely: every room subscription is
// released and the subscriber queue is closed. It runs on every connection
// exit path, normal or not.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	for roomID := range sess.rooms {
		h.detach(sessionID, roomID)
	}
	delete(h.sessions, sessionID)
	sess.subscriber.Close()
}

// Publish delivers a persisted message to every subscriber of the room's
// destination, and only those. Delivery is non-blocking per subscriber.
func (h *Hub) Publish(roomID domain.RoomID, body dto.MessageDTO) {
	frame := Frame{Destination: Destination(int64(roomID)), Body: body}

	h.mu.RLock()
	subscribers := make([]*Subscriber, 0, len(h.rooms[roomID]))
	for _, subscriber := range h.rooms[roomID] {
		subscribers = append(subscribers, subscriber)
	}
	h.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber.Offer(frame)
	}
}

// detach assumes h.mu is held.
func (h *Hub) detach(sessionID string, roomID domain.RoomID) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}
