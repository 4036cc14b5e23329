// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once created, except for the seen flag.
package domain

import "time"

type MessageID int64

// Message represents a chat event inside a single room.
// Within a room, messages are totally ordered by (CreatedAt, ID) ascending.
// Seen only transitions false -> true, never back.
type Message struct {
	ID         MessageID
	RoomID     RoomID
	SenderID   string
	Content    string
	Attachment []byte
	CreatedAt  time.Time
	Seen       bool
}
