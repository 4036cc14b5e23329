// Package domain contains core concepts of the chat system.
// This file defines Room entities and the membership invariants.
// No runtime, network, or UI logic should be added here.
package domain

type RoomID int64

// Room groups users around a shared message stream.
// A room with no name and exactly two members is a direct-message room.
type Room struct {
	ID      RoomID
	Name    *string
	TeamID  *string
	Members []string
}

func (r *Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// AddMember is idempotent: adding a present member leaves the set unchanged.
func (r *Room) AddMember(userID string) {
	if r.HasMember(userID) {
		return
	}
	r.Members = append(r.Members, userID)
}

// RemoveMember is idempotent: removing an absent member is a no-op.
func (r *Room) RemoveMember(userID string) {
	for i, m := range r.Members {
		if m == userID {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return
		}
	}
}

// ReplaceMembers swaps the whole membership set, deduplicated.
// Full replacement avoids lost updates between concurrent editors.
func (r *Room) ReplaceMembers(userIDs []string) {
	r.Members = nil
	for _, id := range userIDs {
		r.AddMember(id)
	}
}

// IsDirect reports whether the room is an unnamed 1:1 room.
func (r *Room) IsDirect() bool {
	return r.Name == nil && len(r.Members) == 2
}

// MatchesPair reports whether the room is the direct room
// for the unordered pair (a, b).
func (r *Room) MatchesPair(a, b string) bool {
	return r.IsDirect() && r.HasMember(a) && r.HasMember(b) && a != b
}
