//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
)

type IRoomRepository interface {
	CreateRoom(name *string, creatorID string, memberIDs []string) (domain.Room, error)
	GetRoom(id domain.RoomID) (domain.Room, error)
	GetRoomsForUser(userID string) ([]domain.Room, error)
	FindDirectRoom(userA, userB string) (domain.Room, error)
	Join(id domain.RoomID, userID string) error
	Leave(id domain.RoomID, userID string) error
	Edit(id domain.RoomID, patch RoomPatch) (domain.Room, error)
	Delete(id domain.RoomID) error
}

// RoomPatch updates a room. A nil field is left untouched.
// Members is a full-set replacement, not a diff: last writer wins.
type RoomPatch struct {
	Name    *string
	TeamID  *string
	Members []string
}

type RoomRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) (*RoomRepository, error) {
	seq, err := db.GetSequence([]byte("seq:room"), 64)
	if err != nil {
		return nil, fmt.Errorf("room sequence: %w", err)
	}
	return &RoomRepository{db: db, seq: seq, log: log}, nil
}

// Close releases the id sequence lease.
func (r *RoomRepository) Close() error {
	return r.seq.Release()
}

// diskRoom is the stored representation of a room.
type diskRoom struct {
	ID      int64    `json:"id"`
	Name    *string  `json:"name"`
	TeamID  *string  `json:"team_id,omitempty"`
	Members []string `json:"members"`
}

func roomKey(id domain.RoomID) []byte {
	return []byte(fmt.Sprintf("room:%020d", id))
}

const roomPrefix = "room:"

// CreateRoom persists a new room. The creator is always a member,
// whether or not it was listed explicitly.
func (r *RoomRepository) CreateRoom(name *string, creatorID string, memberIDs []string) (domain.Room, error) {
	next, err := r.seq.Next()
	if err != nil {
		return domain.Room{}, fmt.Errorf("room id allocation: %w", err)
	}

	room := domain.Room{ID: domain.RoomID(next + 1), Name: name}
	room.AddMember(creatorID)
	for _, id := range memberIDs {
		room.AddMember(id)
	}

	if err := r.write(room); err != nil {
		return domain.Room{}, err
	}
	r.log.Info("room created", "room_id", room.ID, "members", len(room.Members))
	return room, nil
}

func (r *RoomRepository) GetRoom(id domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		found, err := readRoom(txn, id)
		room = found
		return err
	})
	return room, err
}

// GetRoomsForUser scans all rooms and keeps those the user belongs to.
// Order is unspecified; callers sort as needed.
func (r *RoomRepository) GetRoomsForUser(userID string) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.scan(func(room domain.Room) bool {
		if room.HasMember(userID) {
			rooms = append(rooms, room)
		}
		return true
	})
	return rooms, err
}

// FindDirectRoom resolves the unnamed two-member room for the unordered pair,
// or ErrNotFound when no such room exists.
func (r *RoomRepository) FindDirectRoom(userA, userB string) (domain.Room, error) {
	var found *domain.Room
	err := r.scan(func(room domain.Room) bool {
		if room.MatchesPair(userA, userB) {
			found = &room
			return false
		}
		return true
	})
	if err != nil {
		return domain.Room{}, err
	}
	if found == nil {
		return domain.Room{}, fmt.Errorf("%w: direct room for %s and %s", errors.ErrNotFound, userA, userB)
	}
	return *found, nil
}

// Join adds a member. Adding a present member is a no-op success.
func (r *RoomRepository) Join(id domain.RoomID, userID string) error {
	return r.update(id, func(room *domain.Room) {
		room.AddMember(userID)
	})
}

// Leave removes a member. Removing an absent member is a no-op success,
// and an emptied room is kept until an explicit delete.
func (r *RoomRepository) Leave(id domain.RoomID, userID string) error {
	return r.update(id, func(room *domain.Room) {
		room.RemoveMember(userID)
	})
}

func (r *RoomRepository) Edit(id domain.RoomID, patch RoomPatch) (domain.Room, error) {
	var updated domain.Room
	err := r.update(id, func(room *domain.Room) {
		if patch.Name != nil {
			room.Name = patch.Name
		}
		if patch.TeamID != nil {
			room.TeamID = patch.TeamID
		}
		if patch.Members != nil {
			room.ReplaceMembers(patch.Members)
		}
		updated = *room
	})
	return updated, err
}

// Delete removes the room record only. Cascading the messages is an explicit
// separate step owned by the service layer.
func (r *RoomRepository) Delete(id domain.RoomID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		key := roomKey(id)
		if _, err := txn.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: room %d", errors.ErrNotFound, id)
			}
			return err
		}
		return txn.Delete(key)
	})
}

func (r *RoomRepository) update(id domain.RoomID, mutate func(room *domain.Room)) error {
	return r.db.Update(func(txn *badger.Txn) error {
		room, err := readRoom(txn, id)
		if err != nil {
			return err
		}
		mutate(&room)
		return writeRoom(txn, room)
	})
}

func (r *RoomRepository) write(room domain.Room) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return writeRoom(txn, room)
	})
}

// scan iterates every stored room until visit returns false.
func (r *RoomRepository) scan(visit func(room domain.Room) bool) error {
	return r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(roomPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var stop bool
			err := it.Item().Value(func(val []byte) error {
				var record diskRoom
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				stop = !visit(toRoom(record))
				return nil
			})
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
		return nil
	})
}

func readRoom(txn *badger.Txn, id domain.RoomID) (domain.Room, error) {
	item, err := txn.Get(roomKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return domain.Room{}, fmt.Errorf("%w: room %d", errors.ErrNotFound, id)
		}
		return domain.Room{}, err
	}
	var record diskRoom
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return domain.Room{}, err
	}
	return toRoom(record), nil
}

func writeRoom(txn *badger.Txn, room domain.Room) error {
	data, err := json.Marshal(fromRoom(room))
	if err != nil {
		return err
	}
	return txn.Set(roomKey(room.ID), data)
}

func fromRoom(room domain.Room) diskRoom {
	return diskRoom{
		ID:      int64(room.ID),
		Name:    room.Name,
		TeamID:  room.TeamID,
		Members: room.Members,
	}
}

func toRoom(record diskRoom) domain.Room {
	return domain.Room{
		ID:      domain.RoomID(record.ID),
		Name:    record.Name,
		TeamID:  record.TeamID,
		Members: record.Members,
	}
}
