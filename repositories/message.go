//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
)

type IMessageRepository interface {
	Store(roomID domain.RoomID, senderID, content string, attachment []byte) (domain.Message, error)
	History(roomID domain.RoomID, beforeID *domain.MessageID, limit int) ([]domain.Message, error)
	Last(roomID domain.RoomID) (domain.Message, error)
	Get(id domain.MessageID) (domain.Message, error)
	MarkSeen(id domain.MessageID) (domain.Message, error)
	Delete(id domain.MessageID) error
	DeleteAllInRoom(roomID domain.RoomID) error
}

type MessageRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte("seq:msg"), 256)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{db: db, seq: seq, log: log}, nil
}

// Close releases the id sequence lease.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

// diskMessage is the stored representation of a message.
type diskMessage struct {
	ID         int64     `json:"id"`
	RoomID     int64     `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	Content    string    `json:"content"`
	Attachment []byte    `json:"attachment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Seen       bool      `json:"seen"`
}

// The primary key is "msg:{room_id}:{timestamp_padded}:{id_padded}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order matches (timestamp, id) order).
//  2. Disambiguate two messages persisted at the same nanosecond by id.
//
// A secondary index "msgidx:{id_padded}" points back at the primary key so
// id-addressed operations (mark seen, delete) avoid a room scan.
func messageKey(roomID domain.RoomID, at time.Time, id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("msg:%d:%019d:%020d", roomID, at.UnixNano(), id))
}

func messageIndexKey(id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("msgidx:%020d", id))
}

func messagePrefix(roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("msg:%d:", roomID))
}

// Store persists a message with a server-assigned id and timestamp.
// Client-supplied ids or timestamps are never accepted.
func (m *MessageRepository) Store(roomID domain.RoomID, senderID, content string, attachment []byte) (domain.Message, error) {
	next, err := m.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("message id allocation: %w", err)
	}

	message := domain.Message{
		ID:         domain.MessageID(next + 1),
		RoomID:     roomID,
		SenderID:   senderID,
		Content:    content,
		Attachment: attachment,
		CreatedAt:  time.Now().UTC(),
		Seen:       false,
	}

	data, err := json.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, err
	}

	key := messageKey(message.RoomID, message.CreatedAt, message.ID)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(message.ID), key)
	})
	if err != nil {
		return domain.Message{}, err
	}

	m.log.Debug("message stored", "message_id", message.ID, "room_id", roomID)
	return message, nil
}

// History returns up to limit messages ordered descending by (timestamp, id),
// optionally bounded to ids at or below beforeID for pagination.
func (m *MessageRepository) History(roomID domain.RoomID, beforeID *domain.MessageID, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key for this room, then walk back.
		seekKey := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var record diskMessage
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				if beforeID != nil && record.ID > int64(*beforeID) {
					return nil
				}
				messages = append(messages, toMessage(record))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

// Last returns the single most recent message of the room,
// or ErrNotFound when the room has no messages.
func (m *MessageRepository) Last(roomID domain.RoomID) (domain.Message, error) {
	messages, err := m.History(roomID, nil, 1)
	if err != nil {
		return domain.Message{}, err
	}
	if len(messages) == 0 {
		return domain.Message{}, fmt.Errorf("%w: no message in room %d", errors.ErrNotFound, roomID)
	}
	return messages[0], nil
}

func (m *MessageRepository) Get(id domain.MessageID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		record, _, err := m.readByID(txn, id)
		if err != nil {
			return err
		}
		message = toMessage(record)
		return nil
	})
	return message, err
}

// MarkSeen transitions the seen flag to true. The transition is monotonic and
// idempotent: marking an already-seen message is a no-op success.
func (m *MessageRepository) MarkSeen(id domain.MessageID) (domain.Message, error) {
	var message domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		record, key, err := m.readByID(txn, id)
		if err != nil {
			return err
		}
		if !record.Seen {
			record.Seen = true
			data, err := json.Marshal(record)
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
		}
		message = toMessage(record)
		return nil
	})
	return message, err
}

func (m *MessageRepository) Delete(id domain.MessageID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		_, key, err := m.readByID(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(messageIndexKey(id))
	})
}

// DeleteAllInRoom hard-deletes every message of a room. Used by room deletion
// as the first half of the explicit two-step cascade.
func (m *MessageRepository) DeleteAllInRoom(roomID domain.RoomID) error {
	// Collect first: badger forbids deleting under an open iterator.
	var keys [][]byte
	var ids []domain.MessageID
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
			err := it.Item().Value(func(val []byte) error {
				var record diskMessage
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				ids = append(ids, domain.MessageID(record.ID))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return m.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for _, id := range ids {
			if err := txn.Delete(messageIndexKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *MessageRepository) readByID(txn *badger.Txn, id domain.MessageID) (diskMessage, []byte, error) {
	item, err := txn.Get(messageIndexKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return diskMessage{}, nil, fmt.Errorf("%w: message %d", errors.ErrNotFound, id)
		}
		return diskMessage{}, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return diskMessage{}, nil, err
	}

	primary, err := txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return diskMessage{}, nil, fmt.Errorf("%w: message %d", errors.ErrNotFound, id)
		}
		return diskMessage{}, nil, err
	}
	var record diskMessage
	if err := primary.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return diskMessage{}, nil, err
	}
	return record, key, nil
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:         int64(message.ID),
		RoomID:     int64(message.RoomID),
		SenderID:   message.SenderID,
		Content:    message.Content,
		Attachment: message.Attachment,
		CreatedAt:  message.CreatedAt,
		Seen:       message.Seen,
	}
}

func toMessage(record diskMessage) domain.Message {
	return domain.Message{
		ID:         domain.MessageID(record.ID),
		RoomID:     domain.RoomID(record.RoomID),
		SenderID:   record.SenderID,
		Content:    record.Content,
		Attachment: record.Attachment,
		CreatedAt:  record.CreatedAt,
		Seen:       record.Seen,
	}
}
