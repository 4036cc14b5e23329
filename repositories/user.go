//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
)

// IUserRepository caches a local projection of identity-provider users.
// The provider owns the user lifecycle; the projection exists for display
// names and membership checks only.
type IUserRepository interface {
	Upsert(user domain.User) error
	Get(id string) (domain.User, error)
	GetAll() ([]domain.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func (u *UserRepository) Upsert(user domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	})
}

func (u *UserRepository) Get(id string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	return user, err
}

func (u *UserRepository) GetAll() ([]domain.User, error) {
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("user:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var user domain.User
				if err := json.Unmarshal(val, &user); err != nil {
					return err
				}
				users = append(users, user)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return users, err
}
