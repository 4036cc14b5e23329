package repositories

import (
	"log/slog"
	"testing"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newRoomRepository(t *testing.T, db *badger.DB) *RoomRepository {
	t.Helper()
	repository, err := NewRoomRepository(db, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close() })
	return repository
}

func Test_CreateRoom_Always_Includes_Creator(t *testing.T) {
	req := require.New(t)
	repository := newRoomRepository(t, openTestDB(t))

	room, err := repository.CreateRoom(lo.ToPtr("Team"), "alice", nil)
	req.NoError(err)
	req.Positive(int64(room.ID))
	req.Equal([]string{"alice"}, room.Members)

	// Creator listed explicitly is not duplicated.
	room, err = repository.CreateRoom(lo.ToPtr("Other"), "alice", []string{"alice", "bob"})
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, room.Members)
}

func Test_GetRoomsForUser_Filters_By_Membership(t *testing.T) {
	req := require.New(t)
	repository := newRoomRepository(t, openTestDB(t))

	_, err := repository.CreateRoom(lo.ToPtr("A"), "alice", []string{"bob"})
	req.NoError(err)
	_, err = repository.CreateRoom(lo.ToPtr("B"), "bob", nil)
	req.NoError(err)
	_, err = repository.CreateRoom(lo.ToPtr("C"), "alice", nil)
	req.NoError(err)

	rooms, err := repository.GetRoomsForUser("alice")
	req.NoError(err)
	req.Len(rooms, 2)

	rooms, err = repository.GetRoomsForUser("clara")
	req.NoError(err)
	req.Empty(rooms)
}

func Test_Join_And_Leave_Are_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := newRoomRepository(t, openTestDB(t))

	room, err := repository.CreateRoom(lo.ToPtr("Team"), "alice", nil)
	req.NoError(err)

	req.NoError(repository.Join(room.ID, "bob"))
	req.NoError(repository.Join(room.ID, "bob"))

	fetched, err := repository.GetRoom(room.ID)
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, fetched.Members)

	req.NoError(repository.Leave(room.ID, "clara"))
	req.NoError(repository.Leave(room.ID, "bob"))
	req.NoError(repository.Leave(room.ID, "alice"))

	// Empty room survives until an explicit delete.
	fetched, err = repository.GetRoom(room.ID)
	req.NoError(err)
	req.Empty(fetched.Members)
}

func Test_Edit_Replaces_The_Whole_Member_Set(t *testing.T) {
	req := require.New(t)
	repository := newRoomRepository(t, openTestDB(t))

	room, err := repository.CreateRoom(lo.ToPtr("Team"), "alice", []string{"bob"})
	req.NoError(err)

	updated, err := repository.Edit(room.ID, RoomPatch{
		Name:    lo.ToPtr("Renamed"),
		Members: []string{"clara", "dave"},
	})
	req.NoError(err)
	req.Equal("Renamed", *updated.Name)
	req.Equal([]string{"clara", "dave"}, updated.Members)

	// Nil fields leave the room untouched.
	updated, err = repository.Edit(room.ID, RoomPatch{})
	req.NoError(err)
	req.Equal("Renamed", *updated.Name)
	req.Equal([]string{"clara", "dave"}, updated.Members)
}

func Test_FindDirectRoom(t *testing.T) {
	req := require.New(t)
	repository := newRoomRepository(t, openTestDB(t))

	_, err := repository.FindDirectRoom("alice", "bob")
	req.ErrorIs(err, errors.ErrNotFound)

	direct, err := repository.CreateRoom(nil, "alice", []string{"bob"})
	req.NoError(err)

	// Named pairs never match.
	_, err = repository.CreateRoom(lo.ToPtr("Pair"), "alice", []string{"bob"})
	req.NoError(err)

	found, err := repository.FindDirectRoom("bob", "alice")
	req.NoError(err)
	req.Equal(direct.ID, found.ID)
}

func Test_Delete_Room(t *testing.T) {
	req := require.New(t)
	repository := newRoomRepository(t, openTestDB(t))

	room, err := repository.CreateRoom(lo.ToPtr("Team"), "alice", nil)
	req.NoError(err)

	req.NoError(repository.Delete(room.ID))
	_, err = repository.GetRoom(room.ID)
	req.ErrorIs(err, errors.ErrNotFound)

	req.ErrorIs(repository.Delete(room.ID), errors.ErrNotFound)
}

func Test_User_Projection_Upsert_And_Fetch(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	req.NoError(repository.Upsert(domain.User{ID: "alice", Username: "alice", Email: "alice@corp.io", Enabled: true}))
	req.NoError(repository.Upsert(domain.User{ID: "alice", Username: "alice.renamed", Email: "alice@corp.io", Enabled: true}))
	req.NoError(repository.Upsert(domain.User{ID: "bob", Username: "bob", Enabled: true}))

	user, err := repository.Get("alice")
	req.NoError(err)
	req.Equal("alice.renamed", user.Username)

	users, err := repository.GetAll()
	req.NoError(err)
	req.Len(users, 2)

	_, err = repository.Get("clara")
	req.ErrorIs(err, errors.ErrNotFound)
}
