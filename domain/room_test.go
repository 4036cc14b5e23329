package domain

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_AddMember_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	room := Room{ID: 1}

	room.AddMember("alice")
	room.AddMember("alice")
	room.AddMember("bob")

	req.Equal([]string{"alice", "bob"}, room.Members)
}

func Test_RemoveMember_Absent_Is_Noop(t *testing.T) {
	req := require.New(t)
	room := Room{ID: 1, Members: []string{"alice", "bob"}}

	room.RemoveMember("clara")
	req.Equal([]string{"alice", "bob"}, room.Members)

	room.RemoveMember("alice")
	req.Equal([]string{"bob"}, room.Members)
}

func Test_ReplaceMembers_Deduplicates(t *testing.T) {
	req := require.New(t)
	room := Room{ID: 1, Members: []string{"alice"}}

	room.ReplaceMembers([]string{"bob", "clara", "bob"})

	req.Equal([]string{"bob", "clara"}, room.Members)
}

func Test_Direct_Room_Detection(t *testing.T) {
	tests := []struct {
		name   string
		room   Room
		direct bool
	}{
		{"unnamed pair", Room{Members: []string{"alice", "bob"}}, true},
		{"named pair", Room{Name: lo.ToPtr("Team"), Members: []string{"alice", "bob"}}, false},
		{"unnamed trio", Room{Members: []string{"alice", "bob", "clara"}}, false},
		{"unnamed single", Room{Members: []string{"alice"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.direct, tt.room.IsDirect())
		})
	}
}

func Test_MatchesPair_Is_Unordered(t *testing.T) {
	req := require.New(t)
	room := Room{Members: []string{"alice", "bob"}}

	req.True(room.MatchesPair("alice", "bob"))
	req.True(room.MatchesPair("bob", "alice"))
	req.False(room.MatchesPair("alice", "clara"))
	req.False(room.MatchesPair("alice", "alice"))
}
