package hub

import (
	"log/slog"
	"testing"

	"chat-relay/dto"

	"github.com/stretchr/testify/require"
)

func drain(subscriber *Subscriber) []Frame {
	var frames []Frame
	for {
		select {
		case frame, ok := <-subscriber.Frames():
			if !ok {
				return frames
			}
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func Test_Publish_Reaches_Only_Room_Subscribers(t *testing.T) {
	req := require.New(t)
	h := New(slog.Default(), 8)

	alice := h.Register("session-alice")
	bob := h.Register("session-bob")
	h.Subscribe("session-alice", 1)
	h.Subscribe("session-bob", 2)

	h.Publish(1, dto.MessageDTO{ID: 10, ChatRoomID: 1, Content: "hello"})

	aliceFrames := drain(alice)
	req.Len(aliceFrames, 1)
	req.Equal("/room/messages/1", aliceFrames[0].Destination)
	req.Equal(int64(10), aliceFrames[0].Body.ID)
	req.Empty(drain(bob))
}

func Test_Publish_Preserves_Order_Per_Subscriber(t *testing.T) {
	req := require.New(t)
	h := New(slog.Default(), 8)

	alice := h.Register("session-alice")
	h.Subscribe("session-alice", 1)

	for i := int64(1); i <= 3; i++ {
		h.Publish(1, dto.MessageDTO{ID: i, ChatRoomID: 1})
	}

	frames := drain(alice)
	req.Len(frames, 3)
	for i, frame := range frames {
		req.Equal(int64(i+1), frame.Body.ID)
	}
}

func Test_Overflow_Drops_Oldest_Frame(t *testing.T) {
	req := require.New(t)
	h := New(slog.Default(), 2)

	alice := h.Register("session-alice")
	h.Subscribe("session-alice", 1)

	for i := int64(1); i <= 4; i++ {
		h.Publish(1, dto.MessageDTO{ID: i, ChatRoomID: 1})
	}

	frames := drain(alice)
	req.Len(frames, 2)
	// The two newest survive, the two oldest were evicted.
	req.Equal(int64(3), frames[0].Body.ID)
	req.Equal(int64(4), frames[1].Body.ID)
}

func Test_Unsubscribe_Stops_Delivery_For_One_Room(t *testing.T) {
	req := require.New(t)
	h := New(slog.Default(), 8)

	alice := h.Register("session-alice")
	h.Subscribe("session-alice", 1)
	h.Subscribe("session-alice", 2)

	h.Unsubscribe("session-alice", 1)
	h.Publish(1, dto.MessageDTO{ID: 1, ChatRoomID: 1})
	h.Publish(2, dto.MessageDTO{ID: 2, ChatRoomID: 2})

	frames := drain(alice)
	req.Len(frames, 1)
	req.Equal(int64(2), frames[0].Body.ID)
}

func Test_Unregister_Tears_Everything_Down(t *testing.T) {
	req := require.New(t)
	h := New(slog.Default(), 8)

	alice := h.Register("session-alice")
	h.Subscribe("session-alice", 1)
	h.Subscribe("session-alice", 2)

	h.Unregister("session-alice")

	// Queue is closed and publishing is a no-op, not a panic.
	h.Publish(1, dto.MessageDTO{ID: 1, ChatRoomID: 1})
	_, open := <-alice.Frames()
	req.False(open)

	// Unregistering twice is safe.
	h.Unregister("session-alice")
}

func Test_Register_Is_Idempotent_Per_Session(t *testing.T) {
	req := require.New(t)
	h := New(slog.Default(), 8)

	first := h.Register("session-alice")
	second := h.Register("session-alice")
	req.Same(first, second)
}
