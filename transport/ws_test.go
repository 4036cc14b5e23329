package transport

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/hub"
	"chat-relay/repositories"
	"chat-relay/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("ws-test-secret")

type wsFixture struct {
	server  *httptest.Server
	service services.IChatService
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	rooms, err := repositories.NewRoomRepository(db, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rooms.Close() })

	messages, err := repositories.NewMessageRepository(db, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = messages.Close() })

	users := repositories.NewUserRepository(db)

	h := hub.New(log, 16)
	service := services.NewChatService(rooms, messages, users, h, nil, log)

	verifier := auth.NewJWTVerifier(testSecret, "chat-client")
	authenticator := auth.NewAuthenticator(verifier, users, time.Second, log)

	server := httptest.NewServer(NewHandler(authenticator, service, h, nil, log))
	t.Cleanup(server.Close)

	return &wsFixture{server: server, service: service}
}

func (f *wsFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	raw, err := auth.GenerateToken(testSecret, userID, userID+".name", auth.CustomClaims{}, time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?access_token=" + raw
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func Test_Handshake_Without_Token_Is_401(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	_, response, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, response.StatusCode)

	_, response, err = websocket.DefaultDialer.Dial(url+"?access_token=garbage", nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, response.StatusCode)
}

func Test_Subscribe_Then_Send_Delivers_The_Broadcast(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t)

	conn := f.dial(t, "alice")

	room, err := f.service.CreateRoom("alice", "Ops", nil)
	req.NoError(err)

	req.NoError(conn.WriteJSON(inboundFrame{Type: "subscribe", RoomID: room.ID}))
	req.NoError(conn.WriteJSON(inboundFrame{Type: "send", RoomID: room.ID, Message: "standup in 5"}))

	var frame hub.Frame
	req.NoError(conn.ReadJSON(&frame))
	req.Equal(hub.Destination(room.ID), frame.Destination)
	req.Equal("standup in 5", frame.Body.Content)
	req.Equal("alice", frame.Body.SenderID)
	req.Positive(frame.Body.ID)
}

func Test_Subscribe_Via_Destination_Path(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t)

	conn := f.dial(t, "alice")

	room, err := f.service.CreateRoom("alice", "Ops", nil)
	req.NoError(err)

	req.NoError(conn.WriteJSON(inboundFrame{Type: "subscribe", Destination: hub.Destination(room.ID)}))
	req.NoError(conn.WriteJSON(inboundFrame{Type: "send", RoomID: room.ID, Message: "via path"}))

	var frame hub.Frame
	req.NoError(conn.ReadJSON(&frame))
	req.Equal("via path", frame.Body.Content)
}

func Test_Send_To_Foreign_Room_Yields_An_Error_Frame(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t)

	room, err := f.service.CreateRoom("alice", "Ops", nil)
	req.NoError(err)

	conn := f.dial(t, "mallory")
	req.NoError(conn.WriteJSON(inboundFrame{Type: "send", RoomID: room.ID, Message: "knock knock"}))

	var failure errorFrame
	req.NoError(conn.ReadJSON(&failure))
	req.Equal("message rejected", failure.Error)

	// Nothing reached the room.
	history, err := f.service.History("alice", domain.RoomID(room.ID), nil, 10)
	req.NoError(err)
	req.Empty(history)
}

func Test_Unsubscribe_Stops_Delivery(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t)

	conn := f.dial(t, "alice")

	room, err := f.service.CreateRoom("alice", "Ops", nil)
	req.NoError(err)

	req.NoError(conn.WriteJSON(inboundFrame{Type: "subscribe", RoomID: room.ID}))
	req.NoError(conn.WriteJSON(inboundFrame{Type: "send", RoomID: room.ID, Message: "first"}))

	var frame hub.Frame
	req.NoError(conn.ReadJSON(&frame))
	req.Equal("first", frame.Body.Content)

	req.NoError(conn.WriteJSON(inboundFrame{Type: "unsubscribe", RoomID: room.ID}))
	req.NoError(conn.WriteJSON(inboundFrame{Type: "send", RoomID: room.ID, Message: "second"}))

	// The second message is persisted but never pushed to this connection.
	req.NoError(conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond)))
	req.Error(conn.ReadJSON(&frame))

	history, err := f.service.History("alice", domain.RoomID(room.ID), nil, 10)
	req.NoError(err)
	req.Len(history, 2)
}

func Test_Unknown_Frame_Type_Yields_An_Error_Frame(t *testing.T) {
	req := require.New(t)
	f := newWSFixture(t)

	conn := f.dial(t, "alice")
	req.NoError(conn.WriteJSON(inboundFrame{Type: "dance"}))

	var failure errorFrame
	req.NoError(conn.ReadJSON(&failure))
	req.Equal("unknown frame type", failure.Error)
}
