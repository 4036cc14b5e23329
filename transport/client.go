package transport

import (
	"log/slog"
	"sync"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/hub"
	"chat-relay/services"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// inboundFrame is what clients write on the socket.
type inboundFrame struct {
	Type        string `json:"type"` // subscribe | unsubscribe | send
	Destination string `json:"destination"`
	RoomID      int64  `json:"roomId,omitempty"`
	Message     string `json:"message,omitempty"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// Client binds one websocket connection to one verified identity for its
// whole lifetime. The identity is fixed at handshake; inbound frames cannot
// change it.
type Client struct {
	sessionID  string
	identity   auth.Identity
	conn       *websocket.Conn
	subscriber *hub.Subscriber
	service    services.IChatService
	hub        *hub.Hub
	log        *slog.Logger

	// writeMu serializes writes between the read loop (error frames)
	// and the write loop (broadcasts, pings).
	writeMu sync.Mutex

	closeOnce sync.Once
}

func newClient(sessionID string, identity auth.Identity, conn *websocket.Conn,
	subscriber *hub.Subscriber, service services.IChatService, h *hub.Hub, log *slog.Logger) *Client {
	return &Client{
		sessionID:  sessionID,
		identity:   identity,
		conn:       conn,
		subscriber: subscriber,
		service:    service,
		hub:        h,
		log:        log,
	}
}

// readPump consumes inbound frames until the connection dies, then runs the
// guaranteed teardown path. Teardown happens on every exit, including network
// drops, so subscriptions never leak.
func (c *Client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read failed", "session_id", c.sessionID, "error", err)
			}
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame inboundFrame) {
	switch frame.Type {
	case "subscribe":
		roomID, err := c.roomID(frame)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		if err := c.service.SubscribeRoom(c.identity.UserID, c.sessionID, roomID); err != nil {
			c.log.Warn("subscription rejected",
				"session_id", c.sessionID, "user_id", c.identity.UserID, "room_id", roomID, "error", err)
			c.sendError("cannot subscribe to room")
			return
		}
	case "unsubscribe":
		roomID, err := c.roomID(frame)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.hub.Unsubscribe(c.sessionID, roomID)
	case "send":
		if frame.Destination != "" && frame.Destination != sendDestination {
			c.sendError("unknown destination")
			return
		}
		if _, err := c.service.Send(c.identity.UserID, domain.RoomID(frame.RoomID), frame.Message, nil); err != nil {
			c.log.Warn("send rejected",
				"session_id", c.sessionID, "user_id", c.identity.UserID, "room_id", frame.RoomID, "error", err)
			c.sendError("message rejected")
			return
		}
		// The sender receives its own message through the room
		// subscription, like every other member.
	default:
		c.sendError("unknown frame type")
	}
}

// roomID resolves the target room from the destination path, falling back to
// the roomId field.
func (c *Client) roomID(frame inboundFrame) (domain.RoomID, error) {
	if frame.Destination != "" {
		return roomFromDestination(frame.Destination)
	}
	return domain.RoomID(frame.RoomID), nil
}

// writePump pushes broadcast frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case frame, ok := <-c.subscriber.Frames():
			if !ok {
				// Subscriber torn down: say goodbye properly.
				c.writeMu.Lock()
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				c.writeMu.Unlock()
				return
			}
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteJSON(frame)
			c.writeMu.Unlock()
			if err != nil {
				c.log.Warn("websocket write failed", "session_id", c.sessionID, "error", err)
				return
			}
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteJSON(errorFrame{Error: reason})
}

// teardown releases every resource owned by the connection. Unregistering
// closes the subscriber queue, which in turn ends the write loop.
func (c *Client) teardown() {
	c.hub.Unregister(c.sessionID)
	c.closeConn()
	c.log.Info("websocket disconnected", "session_id", c.sessionID, "user_id", c.identity.UserID)
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}
