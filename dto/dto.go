// Package dto defines the JSON shapes exchanged with clients,
// over both the REST surface and the websocket destinations.
package dto

// MessageDTO mirrors a persisted message for delivery.
// CreatedAt is ISO-8601; Attachment is base64 or null.
type MessageDTO struct {
	ID             int64   `json:"id"`
	ChatRoomID     int64   `json:"chatRoomId"`
	ChatRoomName   *string `json:"chatRoomName"`
	SenderID       string  `json:"senderId"`
	SenderUsername string  `json:"senderUsername"`
	Content        string  `json:"content"`
	Attachment     *string `json:"attachment"`
	CreatedAt      string  `json:"createdAt"`
	Seen           bool    `json:"seen"`
}

type RoomDTO struct {
	ID      int64   `json:"id"`
	Name    *string `json:"name"`
	TeamID  *string `json:"teamid,omitempty"`
	UserIDs []string `json:"userIds"`
}

type UserDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Enabled  bool   `json:"enabled"`
}

type CreateRoomRequest struct {
	Name    string   `json:"name"`
	UserIDs []string `json:"userIds"`
}

// RoomRef addresses an existing room in join/leave requests.
type RoomRef struct {
	ID int64 `json:"id" validate:"required"`
}

type EditRoomRequest struct {
	ID      int64    `json:"id" validate:"required"`
	Name    *string  `json:"name"`
	TeamID  *string  `json:"teamid"`
	UserIDs []string `json:"userIds"`
}

type SendMessageRequest struct {
	ChatRoomID int64  `json:"chatRoomId" validate:"required"`
	Message    string `json:"message" validate:"required"`
	Attachment *string `json:"attachment"`
}

type PrivateMessageRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	Message    string `json:"message" validate:"required"`
}
