package services

import (
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"chat-relay/domain"
	"chat-relay/dto"
	"chat-relay/errors"
	"chat-relay/hub"
	"chat-relay/moderation"
	"chat-relay/repositories"

	"github.com/samber/lo"
)

// createdAtLayout matches the ISO-8601 millisecond format clients expect.
const createdAtLayout = "2006-01-02T15:04:05.000Z07:00"

// IChatService is the single entry point for room and message operations.
// Every method takes the caller identity explicitly; nothing is resolved
// from ambient state.
type IChatService interface {
	CreateRoom(callerID, name string, memberIDs []string) (dto.RoomDTO, error)
	Rooms(callerID string) ([]dto.RoomDTO, error)
	Join(callerID string, roomID domain.RoomID) (dto.RoomDTO, error)
	Leave(callerID string, roomID domain.RoomID) error
	Edit(callerID string, request dto.EditRoomRequest) (dto.RoomDTO, error)
	DeleteRoom(callerID string, roomID domain.RoomID) error

	Send(callerID string, roomID domain.RoomID, content string, attachment []byte) (dto.MessageDTO, error)
	SendPrivate(callerID, receiverID, content string) (dto.MessageDTO, error)
	History(callerID string, roomID domain.RoomID, beforeID *domain.MessageID, limit int) ([]dto.MessageDTO, error)
	LastMessages(callerID string, roomIDs []domain.RoomID) ([]dto.MessageDTO, error)
	MarkSeen(callerID string, messageID domain.MessageID) (dto.MessageDTO, error)
	DeleteMessage(callerID string, messageID domain.MessageID) error

	SubscribeRoom(callerID, sessionID string, roomID domain.RoomID) error
	Users() ([]dto.UserDTO, error)
}

type ChatService struct {
	rooms    repositories.IRoomRepository
	messages repositories.IMessageRepository
	users    repositories.IUserRepository
	hub      *hub.Hub
	censor   *moderation.Censor
	log      *slog.Logger

	// roomLocks linearizes persist+publish per room so every subscriber
	// observes one total (timestamp, id) order.
	roomLocks sync.Map // domain.RoomID -> *sync.Mutex

	// privateMu serializes direct-room creation so two concurrent private
	// sends for the same pair never create two rooms.
	privateMu sync.Mutex
}

func NewChatService(rooms repositories.IRoomRepository, messages repositories.IMessageRepository,
	users repositories.IUserRepository, h *hub.Hub, censor *moderation.Censor, log *slog.Logger) *ChatService {
	return &ChatService{
		rooms:    rooms,
		messages: messages,
		users:    users,
		hub:      h,
		censor:   censor,
		log:      log,
	}
}

// CreateRoom creates a room owned by nobody but containing the creator.
// A blank name is only valid for a 1:1 room; creating a direct room for a
// pair that already has one returns the existing room instead of a duplicate.
func (s *ChatService) CreateRoom(callerID, name string, memberIDs []string) (dto.RoomDTO, error) {
	var roomName *string
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		roomName = &trimmed
	}

	memberCount := countDistinctMembers(callerID, memberIDs)
	if roomName == nil {
		if memberCount != 2 {
			return dto.RoomDTO{}, fmt.Errorf("%w: group rooms require a name", errors.ErrInvalidArgument)
		}
		other, _ := lo.Find(memberIDs, func(id string) bool { return id != callerID })
		return s.directRoom(callerID, other)
	}

	room, err := s.rooms.CreateRoom(roomName, callerID, memberIDs)
	if err != nil {
		return dto.RoomDTO{}, err
	}
	return toRoomDTO(room), nil
}

// Rooms lists the rooms the caller belongs to. Direct rooms are displayed
// under the other member's username.
func (s *ChatService) Rooms(callerID string) ([]dto.RoomDTO, error) {
	rooms, err := s.rooms.GetRoomsForUser(callerID)
	if err != nil {
		return nil, err
	}
	return lo.Map(rooms, func(room domain.Room, _ int) dto.RoomDTO {
		return toRoomDTO(s.displayName(room, callerID))
	}), nil
}

func (s *ChatService) Join(callerID string, roomID domain.RoomID) (dto.RoomDTO, error) {
	if err := s.rooms.Join(roomID, callerID); err != nil {
		return dto.RoomDTO{}, err
	}
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return dto.RoomDTO{}, err
	}
	s.log.Info("user joined room", "user_id", callerID, "room_id", roomID)
	return toRoomDTO(room), nil
}

// Leave removes the caller from the room. An emptied room is kept;
// deletion is always explicit.
func (s *ChatService) Leave(callerID string, roomID domain.RoomID) error {
	if err := s.rooms.Leave(roomID, callerID); err != nil {
		return err
	}
	s.log.Info("user left room", "user_id", callerID, "room_id", roomID)
	return nil
}

// Edit renames a room and/or replaces its member set wholesale.
// Only current members may edit.
func (s *ChatService) Edit(callerID string, request dto.EditRoomRequest) (dto.RoomDTO, error) {
	roomID := domain.RoomID(request.ID)
	if err := s.requireMember(roomID, callerID); err != nil {
		return dto.RoomDTO{}, err
	}
	room, err := s.rooms.Edit(roomID, repositories.RoomPatch{
		Name:    request.Name,
		TeamID:  request.TeamID,
		Members: request.UserIDs,
	})
	if err != nil {
		return dto.RoomDTO{}, err
	}
	return toRoomDTO(room), nil
}

// DeleteRoom cascades in two explicit steps: messages first, then the room.
func (s *ChatService) DeleteRoom(callerID string, roomID domain.RoomID) error {
	if err := s.requireMember(roomID, callerID); err != nil {
		return err
	}
	if err := s.messages.DeleteAllInRoom(roomID); err != nil {
		return err
	}
	if err := s.rooms.Delete(roomID); err != nil {
		return err
	}
	s.log.Info("room deleted", "room_id", roomID, "deleted_by", callerID)
	return nil
}

// Send persists a message and fans it out to the room's live subscribers.
// Membership is checked against the room store at send time, not at connect
// time: a sender who left the room is rejected even on an open connection.
// Persistence always precedes publication, so a crash in between loses only
// live delivery, never data.
func (s *ChatService) Send(callerID string, roomID domain.RoomID, content string, attachment []byte) (dto.MessageDTO, error) {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return dto.MessageDTO{}, err
	}
	if !room.HasMember(callerID) {
		return dto.MessageDTO{}, fmt.Errorf("%w: user %s in room %d", errors.ErrForbidden, callerID, roomID)
	}

	if s.censor != nil {
		content = s.censor.Apply(content)
	}

	message, err := s.messages.Store(roomID, callerID, content, attachment)
	if err != nil {
		return dto.MessageDTO{}, err
	}

	messageDTO := s.toMessageDTO(message, room)
	s.hub.Publish(roomID, messageDTO)
	return messageDTO, nil
}

// SendPrivate sends into the direct room of the (caller, receiver) pair,
// creating it exactly once if it does not exist yet.
func (s *ChatService) SendPrivate(callerID, receiverID, content string) (dto.MessageDTO, error) {
	if _, err := s.users.Get(receiverID); err != nil {
		return dto.MessageDTO{}, err
	}
	room, err := s.directRoom(callerID, receiverID)
	if err != nil {
		return dto.MessageDTO{}, err
	}
	return s.Send(callerID, domain.RoomID(room.ID), content, nil)
}

// History pages backwards through a room's messages, newest first.
func (s *ChatService) History(callerID string, roomID domain.RoomID, beforeID *domain.MessageID, limit int) ([]dto.MessageDTO, error) {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasMember(callerID) {
		return nil, fmt.Errorf("%w: user %s in room %d", errors.ErrForbidden, callerID, roomID)
	}

	messages, err := s.messages.History(roomID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(messages, func(message domain.Message, _ int) dto.MessageDTO {
		return s.toMessageDTO(message, room)
	}), nil
}

// LastMessages returns the most recent message of each listed room.
// Rooms without messages are skipped.
func (s *ChatService) LastMessages(callerID string, roomIDs []domain.RoomID) ([]dto.MessageDTO, error) {
	var lasts []dto.MessageDTO
	for _, roomID := range roomIDs {
		room, err := s.rooms.GetRoom(roomID)
		if err != nil {
			return nil, err
		}
		if !room.HasMember(callerID) {
			return nil, fmt.Errorf("%w: user %s in room %d", errors.ErrForbidden, callerID, roomID)
		}
		message, err := s.messages.Last(roomID)
		if err != nil {
			if errorsIsNotFound(err) {
				continue
			}
			return nil, err
		}
		lasts = append(lasts, s.toMessageDTO(message, room))
	}
	return lasts, nil
}

// MarkSeen flips the read receipt and re-broadcasts the updated message so
// other members see the receipt live. Marking twice is a no-op success.
func (s *ChatService) MarkSeen(callerID string, messageID domain.MessageID) (dto.MessageDTO, error) {
	message, err := s.messages.Get(messageID)
	if err != nil {
		return dto.MessageDTO{}, err
	}
	room, err := s.rooms.GetRoom(message.RoomID)
	if err != nil {
		return dto.MessageDTO{}, err
	}
	if !room.HasMember(callerID) {
		return dto.MessageDTO{}, fmt.Errorf("%w: user %s in room %d", errors.ErrForbidden, callerID, message.RoomID)
	}

	updated, err := s.messages.MarkSeen(messageID)
	if err != nil {
		return dto.MessageDTO{}, err
	}
	messageDTO := s.toMessageDTO(updated, room)
	s.hub.Publish(room.ID, messageDTO)
	return messageDTO, nil
}

func (s *ChatService) DeleteMessage(callerID string, messageID domain.MessageID) error {
	message, err := s.messages.Get(messageID)
	if err != nil {
		return err
	}
	if err := s.requireMember(message.RoomID, callerID); err != nil {
		return err
	}
	return s.messages.Delete(messageID)
}

// SubscribeRoom authorizes a live subscription. Membership is re-checked here
// because it may have changed since the connection opened.
func (s *ChatService) SubscribeRoom(callerID, sessionID string, roomID domain.RoomID) error {
	if err := s.requireMember(roomID, callerID); err != nil {
		return err
	}
	s.hub.Subscribe(sessionID, roomID)
	return nil
}

func (s *ChatService) Users() ([]dto.UserDTO, error) {
	users, err := s.users.GetAll()
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(user domain.User, _ int) dto.UserDTO {
		return dto.UserDTO{ID: user.ID, Username: user.Username, Email: user.Email, Enabled: user.Enabled}
	}), nil
}

func (s *ChatService) requireMember(roomID domain.RoomID, userID string) error {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return err
	}
	if !room.HasMember(userID) {
		return fmt.Errorf("%w: user %s in room %d", errors.ErrForbidden, userID, roomID)
	}
	return nil
}

func (s *ChatService) directRoom(userA, userB string) (dto.RoomDTO, error) {
	if userA == userB {
		return dto.RoomDTO{}, fmt.Errorf("%w: a direct room needs two distinct users", errors.ErrInvalidArgument)
	}

	s.privateMu.Lock()
	defer s.privateMu.Unlock()

	existing, err := s.rooms.FindDirectRoom(userA, userB)
	if err == nil {
		return toRoomDTO(existing), nil
	}
	if !errorsIsNotFound(err) {
		return dto.RoomDTO{}, err
	}

	room, err := s.rooms.CreateRoom(nil, userA, []string{userB})
	if err != nil {
		return dto.RoomDTO{}, err
	}
	s.log.Info("direct room created", "room_id", room.ID)
	return toRoomDTO(room), nil
}

func (s *ChatService) roomLock(roomID domain.RoomID) *sync.Mutex {
	lock, _ := s.roomLocks.LoadOrStore(roomID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// displayName fills the display name of an unnamed direct room with the other
// member's username. Display only, never persisted.
func (s *ChatService) displayName(room domain.Room, callerID string) domain.Room {
	if room.Name != nil {
		return room
	}
	other, found := lo.Find(room.Members, func(id string) bool { return id != callerID })
	if found {
		if user, err := s.users.Get(other); err == nil && user.Username != "" {
			room.Name = &user.Username
			return room
		}
		room.Name = &other
		return room
	}
	fallback := fmt.Sprintf("Chat %d", room.ID)
	room.Name = &fallback
	return room
}

func (s *ChatService) toMessageDTO(message domain.Message, room domain.Room) dto.MessageDTO {
	username := message.SenderID
	if user, err := s.users.Get(message.SenderID); err == nil && user.Username != "" {
		username = user.Username
	}

	var attachment *string
	if len(message.Attachment) > 0 {
		encoded := base64.StdEncoding.EncodeToString(message.Attachment)
		attachment = &encoded
	}

	return dto.MessageDTO{
		ID:             int64(message.ID),
		ChatRoomID:     int64(message.RoomID),
		ChatRoomName:   room.Name,
		SenderID:       message.SenderID,
		SenderUsername: username,
		Content:        message.Content,
		Attachment:     attachment,
		CreatedAt:      message.CreatedAt.Format(createdAtLayout),
		Seen:           message.Seen,
	}
}

func toRoomDTO(room domain.Room) dto.RoomDTO {
	return dto.RoomDTO{
		ID:      int64(room.ID),
		Name:    room.Name,
		TeamID:  room.TeamID,
		UserIDs: room.Members,
	}
}

func countDistinctMembers(creatorID string, memberIDs []string) int {
	distinct := map[string]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		distinct[id] = struct{}{}
	}
	return len(distinct)
}

func errorsIsNotFound(err error) bool {
	return stderrors.Is(err, errors.ErrNotFound)
}
