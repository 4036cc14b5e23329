// Package api exposes the REST surface for clients without a live websocket
// connection. Sends through this surface are persisted and broadcast to
// whoever is currently subscribed; offline members catch up via history.
package api

import (
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/dto"
	"chat-relay/errors"
	"chat-relay/services"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

const defaultHistoryLimit = 10

type Handlers struct {
	service  services.IChatService
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandlers(service services.IChatService, log *slog.Logger) *Handlers {
	return &Handlers{service: service, validate: validator.New(), log: log}
}

func (h *Handlers) listRooms(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rooms, err := h.service.Rooms(caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rooms)
}

func (h *Handlers) lastMessages(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	roomIDs, err := parseRoomIDs(r.URL.Query().Get("chatRoomIds"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	messages, err := h.service.LastMessages(caller, roomIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *Handlers) createRoom(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var request dto.CreateRoomRequest
	if err := h.decode(r, &request); err != nil {
		h.writeError(w, err)
		return
	}
	room, err := h.service.CreateRoom(caller, request.Name, request.UserIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, room)
}

func (h *Handlers) joinRoom(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var request dto.RoomRef
	if err := h.decode(r, &request); err != nil {
		h.writeError(w, err)
		return
	}
	room, err := h.service.Join(caller, domain.RoomID(request.ID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, room)
}

func (h *Handlers) leaveRoom(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var request dto.RoomRef
	if err := h.decode(r, &request); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.Leave(caller, domain.RoomID(request.ID)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (h *Handlers) editRoom(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var request dto.EditRoomRequest
	if err := h.decode(r, &request); err != nil {
		h.writeError(w, err)
		return
	}
	room, err := h.service.Edit(caller, request)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, room)
}

func (h *Handlers) deleteRoom(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	roomID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.DeleteRoom(caller, domain.RoomID(roomID)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) history(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	roomID, err := pathID(r, "roomId")
	if err != nil {
		h.writeError(w, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, fmt.Errorf("%w: bad limit %q", errors.ErrInvalidArgument, raw))
			return
		}
		limit = parsed
	}

	var beforeID *domain.MessageID
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			h.writeError(w, fmt.Errorf("%w: bad before id %q", errors.ErrInvalidArgument, raw))
			return
		}
		beforeID = lo.ToPtr(domain.MessageID(parsed))
	}

	messages, err := h.service.History(caller, domain.RoomID(roomID), beforeID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *Handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var request dto.SendMessageRequest
	if err := h.decode(r, &request); err != nil {
		h.writeError(w, err)
		return
	}

	var attachment []byte
	if request.Attachment != nil {
		attachment, err = base64.StdEncoding.DecodeString(*request.Attachment)
		if err != nil {
			h.writeError(w, fmt.Errorf("%w: attachment is not valid base64", errors.ErrInvalidArgument))
			return
		}
	}

	message, err := h.service.Send(caller, domain.RoomID(request.ChatRoomID), request.Message, attachment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, message)
}

func (h *Handlers) sendPrivate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var request dto.PrivateMessageRequest
	if err := h.decode(r, &request); err != nil {
		h.writeError(w, err)
		return
	}
	message, err := h.service.SendPrivate(caller, request.ReceiverID, request.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, message)
}

func (h *Handlers) markAsRead(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	messageID, err := pathID(r, "messageId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	message, err := h.service.MarkSeen(caller, domain.MessageID(messageID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, message)
}

func (h *Handlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	messageID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.DeleteMessage(caller, domain.MessageID(messageID)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := callerID(r); err != nil {
		h.writeError(w, err)
		return
	}
	users, err := h.service.Users()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

// decode unmarshals and validates a request body.
func (h *Handlers) decode(r *http.Request, target any) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: malformed request body", errors.ErrInvalidArgument)
	}
	if err := h.validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return nil
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("response encoding failed", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// statusOf maps the error taxonomy onto HTTP statuses. Storage and provider
// failures stay 500 and are never conflated with authentication failures.
func statusOf(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrUnauthenticated):
		return http.StatusUnauthorized
	case stderrors.Is(err, errors.ErrForbidden):
		return http.StatusForbidden
	case stderrors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrInvalidArgument):
		return http.StatusBadRequest
	case stderrors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func callerID(r *http.Request) (string, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return "", errors.ErrUnauthenticated
	}
	return identity.UserID, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad id %q", errors.ErrInvalidArgument, raw)
	}
	return id, nil
}

func parseRoomIDs(raw string) ([]domain.RoomID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: chatRoomIds is required", errors.ErrInvalidArgument)
	}
	parts := strings.Split(raw, ",")
	roomIDs := make([]domain.RoomID, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: bad room id %q", errors.ErrInvalidArgument, part)
		}
		roomIDs = append(roomIDs, domain.RoomID(id))
	}
	return roomIDs, nil
}
