// Package transport upgrades authenticated HTTP requests to duplex websocket
// connections and multiplexes logical destinations over them: one send
// destination (/chat/send) and one broadcast destination per room
// (/room/messages/{id}).
package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/hub"
	"chat-relay/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Handler struct {
	authenticator *auth.Authenticator
	service       services.IChatService
	hub           *hub.Hub
	log           *slog.Logger
	upgrader      websocket.Upgrader
}

func NewHandler(authenticator *auth.Authenticator, service services.IChatService,
	h *hub.Hub, allowedOrigins []string, log *slog.Logger) *Handler {
	return &Handler{
		authenticator: authenticator,
		service:       service,
		hub:           h,
		log:           log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// ServeHTTP runs the connection through its lifecycle:
// Connecting -> Authenticating -> Open -> Closing -> Closed.
// Authentication happens before the upgrade; a failed handshake is answered
// with 401 and never reaches the Open state.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticator.Resolve(r.Context(), auth.Credentials{
		Token: auth.ExtractToken(r),
	})
	if err != nil {
		h.log.Warn("websocket handshake rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "missing or invalid access token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sessionID := uuid.NewString()
	client := newClient(sessionID, identity, conn, h.hub.Register(sessionID), h.service, h.hub, h.log)
	h.log.Info("websocket connected", "session_id", sessionID, "user_id", identity.UserID)

	go client.writePump()
	client.readPump()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
}

const (
	sendDestination       = "/chat/send"
	roomDestinationPrefix = "/room/messages/"
)

func roomFromDestination(destination string) (domain.RoomID, error) {
	raw, ok := strings.CutPrefix(destination, roomDestinationPrefix)
	if !ok {
		return 0, fmt.Errorf("unknown destination %q", destination)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad room id in destination %q", destination)
	}
	return domain.RoomID(id), nil
}
