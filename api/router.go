package api

import (
	"net/http"

	"chat-relay/auth"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter assembles the REST routes behind the authentication middleware
// and mounts the websocket endpoint, which runs its own handshake-time
// authentication instead of the middleware.
func NewRouter(handlers *Handlers, authenticator *auth.Authenticator,
	ws http.Handler, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	chat := router.PathPrefix("/chat").Subrouter()
	chat.Use(authenticator.Middleware)

	chat.HandleFunc("/rooms", handlers.listRooms).Methods(http.MethodGet)
	chat.HandleFunc("/rooms", handlers.editRoom).Methods(http.MethodPut)
	chat.HandleFunc("/rooms/last", handlers.lastMessages).Methods(http.MethodGet)
	chat.HandleFunc("/rooms/create", handlers.createRoom).Methods(http.MethodPost)
	chat.HandleFunc("/rooms/join", handlers.joinRoom).Methods(http.MethodPost)
	chat.HandleFunc("/rooms/leave", handlers.leaveRoom).Methods(http.MethodPost)
	chat.HandleFunc("/rooms/{id:[0-9]+}", handlers.deleteRoom).Methods(http.MethodDelete)
	chat.HandleFunc("/rooms/{roomId:[0-9]+}/messages", handlers.history).Methods(http.MethodGet)
	chat.HandleFunc("/send", handlers.sendMessage).Methods(http.MethodPost)
	chat.HandleFunc("/private", handlers.sendPrivate).Methods(http.MethodPost)
	chat.HandleFunc("/messages/mark-as-read/{messageId:[0-9]+}", handlers.markAsRead).Methods(http.MethodPost)
	chat.HandleFunc("/messages/{id:[0-9]+}", handlers.deleteMessage).Methods(http.MethodDelete)
	chat.HandleFunc("/users", handlers.listUsers).Methods(http.MethodGet)

	if ws != nil {
		router.Handle("/ws", ws)
	}

	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(router)
}
