package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/api"
	"chat-relay/auth"
	"chat-relay/hub"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/services"
	"chat-relay/transport"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and websockets.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Stores
	rooms, err := repositories.NewRoomRepository(db, log)
	if err != nil {
		return fmt.Errorf("room store setup failed: %w", err)
	}
	defer func() { _ = rooms.Close() }()

	messages, err := repositories.NewMessageRepository(db, log)
	if err != nil {
		return fmt.Errorf("message store setup failed: %w", err)
	}
	defer func() { _ = messages.Close() }()

	users := repositories.NewUserRepository(db)

	// 4. Moderation (optional)
	var censor *moderation.Censor
	if config.CensoredWordsPath != nil {
		charReplacement, err := characterRune(config.CharReplacement)
		if err != nil {
			return err
		}
		words, err := moderation.LoadWords(*config.CensoredWordsPath)
		if err != nil {
			return fmt.Errorf("censored words loading failed: %w", err)
		}
		censor, err = moderation.NewCensor(words, charReplacement)
		if err != nil {
			return fmt.Errorf("censor setup failed: %w", err)
		}
		log.Info("Moderation enabled", "words", len(words))
	}

	// 5. Hub, Service, Authentication
	broadcaster := hub.New(log, config.ConnectionBufferSize)
	service := services.NewChatService(rooms, messages, users, broadcaster, censor, log)

	verifier := auth.NewJWTVerifier([]byte(config.JWTSecret), config.JWTClientID)
	authenticator := auth.NewAuthenticator(verifier, users, config.VerifyTimeout, log)

	// 6. HTTP Router (REST + websocket endpoint)
	ws := transport.NewHandler(authenticator, service, broadcaster, config.AllowedOrigins, log)
	router := api.NewRouter(api.NewHandlers(service, log), authenticator, ws, config.AllowedOrigins)

	if config.DebugPort != nil {
		internal.StartDebugServer(db, *config.DebugPort, "/inspect", internal.ChatMapper, nil)
		log.Info("Store inspector listening", "port", *config.DebugPort)
	}

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Program stopped cleanly")

	return nil
}
