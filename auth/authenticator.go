package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"
)

// UserProjector caches a local projection of provider users,
// refreshed on every successful verification.
type UserProjector interface {
	Upsert(user domain.User) error
}

// Credentials carries everything known about an inbound connection or request
// before identity resolution.
type Credentials struct {
	// Token is an explicit bearer token, if one was supplied.
	Token string
	// Principal is a transport-level identity already bound to the
	// connection during the handshake, if any.
	Principal *Identity
}

// Authenticator resolves the canonical identity of a connection or request.
//
// Resolution priority, first success wins:
//  1. an explicit bearer token, verified against the token verifier;
//     an explicitly supplied but invalid token fails the whole request,
//     it is never silently ignored.
//  2. the transport principal bound at handshake time.
//
// Identity is bound per connection at handshake, so no registry scan
// over live connections is ever needed as a fallback.
type Authenticator struct {
	verifier      TokenVerifier
	users         UserProjector
	verifyTimeout time.Duration
	log           *slog.Logger
}

func NewAuthenticator(verifier TokenVerifier, users UserProjector,
	verifyTimeout time.Duration, log *slog.Logger) *Authenticator {
	return &Authenticator{verifier: verifier, users: users, verifyTimeout: verifyTimeout, log: log}
}

func (a *Authenticator) Resolve(ctx context.Context, creds Credentials) (Identity, error) {
	if creds.Token != "" {
		verifyCtx, cancel := context.WithTimeout(ctx, a.verifyTimeout)
		defer cancel()

		identity, err := a.verifier.Verify(verifyCtx, creds.Token)
		if err != nil {
			a.log.Warn("token verification failed", "error", err)
			return Identity{}, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
		}
		if err := a.users.Upsert(toProjection(identity)); err != nil {
			// The projection is a cache; a stale entry is acceptable.
			a.log.Warn("user projection refresh failed", "user_id", identity.UserID, "error", err)
		}
		return identity, nil
	}

	if creds.Principal != nil {
		return *creds.Principal, nil
	}

	return Identity{}, errors.ErrUnauthenticated
}

// ExtractToken pulls an explicit bearer token from the request, checking the
// access_token query parameter first, then the Authorization header.
func ExtractToken(r *http.Request) string {
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func toProjection(identity Identity) domain.User {
	return domain.User{
		ID:       identity.UserID,
		Username: identity.Username,
		Email:    identity.Email,
		Enabled:  true,
	}
}
