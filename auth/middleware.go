package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey string

const identityKey contextKey = "identity"

// Middleware resolves the request identity once and threads it through the
// request context. Handlers retrieve it with IdentityFromRequest and pass it
// explicitly into the service layer.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.Resolve(r.Context(), Credentials{Token: ExtractToken(r)})
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing or invalid access token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}
