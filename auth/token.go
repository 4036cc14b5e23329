package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the canonical result of a successful token verification.
// It is passed explicitly into every store and hub operation;
// there is no ambient "current user".
type Identity struct {
	UserID   string
	Username string
	Email    string
	Roles    []string
}

// TokenVerifier validates a bearer token and exposes identity and role claims.
// Implementations may call out to an identity provider and must honour
// the context deadline, failing closed on timeout.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (Identity, error)
}

// RoleClaim is the shape shared by both supported role claims.
type RoleClaim struct {
	Roles []string `json:"roles"`
}

// CustomClaims enumerates the two supported role claim shapes explicitly,
// so that role extraction never traverses untyped maps.
type CustomClaims struct {
	PreferredUsername string               `json:"preferred_username"`
	Email             string               `json:"email"`
	ResourceAccess    map[string]RoleClaim `json:"resource_access"`
	RealmAccess       *RoleClaim           `json:"realm_access"`
	jwt.RegisteredClaims
}

// ExtractRoles resolves the role set for the given client application.
// The per-application claim (resource_access.<client>.roles) wins over the
// realm-wide claim (realm_access.roles). A token carrying neither claim
// yields an empty role set, not an error.
func (c *CustomClaims) ExtractRoles(clientID string) []string {
	if access, ok := c.ResourceAccess[clientID]; ok && len(access.Roles) > 0 {
		return access.Roles
	}
	if c.RealmAccess != nil {
		return c.RealmAccess.Roles
	}
	return nil
}

// JWTVerifier validates HS256 tokens issued by the identity provider.
type JWTVerifier struct {
	secret   []byte
	clientID string
}

func NewJWTVerifier(secret []byte, clientID string) *JWTVerifier {
	return &JWTVerifier{secret: secret, clientID: clientID}
}

// Verify parses and validates the signature and expiration of a JWT string,
// then maps the claims to a canonical Identity.
func (v *JWTVerifier) Verify(ctx context.Context, raw string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	token, err := jwt.ParseWithClaims(raw, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return Identity{}, jwt.ErrSignatureInvalid
	}

	return Identity{
		UserID:   claims.Subject,
		Username: claims.PreferredUsername,
		Email:    claims.Email,
		Roles:    claims.ExtractRoles(v.clientID),
	}, nil
}

// GenerateToken creates a signed JWT for a specific user.
// Used by tests and local tooling; production tokens come from the provider.
func GenerateToken(secret []byte, userID, username string, claims CustomClaims, duration time.Duration) (string, error) {
	now := time.Now()
	claims.Subject = userID
	claims.PreferredUsername = username
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(duration))
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.Issuer = "chat-relay"

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString(secret)
}
