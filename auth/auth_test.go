package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test_secret_key_for_auth_package")

type projectionRecorder struct {
	users []domain.User
}

func (p *projectionRecorder) Upsert(user domain.User) error {
	p.users = append(p.users, user)
	return nil
}

func newAuthenticator(projector UserProjector) *Authenticator {
	verifier := NewJWTVerifier(testSecret, "chat-client")
	return NewAuthenticator(verifier, projector, time.Second, slog.Default())
}

func mustToken(t *testing.T, userID string, claims CustomClaims) string {
	t.Helper()
	token, err := GenerateToken(testSecret, userID, userID, claims, time.Minute)
	require.NoError(t, err)
	return token
}

func Test_Verify_Roles_From_Resource_Access(t *testing.T) {
	req := require.New(t)
	token := mustToken(t, "alice", CustomClaims{
		ResourceAccess: map[string]RoleClaim{
			"chat-client": {Roles: []string{"manager", "user"}},
		},
		RealmAccess: &RoleClaim{Roles: []string{"realm-only"}},
	})

	identity, err := NewJWTVerifier(testSecret, "chat-client").Verify(context.Background(), token)
	req.NoError(err)
	req.Equal("alice", identity.UserID)
	req.Equal([]string{"manager", "user"}, identity.Roles)
}

func Test_Verify_Roles_Fall_Back_To_Realm_Access(t *testing.T) {
	req := require.New(t)
	token := mustToken(t, "alice", CustomClaims{
		ResourceAccess: map[string]RoleClaim{
			"another-client": {Roles: []string{"other"}},
		},
		RealmAccess: &RoleClaim{Roles: []string{"user"}},
	})

	identity, err := NewJWTVerifier(testSecret, "chat-client").Verify(context.Background(), token)
	req.NoError(err)
	req.Equal([]string{"user"}, identity.Roles)
}

func Test_Verify_Without_Role_Claims_Yields_Empty_Set(t *testing.T) {
	req := require.New(t)
	token := mustToken(t, "alice", CustomClaims{})

	identity, err := NewJWTVerifier(testSecret, "chat-client").Verify(context.Background(), token)
	req.NoError(err)
	req.Empty(identity.Roles)
}

func Test_Verify_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)
	token, err := GenerateToken(testSecret, "alice", "alice", CustomClaims{}, -time.Minute)
	req.NoError(err)

	_, err = NewJWTVerifier(testSecret, "chat-client").Verify(context.Background(), token)
	req.Error(err)
}

func Test_Resolve_Explicit_Token_Wins(t *testing.T) {
	req := require.New(t)
	recorder := &projectionRecorder{}
	authenticator := newAuthenticator(recorder)
	token := mustToken(t, "alice", CustomClaims{})

	identity, err := authenticator.Resolve(context.Background(), Credentials{Token: token})
	req.NoError(err)
	req.Equal("alice", identity.UserID)
	req.Len(recorder.users, 1)
	req.Equal("alice", recorder.users[0].ID)
	req.True(recorder.users[0].Enabled)
}

func Test_Resolve_Invalid_Token_Never_Falls_Through(t *testing.T) {
	req := require.New(t)
	authenticator := newAuthenticator(&projectionRecorder{})
	principal := Identity{UserID: "bob"}

	// A garbage explicit token must fail the request even though a valid
	// transport principal is available.
	_, err := authenticator.Resolve(context.Background(), Credentials{
		Token:     "not-a-jwt",
		Principal: &principal,
	})
	req.ErrorIs(err, errors.ErrUnauthenticated)
}

func Test_Resolve_Falls_Back_To_Principal(t *testing.T) {
	req := require.New(t)
	authenticator := newAuthenticator(&projectionRecorder{})
	principal := Identity{UserID: "bob", Username: "bob"}

	identity, err := authenticator.Resolve(context.Background(), Credentials{Principal: &principal})
	req.NoError(err)
	req.Equal("bob", identity.UserID)
}

func Test_Resolve_Without_Credentials_Fails(t *testing.T) {
	req := require.New(t)
	authenticator := newAuthenticator(&projectionRecorder{})

	_, err := authenticator.Resolve(context.Background(), Credentials{})
	req.ErrorIs(err, errors.ErrUnauthenticated)
}
