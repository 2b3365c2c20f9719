package session

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	provider := NewJWTProvider("secret")

	token, err := provider.IssueToken(User{ID: "u1", Username: "alice"})
	require.NoError(t, err)

	user, err := provider.UserFromToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "alice", user.Username)
}

func TestUserFromTokenRejectsGarbage(t *testing.T) {
	provider := NewJWTProvider("secret")

	_, err := provider.UserFromToken(context.Background(), "not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserFromTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTProvider("secret-a")
	verifier := NewJWTProvider("secret-b")

	token, err := issuer.IssueToken(User{ID: "u1", Username: "alice"})
	require.NoError(t, err)

	_, err = verifier.UserFromToken(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserFromTokenRequiresSubject(t *testing.T) {
	provider := NewJWTProvider("secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"username": "alice"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = provider.UserFromToken(context.Background(), signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}
