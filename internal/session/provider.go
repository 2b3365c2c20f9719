package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// User is the authenticated identity attached to a request.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Provider resolves the caller's identity from a bearer token. A nil user is
// never returned without an error.
type Provider interface {
	UserFromToken(ctx context.Context, token string) (*User, error)
}

// JWTProvider validates HS256 tokens issued by the account service. The token
// subject is the user id; the username travels in a custom claim.
type JWTProvider struct {
	secret []byte
}

// NewJWTProvider constructs a JWTProvider.
func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

// UserFromToken parses and validates the token and extracts the user.
func (p *JWTProvider) UserFromToken(ctx context.Context, token string) (*User, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, _ := claims["sub"].(string)
	username, _ := claims["username"].(string)
	if userID == "" {
		return nil, ErrInvalidToken
	}
	return &User{ID: userID, Username: username}, nil
}

// IssueToken signs a token for the user. Used by tooling and tests; the
// account service issues production tokens with the same shape.
func (p *JWTProvider) IssueToken(user User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
	})
	return token.SignedString(p.secret)
}
