package core

import (
	"context"
	"errors"
	"time"
)

// AuthSession is an authenticated HTTP session backed by a JWT cookie.
// It is distinct from Session, the realtime connection.
type AuthSession struct {
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	ErrBadCredentials  = errors.New("invalid credentials")
	ErrUnauthenticated = errors.New("unauthenticated")
)

type AuthStore interface {
	NewSession(ctx context.Context, username, password string) (session *AuthSession, err error)

	DestroySession(ctx context.Context, session AuthSession) error

	Session(ctx context.Context, token string) (session *AuthSession, err error)
}
