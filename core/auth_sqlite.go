package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteAuthStore issues and verifies JWT sessions. Signed-out tokens are
// blacklisted in sqlite so they cannot be replayed before expiry.
type SQLiteAuthStore struct {
	tokenExp  time.Duration
	secret    []byte
	userStore UserStore
	db        *sql.DB
}

type AuthOption func(*SQLiteAuthStore)

func WithTokenExp(exp time.Duration) AuthOption {
	return func(a *SQLiteAuthStore) {
		a.tokenExp = exp
	}
}

func NewSQLiteAuthStore(db *sql.DB, userStore UserStore, secret []byte, opts ...AuthOption) *SQLiteAuthStore {
	auth := &SQLiteAuthStore{
		tokenExp:  time.Hour * 24,
		secret:    secret,
		userStore: userStore,
		db:        db,
	}
	for _, opt := range opts {
		opt(auth)
	}
	return auth
}

func (a *SQLiteAuthStore) NewSession(ctx context.Context, username, password string) (*AuthSession, error) {
	user, err := a.userStore.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("GetUserByUsername: %w", err)
	}
	if user == nil {
		return nil, ErrBadCredentials
	}

	ok, err := a.userStore.ComparePassword(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("ComparePassword: %w", err)
	}
	if !ok {
		return nil, ErrBadCredentials
	}

	token, exp, err := NewToken(*user, a.tokenExp, a.secret)
	if err != nil {
		return nil, fmt.Errorf("NewToken: %w", err)
	}

	return &AuthSession{
		Username:  user.Username,
		Name:      user.Name,
		Token:     token,
		ExpiresAt: exp,
	}, nil
}

func (a *SQLiteAuthStore) DestroySession(ctx context.Context, session AuthSession) error {
	_, err := a.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO blacklists (token) VALUES (@token)",
		sql.Named("token", session.Token))
	if err != nil {
		return fmt.Errorf("ExecContext(insert blacklists): %w", err)
	}
	return nil
}

func (a *SQLiteAuthStore) Session(ctx context.Context, t string) (*AuthSession, error) {
	claims, err := VerifyToken(t, a.secret)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenInvalid) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("VerifyToken: %w", err)
	}

	blacklisted, err := a.isBlacklisted(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("isBlacklisted: %w", err)
	}
	if blacklisted {
		return nil, ErrUnauthenticated
	}

	return &AuthSession{
		Username:  claims.Username,
		Name:      claims.Name,
		Token:     t,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (a *SQLiteAuthStore) isBlacklisted(ctx context.Context, token string) (bool, error) {
	row := a.db.QueryRowContext(ctx,
		"SELECT count(*) FROM blacklists WHERE token = @token",
		sql.Named("token", token))

	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("row.Scan: %w", err)
	}
	return count > 0, nil
}
