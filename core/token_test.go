package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	secret := []byte("secret")
	user := UserWithoutSecrets{
		Username: "username",
		Name:     "User",
	}

	t.Run("valid token", func(t *testing.T) {
		before := time.Now()
		token, expiresAt, err := NewToken(user, time.Hour, secret)
		require.Nil(t, err)
		require.NotEmpty(t, token)
		require.True(t, expiresAt.After(before))

		claims, err := VerifyToken(token, secret)
		require.Nil(t, err)
		assert.Equal(t, user.Username, claims.Username)
		assert.Equal(t, user.Name, claims.Name)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewToken(user, time.Hour, secret)
		require.Nil(t, err)

		claims, err := VerifyToken(token, []byte("other"))
		require.Nil(t, claims)
		assert.Equal(t, ErrTokenInvalid, err)
	})

	t.Run("expired token", func(t *testing.T) {
		token, _, err := NewToken(user, -time.Hour, secret)
		require.Nil(t, err)

		claims, err := VerifyToken(token, secret)
		require.Nil(t, claims)
		assert.Equal(t, ErrTokenExpired, err)
	})
}
