package services

import (
	"context"
	"testing"
	"time"

	"campuschat/internal/core/domain"
	"campuschat/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthService() AuthService {
	return NewAuthService("test-secret", time.Hour, "/avatar/man.png", memory.NewMemoryUserRepository())
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestAuthService()
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "alice", "alice@example.edu", "password1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "/avatar/man.png", user.Avatar)

	loggedIn, token2, err := svc.Login(ctx, "alice", "password1")
	require.NoError(t, err)
	require.NotEmpty(t, token2)
	// Login resolves the same identity created at registration.
	assert.Equal(t, user.ID, loggedIn.ID)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc := newTestAuthService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "alice", "alice@example.edu", "password1")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc := newTestAuthService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "alice", "a@example.edu", "password1")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "alice", "b@example.edu", "password2")
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)
}

func TestValidateToken(t *testing.T) {
	svc := newTestAuthService()
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "alice", "alice@example.edu", "password1")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, err = svc.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := NewAuthService("test-secret", -time.Minute, "/avatar/man.png", memory.NewMemoryUserRepository())

	_, token, err := svc.Register(context.Background(), "alice", "alice@example.edu", "password1")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestResolve(t *testing.T) {
	svc := newTestAuthService()
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "alice", "alice@example.edu", "password1")
	require.NoError(t, err)

	record, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, record.ID)
	assert.Equal(t, "alice", record.Name)
	assert.True(t, record.Online)

	_, err = svc.Resolve(ctx, "not-a-token")
	assert.Error(t, err)
}
