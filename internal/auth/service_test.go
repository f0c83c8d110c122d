package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/store"
)

func newTestService() *Service {
	tokens := NewTokenManager([]byte("test-secret"), time.Hour)
	return NewService(store.NewMemory(), NewPasswordHasher(), tokens)
}

func TestService_Register(t *testing.T) {
	t.Parallel()

	svc := newTestService()
	ctx := context.Background()

	creds, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alice", creds.Username)
	assert.NotEmpty(t, creds.Token)
}

func TestService_Register_DuplicateUsername(t *testing.T) {
	t.Parallel()

	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "different")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestService_Authenticate(t *testing.T) {
	t.Parallel()

	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "bob", "hunter2")
	require.NoError(t, err)

	creds, err := svc.Authenticate(ctx, "bob", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "bob", creds.Username)
	assert.NotEmpty(t, creds.Token)
}

func TestService_Authenticate_UnknownUser(t *testing.T) {
	t.Parallel()

	svc := newTestService()

	_, err := svc.Authenticate(context.Background(), "nobody", "whatever")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestService_Authenticate_WrongPassword(t *testing.T) {
	t.Parallel()

	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "carol", "correct")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "carol", "incorrect")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestService_TokenCarriesUsername(t *testing.T) {
	t.Parallel()

	tokens := NewTokenManager([]byte("test-secret"), time.Hour)
	svc := NewService(store.NewMemory(), NewPasswordHasher(), tokens)

	creds, err := svc.Register(context.Background(), "dave", "pw")
	require.NoError(t, err)

	username, err := tokens.Verify(creds.Token)
	require.NoError(t, err)
	assert.Equal(t, "dave", username)
}
