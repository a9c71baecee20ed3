package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fjod/shop_client/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCredentialStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileCredentialStore(path)
	ctx := context.Background()

	_, err := store.Tokens(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	pair := domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"}
	require.NoError(t, store.SetTokens(ctx, pair))
	require.NoError(t, store.SetUserID(ctx, "u1"))

	got, err := store.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, pair, got)

	userID, err := store.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	// Replacing tokens keeps the user id.
	require.NoError(t, store.SetTokens(ctx, domain.TokenPair{AccessToken: "a2", RefreshToken: "r2"}))
	userID, err = store.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileCredentialStore_ClearRemovesEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileCredentialStore(path)
	ctx := context.Background()

	require.NoError(t, store.SetTokens(ctx, domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, store.SetUserID(ctx, "u1"))
	require.NoError(t, store.Clear(ctx))

	_, err := store.Tokens(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
	_, err = store.UserID(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	// Clearing an already-empty store is not an error.
	require.NoError(t, store.Clear(ctx))
}

func TestMemoryCredentialStore_AtomicTokenReplacement(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	require.NoError(t, store.SetTokens(ctx, domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, store.SetTokens(ctx, domain.TokenPair{AccessToken: "a2", RefreshToken: "r2"}))

	got, err := store.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r2", got.RefreshToken)
}
