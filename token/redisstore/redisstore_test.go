package redisstore_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/token"
	"github.com/jrsteele09/family-budget-client/token/redisstore"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*redisstore.TokenStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := redisstore.Connect(context.Background(), mr.Addr(), "", 0, "test:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestTokenStorage_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s, mr := setupStore(t)

	_, err := s.Get(ctx, token.AccessTokenKey)
	require.ErrorIs(t, err, errors.ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, token.AccessTokenKey, "access-1"))
	require.NoError(t, s.Set(ctx, token.RefreshTokenKey, "refresh-1"))

	v, err := s.Get(ctx, token.AccessTokenKey)
	require.NoError(t, err)
	require.Equal(t, "access-1", v)

	// Keys are namespaced with the prefix.
	raw, err := mr.Get("test:" + token.RefreshTokenKey)
	require.NoError(t, err)
	require.Equal(t, "refresh-1", raw)

	require.NoError(t, s.Delete(ctx, token.SessionKeys...))
	require.False(t, mr.Exists("test:"+token.AccessTokenKey))
	require.False(t, mr.Exists("test:"+token.RefreshTokenKey))
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := redisstore.Connect(context.Background(), addr, "", 0, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ping")
}
