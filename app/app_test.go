package app_test

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/family-budget-client/app"
	"github.com/jrsteele09/family-budget-client/internal/config"
	"github.com/jrsteele09/family-budget-client/internal/fakebackend"
	"github.com/jrsteele09/family-budget-client/token"
	"github.com/jrsteele09/family-budget-client/token/filestore"
	"github.com/jrsteele09/family-budget-client/token/redisstore"
	tokenrepofake "github.com/jrsteele09/family-budget-client/token/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const (
	testUserEmail    = "ada@example.com"
	testUserPassword = "password123"
)

func setupTestFixture(t *testing.T) (*fakebackend.Backend, *viper.Viper) {
	t.Helper()

	backend := fakebackend.New()
	backend.AddUser(testUserEmail, testUserPassword, "Ada", "Lovelace")
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	v := viper.New()
	v.Set("API_URL", server.URL)
	v.Set("API_BASE_PATH", fakebackend.APIPrefix)
	v.Set("FOLDER", t.TempDir())
	return backend, v
}

func newApp(t *testing.T, v *viper.Viper, opts ...app.Option) *app.App {
	t.Helper()
	opts = append(opts, app.WithRegisterer(prometheus.NewRegistry()))
	a, err := app.New(context.Background(), config.NewFromViper(v), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_SessionSurvivesRestartWithFileStorage(t *testing.T) {
	_, v := setupTestFixture(t)
	ctx := context.Background()

	first := newApp(t, v)
	require.IsType(t, &filestore.Store{}, first.Storage)
	res := first.Session.Login(ctx, testUserEmail, testUserPassword)
	require.True(t, res.Success, res.Message)

	second := newApp(t, v)
	state := second.Initialize(ctx)
	require.True(t, state.IsAuthenticated())
	require.False(t, state.IsLoading)
	require.Equal(t, testUserEmail, state.CurrentUser.Email)
}

func TestApp_EncryptedFileStorage(t *testing.T) {
	_, v := setupTestFixture(t)
	v.Set("TOKEN_STORE_KEY", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	ctx := context.Background()

	a := newApp(t, v)
	require.True(t, a.Session.Login(ctx, testUserEmail, testUserPassword).Success)

	v.Set("TOKEN_STORE_KEY", "not-a-key")
	_, err := app.New(ctx, config.NewFromViper(v), app.WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
}

func TestApp_UnreadableSessionFileDoesNotLockOut(t *testing.T) {
	_, v := setupTestFixture(t)
	ctx := context.Background()

	a := newApp(t, v)
	store := a.Storage.(*filestore.Store)
	require.NoError(t, os.WriteFile(store.Path(), []byte("garbage"), 0o600))

	a.Session.Logout()
	_, err := os.Stat(store.Path())
	require.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(store.Path(), []byte("garbage"), 0o600))
	res := a.Session.Login(ctx, testUserEmail, testUserPassword)
	require.True(t, res.Success, res.Message)

	restarted := newApp(t, v)
	require.True(t, restarted.Initialize(ctx).IsAuthenticated())
}

func TestApp_RedisStorage(t *testing.T) {
	_, v := setupTestFixture(t)
	mr := miniredis.RunT(t)
	v.Set("TOKEN_STORE", "redis")
	v.Set("REDIS_URL", mr.Addr())
	ctx := context.Background()

	a := newApp(t, v)
	require.IsType(t, &redisstore.TokenStorage{}, a.Storage)
	require.True(t, a.Session.Login(ctx, testUserEmail, testUserPassword).Success)
	require.True(t, mr.Exists("budgetctl:"+token.RefreshTokenKey))
}

func TestApp_UnknownStorage(t *testing.T) {
	_, v := setupTestFixture(t)
	v.Set("TOKEN_STORE", "floppy")

	_, err := app.New(context.Background(), config.NewFromViper(v))
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown token store "floppy"`)
}

func TestApp_SessionExpiredHandler(t *testing.T) {
	backend, v := setupTestFixture(t)
	v.Set("TOKEN_STORE", "memory")
	ctx := context.Background()

	var expired []error
	a := newApp(t, v, app.WithSessionExpiredHandler(func(err error) { expired = append(expired, err) }))
	require.IsType(t, &tokenrepofake.FakeTokenStore{}, a.Storage)
	require.True(t, a.Session.Login(ctx, testUserEmail, testUserPassword).Success)

	backend.ExpireAccessTokens()
	backend.RevokeRefreshTokens()

	_, err := a.Families.List(ctx)
	require.Error(t, err)
	require.Len(t, expired, 1)
	require.False(t, a.Session.IsAuthenticated())
}

func TestApp_WithStorage(t *testing.T) {
	_, v := setupTestFixture(t)
	storage := tokenrepofake.NewFakeTokenStore()

	a := newApp(t, v, app.WithStorage(storage))
	require.Same(t, storage, a.Storage)
	require.True(t, a.Session.Login(context.Background(), testUserEmail, testUserPassword).Success)

	refresh, err := storage.Get(context.Background(), token.RefreshTokenKey)
	require.NoError(t, err)
	require.NotEmpty(t, refresh)
}
