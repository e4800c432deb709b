package session_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/family-budget-client/apiclient"
	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/internal/fakebackend"
	"github.com/jrsteele09/family-budget-client/session"
	"github.com/jrsteele09/family-budget-client/token"
	tokenrepofake "github.com/jrsteele09/family-budget-client/token/repofake"
	"github.com/jrsteele09/family-budget-client/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	testUserEmail    = "a@example.com"
	testUserPassword = "secret123"
)

type testFixture struct {
	backend *fakebackend.Backend
	server  *httptest.Server
	storage *tokenrepofake.FakeTokenStore
	client  *apiclient.Client
	store   *session.Store
	user    users.Profile

	expiredLock sync.Mutex
	expired     int

	holdLock sync.Mutex
	hold     chan struct{}
	arrived  chan struct{}
}

// setupTestFixture wires a store to a fresh fake backend with one registered user. seed
// pre-populates token storage before the store is created.
func setupTestFixture(t *testing.T, seed map[string]string) *testFixture {
	t.Helper()

	f := &testFixture{
		backend: fakebackend.New(),
		storage: tokenrepofake.NewFakeTokenStoreWith(seed),
	}
	f.user = f.backend.AddUser(testUserEmail, testUserPassword, "Ann", "Smith")
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == fakebackend.APIPrefix+session.RefreshPath {
			f.waitForRelease()
		}
		f.backend.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)

	f.client = apiclient.New(f.server.URL+fakebackend.APIPrefix,
		apiclient.WithRegisterer(prometheus.NewRegistry()),
		apiclient.WithSessionExpiredHandler(func(error) {
			f.expiredLock.Lock()
			defer f.expiredLock.Unlock()
			f.expired++
		}),
	)
	f.store = session.New(context.Background(), f.client, f.storage)
	f.client.SetAuthenticator(f.store)
	return f
}

// holdRefreshes keeps refresh requests waiting at the backend until release is called.
// arrived receives once per refresh request that is being held.
func (f *testFixture) holdRefreshes(t *testing.T) (arrived <-chan struct{}, release func()) {
	t.Helper()
	f.holdLock.Lock()
	defer f.holdLock.Unlock()

	hold := make(chan struct{})
	f.hold = hold
	f.arrived = make(chan struct{}, 16)
	var once sync.Once
	release = func() {
		once.Do(func() { close(hold) })
	}
	t.Cleanup(release)
	return f.arrived, release
}

func (f *testFixture) waitForRelease() {
	f.holdLock.Lock()
	hold, arrived := f.hold, f.arrived
	f.holdLock.Unlock()
	if hold == nil {
		return
	}
	arrived <- struct{}{}
	<-hold
}

// waitForUnauthorized blocks until the client has seen n 401 responses to GET requests.
func (f *testFixture) waitForUnauthorized(t *testing.T, n int) {
	t.Helper()
	unauthorized := f.client.RequestsCounter().WithLabelValues(http.MethodGet, "401")
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(unauthorized) == float64(n)
	}, 5*time.Second, 5*time.Millisecond)
	// Leave the callers time to reach the shared refresh.
	time.Sleep(50 * time.Millisecond)
}

func (f *testFixture) expiredCount() int {
	f.expiredLock.Lock()
	defer f.expiredLock.Unlock()
	return f.expired
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	res := f.store.Login(context.Background(), testUserEmail, testUserPassword)
	require.True(t, res.Success, res.Message)
}

func (f *testFixture) stored(t *testing.T, key string) string {
	t.Helper()
	v, err := f.storage.Get(context.Background(), key)
	if errors.Is(err, errors.ErrKeyNotFound) {
		return ""
	}
	require.NoError(t, err)
	return v
}

func (f *testFixture) requireLoggedOut(t *testing.T) {
	t.Helper()
	st := f.store.State()
	require.False(t, st.IsAuthenticated())
	require.Empty(t, st.AccessToken)
	require.Empty(t, st.RefreshToken)
	require.Nil(t, st.CurrentUser)
	require.Equal(t, 0, f.storage.Len())
}

func TestStore_NewSeedsFromStorage(t *testing.T) {
	f := setupTestFixture(t, map[string]string{
		token.AccessTokenKey:  "stored-access",
		token.RefreshTokenKey: "stored-refresh",
	})

	st := f.store.State()
	require.True(t, st.IsLoading)
	require.Equal(t, "stored-access", st.AccessToken)
	require.Equal(t, "stored-refresh", st.RefreshToken)
	require.Nil(t, st.CurrentUser)
}

func TestStore_Login(t *testing.T) {
	t.Run("success persists tokens and caches profile", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.login(t)

		st := f.store.State()
		require.True(t, st.IsAuthenticated())
		require.NotEmpty(t, st.RefreshToken)
		require.Equal(t, st.AccessToken, f.stored(t, token.AccessTokenKey))
		require.Equal(t, st.RefreshToken, f.stored(t, token.RefreshTokenKey))
		require.NotNil(t, st.CurrentUser)
		require.Equal(t, f.user, *st.CurrentUser)
		require.False(t, f.store.AccessTokenExpiry().IsZero())
	})

	t.Run("bad credentials leave state untouched", func(t *testing.T) {
		f := setupTestFixture(t, nil)

		res := f.store.Login(context.Background(), testUserEmail, "wrong-password")
		require.False(t, res.Success)
		require.Equal(t, "No active account found with the given credentials", res.Message)
		require.Equal(t, 0, f.storage.Writes())
		require.False(t, f.store.IsAuthenticated())
		require.Equal(t, 0, f.backend.Hits(http.MethodPost, session.RefreshPath))
		require.Equal(t, 0, f.expired)
	})

	t.Run("network failure uses the generic message", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.server.Close()

		res := f.store.Login(context.Background(), testUserEmail, testUserPassword)
		require.False(t, res.Success)
		require.Equal(t, "Invalid credentials", res.Message)
		require.Equal(t, 0, f.storage.Writes())
	})
}

func TestStore_LoginThenLogoutLeavesNothing(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	require.NoError(t, f.storage.Set(context.Background(), token.SelectedFamilyIDKey, "3"))

	hitsBefore := f.backend.Hits(http.MethodGet, users.ProfilePath)
	f.store.Logout()

	f.requireLoggedOut(t)
	require.Equal(t, hitsBefore, f.backend.Hits(http.MethodGet, users.ProfilePath))
}

func TestStore_Register(t *testing.T) {
	t.Run("success logs in", func(t *testing.T) {
		f := setupTestFixture(t, nil)

		res := f.store.Register(context.Background(), users.Registration{
			FirstName:       "Bob",
			LastName:        "Jones",
			Email:           "bob@example.com",
			Password:        "password99",
			PasswordConfirm: "password99",
		})
		require.True(t, res.Success, res.Message)
		st := f.store.State()
		require.True(t, st.IsAuthenticated())
		require.Equal(t, "bob@example.com", st.CurrentUser.Email)
		require.Equal(t, "Bob", st.CurrentUser.FirstName)
	})

	tests := []struct {
		name string
		reg  users.Registration
		want string
	}{
		{
			name: "email error wins",
			reg:  users.Registration{Email: testUserEmail, Password: "short", PasswordConfirm: "other"},
			want: "user with this email already exists.",
		},
		{
			name: "password error before non-field error",
			reg:  users.Registration{Email: "new@example.com", Password: "short", PasswordConfirm: "other"},
			want: "This password is too short. It must contain at least 8 characters.",
		},
		{
			name: "non-field error last",
			reg:  users.Registration{Email: "new@example.com", Password: "password99", PasswordConfirm: "password98"},
			want: "Password fields didn't match.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, nil)
			res := f.store.Register(context.Background(), tt.reg)
			require.False(t, res.Success)
			require.Equal(t, tt.want, res.Message)
			require.False(t, f.store.IsAuthenticated())
			require.Equal(t, 0, f.storage.Writes())
		})
	}

	t.Run("generic message without field errors", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.server.Close()
		res := f.store.Register(context.Background(), users.Registration{Email: "x@example.com"})
		require.False(t, res.Success)
		require.Equal(t, "Registration failed", res.Message)
	})
}

func TestStore_RefreshAccessToken(t *testing.T) {
	t.Run("no refresh token fails without a request", func(t *testing.T) {
		f := setupTestFixture(t, map[string]string{token.AccessTokenKey: "stale"})

		err := f.store.RefreshAccessToken(context.Background())
		require.True(t, errors.Is(err, errors.ErrNoRefreshToken))
		require.Equal(t, 0, f.backend.Hits(http.MethodPost, session.RefreshPath))
		require.Equal(t, 0, f.storage.Writes())
	})

	t.Run("success replaces only the access token", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.login(t)
		before := f.store.State()
		f.backend.ExpireAccessTokens()

		require.NoError(t, f.store.RefreshAccessToken(context.Background()))

		after := f.store.State()
		require.NotEqual(t, before.AccessToken, after.AccessToken)
		require.Equal(t, before.RefreshToken, after.RefreshToken)
		require.Equal(t, before.CurrentUser, after.CurrentUser)
		require.Equal(t, after.AccessToken, f.stored(t, token.AccessTokenKey))
		require.Equal(t, 1, f.backend.Hits(http.MethodPost, session.RefreshPath))
	})

	t.Run("rejected refresh logs out", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.login(t)
		f.backend.RevokeRefreshTokens()

		err := f.store.RefreshAccessToken(context.Background())
		require.True(t, errors.Is(err, errors.ErrInvalidRefreshToken))
		var apiErr *apiclient.APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, http.StatusUnauthorized, apiErr.Status)
		require.Equal(t, "Token is invalid or expired", apiErr.Detail())
		f.requireLoggedOut(t)
	})

	t.Run("failing to store the new token logs out", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.login(t)
		f.backend.ExpireAccessTokens()
		f.storage.FailSets(fmt.Errorf("disk full"))

		err := f.store.RefreshAccessToken(context.Background())
		require.ErrorContains(t, err, "disk full")
		require.Equal(t, 1, f.backend.Hits(http.MethodPost, session.RefreshPath))
		f.requireLoggedOut(t)
	})
}

func TestStore_ExpiredAccessTokenIsRefreshedTransparently(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)

	var want users.Profile
	require.NoError(t, f.client.Get(context.Background(), users.ProfilePath, &want))

	f.backend.ExpireAccessTokens()
	var got users.Profile
	require.NoError(t, f.client.Get(context.Background(), users.ProfilePath, &got))

	require.Equal(t, want, got)
	require.Equal(t, 1, f.backend.Hits(http.MethodPost, session.RefreshPath))
	require.True(t, f.store.IsAuthenticated())
	require.Equal(t, 0, f.expired)
}

func TestStore_FailedRefreshDuringRequestLogsOut(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.backend.ExpireAccessTokens()
	f.backend.RevokeRefreshTokens()

	err := f.client.Get(context.Background(), users.ProfilePath, nil)
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))
	require.Equal(t, 1, f.backend.Hits(http.MethodPost, session.RefreshPath))
	require.Equal(t, 1, f.expired)
	f.requireLoggedOut(t)
}

func TestStore_ConcurrentRefreshesShareOneRequest(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.backend.ExpireAccessTokens()
	arrived, release := f.holdRefreshes(t)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.client.Get(context.Background(), users.ProfilePath, nil)
		}(i)
	}

	<-arrived
	f.waitForUnauthorized(t, callers)
	release()
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.backend.Hits(http.MethodPost, session.RefreshPath))
	require.True(t, f.store.IsAuthenticated())
	require.Equal(t, 0, f.expiredCount())
}

func TestStore_CancelledCallerLeavesSharedRefreshRunning(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	refreshToken := f.store.State().RefreshToken
	f.backend.ExpireAccessTokens()
	arrived, release := f.holdRefreshes(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan error, 1)
	go func() {
		first <- f.client.Get(ctx, users.ProfilePath, nil)
	}()
	<-arrived

	second := make(chan error, 1)
	go func() {
		second <- f.client.Get(context.Background(), users.ProfilePath, nil)
	}()
	f.waitForUnauthorized(t, 2)

	cancel()
	require.True(t, errors.Is(<-first, context.Canceled))

	release()
	require.NoError(t, <-second)
	require.Equal(t, 1, f.backend.Hits(http.MethodPost, session.RefreshPath))
	require.True(t, f.store.IsAuthenticated())
	require.Equal(t, refreshToken, f.stored(t, token.RefreshTokenKey))
	require.Equal(t, 0, f.expiredCount())
}

func TestStore_FollowsSharedStorage(t *testing.T) {
	f := setupTestFixture(t, nil)

	otherClient := apiclient.New(f.server.URL+fakebackend.APIPrefix, apiclient.WithRegisterer(prometheus.NewRegistry()))
	other := session.New(context.Background(), otherClient, f.storage)
	otherClient.SetAuthenticator(other)

	t.Run("login elsewhere is picked up", func(t *testing.T) {
		require.True(t, other.Login(context.Background(), testUserEmail, testUserPassword).Success)

		var p users.Profile
		require.NoError(t, f.client.Get(context.Background(), users.ProfilePath, &p))
		require.Equal(t, f.user, p)

		st := f.store.State()
		require.True(t, st.IsAuthenticated())
		require.Equal(t, other.State().RefreshToken, st.RefreshToken)
		require.Nil(t, st.CurrentUser)
		require.Equal(t, 0, f.expiredCount())
		require.NotEmpty(t, f.stored(t, token.RefreshTokenKey))
	})

	t.Run("logout elsewhere ends this session", func(t *testing.T) {
		other.Logout()

		err := f.client.Get(context.Background(), users.ProfilePath, nil)
		require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))
		require.False(t, f.store.IsAuthenticated())
		require.Equal(t, 1, f.expiredCount())
	})
}

func TestStore_Initialize(t *testing.T) {
	t.Run("restores profile for a valid token", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.login(t)

		restored := session.New(context.Background(), f.client, f.storage)
		f.client.SetAuthenticator(restored)
		restored.Initialize(context.Background())

		st := restored.State()
		require.False(t, st.IsLoading)
		require.True(t, st.IsAuthenticated())
		require.Equal(t, f.user, *st.CurrentUser)
	})

	t.Run("profile failure logs out and stops loading", func(t *testing.T) {
		f := setupTestFixture(t, map[string]string{token.AccessTokenKey: "not-a-valid-token"})

		f.store.Initialize(context.Background())

		st := f.store.State()
		require.False(t, st.IsLoading)
		f.requireLoggedOut(t)
	})

	t.Run("no token finishes without requests", func(t *testing.T) {
		f := setupTestFixture(t, nil)

		f.store.Initialize(context.Background())

		require.False(t, f.store.State().IsLoading)
		require.Equal(t, 0, f.backend.Hits(http.MethodGet, users.ProfilePath))
	})

	t.Run("runs once", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.login(t)
		restored := session.New(context.Background(), f.client, f.storage)
		f.client.SetAuthenticator(restored)

		before := f.backend.Hits(http.MethodGet, users.ProfilePath)
		restored.Initialize(context.Background())
		restored.Initialize(context.Background())
		require.Equal(t, before+1, f.backend.Hits(http.MethodGet, users.ProfilePath))
	})
}

func TestStore_UpdateCachedProfile(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	before := f.store.State()

	updated := *before.CurrentUser
	updated.FirstName = "X"
	f.store.UpdateCachedProfile(updated)

	after := f.store.State()
	require.Equal(t, "X", after.CurrentUser.FirstName)
	require.Equal(t, before.AccessToken, after.AccessToken)
	require.Equal(t, before.RefreshToken, after.RefreshToken)

	t.Run("ignored while logged out", func(t *testing.T) {
		f.store.Logout()
		f.store.UpdateCachedProfile(updated)
		require.Nil(t, f.store.State().CurrentUser)
	})
}

func TestStore_Subscribe(t *testing.T) {
	f := setupTestFixture(t, nil)

	var lock sync.Mutex
	var seen []session.State
	unsubscribe := f.store.Subscribe(func(st session.State) {
		lock.Lock()
		defer lock.Unlock()
		seen = append(seen, st)
	})

	f.login(t)
	f.store.Logout()
	unsubscribe()
	f.login(t)

	lock.Lock()
	defer lock.Unlock()
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	require.False(t, last.IsAuthenticated())

	var sawUser bool
	for _, st := range seen {
		if st.CurrentUser != nil {
			sawUser = true
			require.True(t, st.IsAuthenticated())
		}
	}
	require.True(t, sawUser)
}

func TestStore_AccessTokenExpiry(t *testing.T) {
	now := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	backend := fakebackend.New(fakebackend.WithNowTime(func() time.Time { return now }), fakebackend.WithAccessTTL(time.Hour))
	backend.AddUser(testUserEmail, testUserPassword, "Ann", "Smith")
	server := httptest.NewServer(backend)
	defer server.Close()

	client := apiclient.New(server.URL+fakebackend.APIPrefix, apiclient.WithRegisterer(prometheus.NewRegistry()))
	store := session.New(context.Background(), client, tokenrepofake.NewFakeTokenStore())
	client.SetAuthenticator(store)

	require.True(t, store.AccessTokenExpiry().IsZero())
	require.True(t, store.Login(context.Background(), testUserEmail, testUserPassword).Success)
	require.True(t, store.AccessTokenExpiry().Equal(now.Add(time.Hour)))
}
