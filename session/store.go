package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/family-budget-client/apiclient"
	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/token"
	"github.com/jrsteele09/family-budget-client/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	LoginPath   = "/users/token/"
	RefreshPath = "/users/token/refresh/"

	defaultLoginMessage    = "Invalid credentials"
	defaultRegisterMessage = "Registration failed"
)

var _ apiclient.Authenticator = (*Store)(nil)
var _ users.ProfileCache = (*Store)(nil)

// State is a snapshot of the session.
type State struct {
	AccessToken  string
	RefreshToken string
	CurrentUser  *users.Profile
	// IsLoading is true until Initialize has finished. Protected content should not be
	// shown while it is set.
	IsLoading bool
}

func (s State) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// Result is the outcome of Login and Register. Message is only set on failure and is
// suitable for showing next to the form that triggered it.
type Result struct {
	Success bool
	Message string
}

func failure(msg string) Result {
	return Result{Success: false, Message: msg}
}

// Store owns the token pair and the cached profile. It is the only writer of the token keys
// in storage; the API client reads the access token from it and delegates refresh back to it.
type Store struct {
	api     apiclient.API
	storage token.Storage
	logger  zerolog.Logger

	initOnce sync.Once
	refresh  singleflight.Group

	lock      sync.RWMutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store seeded with whatever tokens storage holds. The store starts loading;
// call Initialize once before relying on CurrentUser.
func New(ctx context.Context, api apiclient.API, storage token.Storage, options ...Option) *Store {
	s := &Store{
		api:       api,
		storage:   storage,
		logger:    log.Logger,
		listeners: make(map[int]func(State)),
	}
	for _, opt := range options {
		opt(s)
	}

	s.state = State{
		AccessToken:  s.read(ctx, token.AccessTokenKey),
		RefreshToken: s.read(ctx, token.RefreshTokenKey),
		IsLoading:    true,
	}
	return s
}

func (s *Store) read(ctx context.Context, key string) string {
	v, err := s.storage.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, errors.ErrKeyNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to read session storage")
		}
		return ""
	}
	return v
}

// Initialize loads the profile for a persisted access token. Any failure clears the
// session. IsLoading is false afterwards whatever the outcome. Only the first call does
// any work.
func (s *Store) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		if s.AccessToken(ctx) != "" {
			profile, err := s.fetchProfile(ctx)
			if err != nil {
				s.logger.Info().Err(err).Msg("stored session could not be restored")
				s.Logout()
			} else {
				s.mutate(func(st *State) {
					if st.AccessToken != "" {
						st.CurrentUser = profile
					}
				})
			}
		}
		s.mutate(func(st *State) {
			st.IsLoading = false
		})
	})
}

// Login exchanges credentials for a token pair, persists it and caches the profile.
// On failure the session is left as it was.
func (s *Store) Login(ctx context.Context, email, password string) Result {
	req := apiclient.NewRequest(http.MethodPost, LoginPath, token.LoginRequest{Email: email, Password: password})
	req.SkipRefresh = true

	var pair token.Pair
	if err := s.api.Do(ctx, req, &pair); err != nil {
		s.logger.Warn().Err(err).Msg("login failed")
		return failure(apiclient.Message(err, defaultLoginMessage, "detail"))
	}
	if !pair.Valid() {
		s.logger.Warn().Msg("login response did not contain a token pair")
		return failure(defaultLoginMessage)
	}

	if err := s.persist(ctx, pair); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist session")
		return failure("Failed to save session")
	}
	s.mutate(func(st *State) {
		st.AccessToken = pair.Access
		st.RefreshToken = pair.Refresh
		st.CurrentUser = nil
	})

	profile, err := s.fetchProfile(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("profile fetch after login failed")
		s.Logout()
		return failure(apiclient.Message(err, defaultLoginMessage, "detail"))
	}
	s.mutate(func(st *State) {
		st.CurrentUser = profile
	})
	return Result{Success: true}
}

func (s *Store) persist(ctx context.Context, pair token.Pair) error {
	if err := s.storage.Set(ctx, token.AccessTokenKey, pair.Access); err != nil {
		return pkgerrors.Wrap(err, "[session.Store.Login] access token")
	}
	if err := s.storage.Set(ctx, token.RefreshTokenKey, pair.Refresh); err != nil {
		_ = s.storage.Delete(ctx, token.AccessTokenKey)
		return pkgerrors.Wrap(err, "[session.Store.Login] refresh token")
	}
	return nil
}

// Register creates an account and logs straight into it. Server-side field errors are
// reported in the order email, password, non-field.
func (s *Store) Register(ctx context.Context, reg users.Registration) Result {
	req := apiclient.NewRequest(http.MethodPost, users.RegisterPath, reg)
	req.SkipRefresh = true

	if err := s.api.Do(ctx, req, nil); err != nil {
		s.logger.Warn().Err(err).Msg("registration failed")
		return failure(apiclient.Message(err, defaultRegisterMessage, "email", "password", "non_field_errors"))
	}
	return s.Login(ctx, reg.Email, reg.Password)
}

// Logout clears the token pair, the selected family and the cached profile from storage and
// from the session. It never calls the API.
func (s *Store) Logout() {
	if err := s.storage.Delete(context.Background(), token.SessionKeys...); err != nil {
		s.logger.Error().Err(err).Msg("failed to clear session storage")
	}
	s.mutate(func(st *State) {
		st.AccessToken = ""
		st.RefreshToken = ""
		st.CurrentUser = nil
	})
}

// RefreshAccessToken obtains a new access token with the persisted refresh token. Without
// one it fails immediately. A rejected refresh logs the session out. Concurrent callers share
// a single request which does not belong to any of them: a caller whose ctx ends stops
// waiting, the request carries on for the rest.
func (s *Store) RefreshAccessToken(ctx context.Context) error {
	ch := s.refresh.DoChan("refresh", func() (interface{}, error) {
		return nil, s.refreshAccessToken(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return pkgerrors.Wrap(ctx.Err(), "[session.Store.RefreshAccessToken]")
	}
}

func (s *Store) refreshAccessToken(ctx context.Context) error {
	refresh := s.read(ctx, token.RefreshTokenKey)
	if refresh == "" {
		return errors.ErrNoRefreshToken
	}

	req := apiclient.NewRequest(http.MethodPost, RefreshPath, token.RefreshRequest{Refresh: refresh})
	req.SkipRefresh = true

	var resp token.RefreshResponse
	if err := s.api.Do(ctx, req, &resp); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return pkgerrors.Wrap(err, "[session.Store.RefreshAccessToken]")
		}
		s.logger.Warn().Err(err).Msg("token refresh rejected")
		s.Logout()
		return pkgerrors.Wrap(fmt.Errorf("%w: %w", errors.ErrInvalidRefreshToken, err), "[session.Store.RefreshAccessToken]")
	}
	if resp.Access == "" {
		s.Logout()
		return pkgerrors.Wrap(errors.ErrMalformedToken, "[session.Store.RefreshAccessToken] empty access token")
	}

	if err := s.storage.Set(ctx, token.AccessTokenKey, resp.Access); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist refreshed access token")
		s.Logout()
		return pkgerrors.Wrap(err, "[session.Store.RefreshAccessToken]")
	}
	s.mutate(func(st *State) {
		st.AccessToken = resp.Access
	})
	s.logger.Debug().Time("expires", s.AccessTokenExpiry()).Msg("access token refreshed")
	return nil
}

// UpdateCachedProfile replaces the cached profile. It does nothing while logged out so a
// profile is never held without a token.
func (s *Store) UpdateCachedProfile(p users.Profile) {
	s.mutate(func(st *State) {
		if st.AccessToken == "" {
			return
		}
		st.CurrentUser = &p
	})
}

func (s *Store) fetchProfile(ctx context.Context) (*users.Profile, error) {
	var p users.Profile
	if err := s.api.Get(ctx, users.ProfilePath, &p); err != nil {
		return nil, pkgerrors.Wrap(err, "[session.Store.fetchProfile]")
	}
	return &p, nil
}

// State returns a copy of the current session.
func (s *Store) State() State {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.snapshot()
}

func (s *Store) snapshot() State {
	st := s.state
	if st.CurrentUser != nil {
		u := *st.CurrentUser
		st.CurrentUser = &u
	}
	return st
}

// AccessToken returns the access token held in storage. Storage may be shared with other
// processes, so it is read on every call and the session follows whatever it finds.
func (s *Store) AccessToken(ctx context.Context) string {
	access, _ := s.sync(ctx)
	return access
}

func (s *Store) HasRefreshToken(ctx context.Context) bool {
	_, refresh := s.sync(ctx)
	return refresh != ""
}

// sync reconciles the token pair with storage. A key that cannot be read keeps its
// in-memory value. A different refresh token means another login, so the cached profile
// is dropped along with it.
func (s *Store) sync(ctx context.Context) (access, refresh string) {
	storedAccess, accessOK := s.lookup(ctx, token.AccessTokenKey)
	storedRefresh, refreshOK := s.lookup(ctx, token.RefreshTokenKey)

	s.lock.RLock()
	held := s.state
	s.lock.RUnlock()

	access, refresh = held.AccessToken, held.RefreshToken
	if accessOK {
		access = storedAccess
	}
	if refreshOK {
		refresh = storedRefresh
	}
	if access == held.AccessToken && refresh == held.RefreshToken {
		return access, refresh
	}

	s.mutate(func(st *State) {
		// A login or refresh in this process since the read wins.
		if st.AccessToken != held.AccessToken || st.RefreshToken != held.RefreshToken {
			access, refresh = st.AccessToken, st.RefreshToken
			return
		}
		if refresh != st.RefreshToken || access == "" {
			st.CurrentUser = nil
		}
		st.AccessToken = access
		st.RefreshToken = refresh
	})
	return access, refresh
}

// lookup reads key from storage. ok is false when storage could not answer; a missing key
// is an answer and comes back as "".
func (s *Store) lookup(ctx context.Context, key string) (value string, ok bool) {
	v, err := s.storage.Get(ctx, key)
	switch {
	case err == nil:
		return v, true
	case errors.Is(err, errors.ErrKeyNotFound):
		return "", true
	default:
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to read session storage")
		return "", false
	}
}

// IsAuthenticated reports whether the session holds an access token. It does not consult
// storage.
func (s *Store) IsAuthenticated() bool {
	return s.State().IsAuthenticated()
}

// AccessTokenExpiry reads the exp claim of the access token. It is zero when logged out or
// when the token carries no readable expiry.
func (s *Store) AccessTokenExpiry() time.Time {
	claims, err := token.ParseClaims(s.State().AccessToken)
	if err != nil {
		return time.Time{}
	}
	return claims.ExpiresAt
}

// Subscribe registers fn to be called with a snapshot after every change. The returned
// function removes it.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.lock.Lock()
	defer s.lock.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.listeners, id)
	}
}

// mutate applies f under the lock and notifies listeners outside it.
func (s *Store) mutate(f func(*State)) {
	s.lock.Lock()
	f(&s.state)
	snap := s.snapshot()
	listeners := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.lock.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}
