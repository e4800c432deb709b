// Package app wires configuration, token storage, the API client, the session store and the
// resource services into one value the CLI works with.
package app

import (
	"context"
	"io"

	"github.com/jrsteele09/family-budget-client/apiclient"
	"github.com/jrsteele09/family-budget-client/budgets"
	"github.com/jrsteele09/family-budget-client/families"
	"github.com/jrsteele09/family-budget-client/internal/config"
	"github.com/jrsteele09/family-budget-client/savings"
	"github.com/jrsteele09/family-budget-client/session"
	"github.com/jrsteele09/family-budget-client/token"
	"github.com/jrsteele09/family-budget-client/token/filestore"
	"github.com/jrsteele09/family-budget-client/token/redisstore"
	tokenrepofake "github.com/jrsteele09/family-budget-client/token/repofake"
	"github.com/jrsteele09/family-budget-client/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type App struct {
	Client   *apiclient.Client
	Session  *session.Store
	Users    *users.Service
	Families *families.Service
	Budgets  *budgets.Service
	Savings  *savings.Service
	Storage  token.Storage

	closers []io.Closer
}

type options struct {
	logger           zerolog.Logger
	storage          token.Storage
	registerer       prometheus.Registerer
	onSessionExpired apiclient.SessionExpiredHandler
}

type Option func(*options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStorage bypasses TOKEN_STORE and uses s directly.
func WithStorage(s token.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithSessionExpiredHandler is called once the session can no longer be refreshed.
func WithSessionExpiredHandler(fn apiclient.SessionExpiredHandler) Option {
	return func(o *options) {
		o.onSessionExpired = fn
	}
}

// New builds the application. Nothing is fetched from the API until Initialize is called.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{}
	if o.storage != nil {
		a.Storage = o.storage
	} else {
		storage, closer, err := NewStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Storage = storage
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	clientOpts := []apiclient.Option{
		apiclient.WithLogger(o.logger),
		apiclient.WithTimeout(cfg.GetHTTPTimeout()),
	}
	if o.registerer != nil {
		clientOpts = append(clientOpts, apiclient.WithRegisterer(o.registerer))
	}
	if o.onSessionExpired != nil {
		clientOpts = append(clientOpts, apiclient.WithSessionExpiredHandler(o.onSessionExpired))
	}
	a.Client = apiclient.New(cfg.GetBaseURL(), clientOpts...)

	a.Session = session.New(ctx, a.Client, a.Storage, session.WithLogger(o.logger))
	a.Client.SetAuthenticator(a.Session)

	a.Users = users.NewService(a.Client, a.Session)
	a.Families = families.NewService(a.Client, a.Storage, families.WithLogger(o.logger))
	a.Budgets = budgets.NewService(a.Client)
	a.Savings = savings.NewService(a.Client)
	return a, nil
}

// NewStorage opens the token storage selected by TOKEN_STORE. The returned closer is nil when
// the storage holds no connection.
func NewStorage(ctx context.Context, cfg config.Config) (token.Storage, io.Closer, error) {
	switch cfg.GetTokenStore() {
	case config.TokenStoreRedis:
		s, err := redisstore.Connect(ctx, cfg.GetRedisAddr(), cfg.GetRedisPassword(), cfg.GetRedisDB(), cfg.GetRedisPrefix())
		if err != nil {
			return nil, nil, pkgerrors.Wrap(err, "[app.NewStorage] redis")
		}
		return s, s, nil
	case config.TokenStoreMemory:
		return tokenrepofake.NewFakeTokenStore(), nil, nil
	case config.TokenStoreFile, "":
		key, err := cfg.GetTokenStoreKey()
		if err != nil {
			return nil, nil, pkgerrors.Wrap(err, "[app.NewStorage]")
		}
		var fileOpts []filestore.Option
		if key != nil {
			fileOpts = append(fileOpts, filestore.WithEncryptionKey(key))
		}
		s, err := filestore.New(cfg.GetDataFolder(), fileOpts...)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(err, "[app.NewStorage] file")
		}
		return s, nil, nil
	default:
		return nil, nil, pkgerrors.Errorf("[app.NewStorage] unknown token store %q", cfg.GetTokenStore())
	}
}

// Initialize restores the session from storage. See session.Store.Initialize.
func (a *App) Initialize(ctx context.Context) session.State {
	a.Session.Initialize(ctx)
	return a.Session.State()
}

func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
