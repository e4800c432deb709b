// Package fakebackend is an in-memory stand-in for the budgeting REST API. It issues real
// HS256 token pairs, answers 401 for expired or revoked access tokens and keeps enough of the
// family, budget and savings model to exercise every client call.
package fakebackend

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/family-budget-client/budgets"
	"github.com/jrsteele09/family-budget-client/families"
	"github.com/jrsteele09/family-budget-client/savings"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// APIPrefix is where the backend mounts its routes. Clients use <server URL>+APIPrefix as
	// their base URL.
	APIPrefix = "/api"

	defaultAccessTTL  = 5 * time.Minute
	defaultRefreshTTL = 24 * time.Hour

	userKey = "user_id"
)

type account struct {
	id        int
	email     string
	password  string
	firstName string
	lastName  string
}

// Backend is safe for concurrent use.
type Backend struct {
	echo       *echo.Echo
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	logger     zerolog.Logger
	logRoutes  bool

	lock         sync.Mutex
	nextID       int
	accessGen    int
	refreshGen   int
	accounts     map[int]*account
	emails       map[string]int
	families     map[int]*families.Family
	memberships  map[int]*families.Membership
	budgets      map[int]*budgets.Budget
	transactions map[int]*budgets.Transaction
	goals        map[int]*savings.Goal
	hits         map[string]int
}

// Option defines a function type to modify the Backend instance.
type Option func(*Backend)

func WithAccessTTL(d time.Duration) Option {
	return func(b *Backend) {
		b.accessTTL = d
	}
}

func WithRefreshTTL(d time.Duration) Option {
	return func(b *Backend) {
		b.refreshTTL = d
	}
}

// WithNowTime sets the clock used for issuing and checking tokens.
func WithNowTime(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

func WithSecret(secret []byte) Option {
	return func(b *Backend) {
		b.secret = secret
	}
}

// WithRouteLogging prints every request with a coloured method tag.
func WithRouteLogging(logger zerolog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
		b.logRoutes = true
	}
}

func New(options ...Option) *Backend {
	b := &Backend{
		secret:       []byte(uuid.NewString()),
		accessTTL:    defaultAccessTTL,
		refreshTTL:   defaultRefreshTTL,
		now:          time.Now,
		logger:       log.Logger,
		nextID:       1,
		accounts:     make(map[int]*account),
		emails:       make(map[string]int),
		families:     make(map[int]*families.Family),
		memberships:  make(map[int]*families.Membership),
		budgets:      make(map[int]*budgets.Budget),
		transactions: make(map[int]*budgets.Transaction),
		goals:        make(map[int]*savings.Goal),
		hits:         make(map[string]int),
	}
	for _, opt := range options {
		opt(b)
	}

	b.echo = echo.New()
	b.echo.HideBanner = true
	b.echo.HidePort = true
	b.echo.Use(b.countHits)
	if b.logRoutes {
		b.echo.Use(b.logRoute)
	}
	b.routes()
	return b
}

// ServeHTTP makes the backend usable with httptest.NewServer and http.Server.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.echo.ServeHTTP(w, r)
}

func (b *Backend) routes() {
	api := b.echo.Group(APIPrefix)

	api.POST("/users/register/", b.register)
	api.POST("/users/token/", b.obtainToken)
	api.POST("/users/token/refresh/", b.refreshToken)

	auth := api.Group("", b.authenticate)
	auth.GET("/users/profile/", b.getProfile)
	auth.PUT("/users/profile/", b.updateProfile)
	auth.POST("/users/change-password/", b.changePassword)

	auth.GET("/families/", b.listFamilies)
	auth.POST("/families/", b.createFamily)
	auth.GET("/families/invitations/", b.listInvitations)
	auth.POST("/families/invitations/:id/respond/", b.respondInvitation)
	auth.GET("/families/:id/", b.getFamily)
	auth.PUT("/families/:id/", b.updateFamily)
	auth.GET("/families/:id/members/", b.listMembers)
	auth.POST("/families/:id/invite/", b.invite)
	auth.DELETE("/families/:id/members/:member/", b.removeMember)
	auth.POST("/families/:id/members/:member/promote/", b.promoteMember)
	auth.DELETE("/families/:id/leave/", b.leaveFamily)

	auth.GET("/budgets/", b.listBudgets)
	auth.POST("/budgets/", b.createBudget)
	auth.GET("/budgets/transactions/", b.listTransactions)
	auth.POST("/budgets/transactions/", b.createTransaction)
	auth.DELETE("/budgets/transactions/:id/", b.deleteTransaction)
	auth.GET("/budgets/families/:id/transactions/", b.familyHistory)
	auth.GET("/budgets/families/:id/analytics/budget/", b.analytics)
	auth.GET("/budgets/savings-goals/", b.listGoals)
	auth.POST("/budgets/savings-goals/", b.createGoal)
	auth.GET("/budgets/savings-goals/:id/", b.getGoal)
	auth.PUT("/budgets/savings-goals/:id/", b.updateGoal)
	auth.DELETE("/budgets/savings-goals/:id/", b.deleteGoal)
	auth.POST("/budgets/savings-contributions/", b.contribute)
	auth.GET("/budgets/:id/", b.getBudget)
	auth.PUT("/budgets/:id/", b.updateBudget)
	auth.DELETE("/budgets/:id/", b.deleteBudget)
	auth.GET("/budgets/:id/summary/", b.budgetSummary)
}

// Hits returns how many requests reached the route registered as path (without the /api
// prefix), e.g. Hits(http.MethodPost, "/users/token/refresh/").
func (b *Backend) Hits(method, path string) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.hits[method+" "+APIPrefix+path]
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh tokens stay valid.
func (b *Backend) ExpireAccessTokens() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.accessGen++
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (b *Backend) RevokeRefreshTokens() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.refreshGen++
}

func (b *Backend) countHits(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		b.lock.Lock()
		b.hits[c.Request().Method+" "+c.Path()]++
		b.lock.Unlock()
		return next(c)
	}
}

var methodColors = map[string]string{
	http.MethodGet:    "\033[32m",
	http.MethodPost:   "\033[34m",
	http.MethodPut:    "\033[36m",
	http.MethodDelete: "\033[33m",
	http.MethodPatch:  "\033[35m",
}

const (
	gray       = "\033[90m"
	resetColor = "\033[0m"
)

func (b *Backend) logRoute(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		method := c.Request().Method
		color, ok := methodColors[method]
		if !ok {
			color = gray
		}
		err := next(c)
		b.logger.Info().
			Int("status", c.Response().Status).
			Msgf("[%s %-7s%s] %s", color, method, resetColor, c.Request().URL.Path)
		return err
	}
}

// issue signs a token of the given type for userID.
func (b *Backend) issue(userID int, tokenType string, ttl time.Duration, gen int) (string, error) {
	now := b.now()
	claims := jwtlib.MapClaims{
		"token_type": tokenType,
		"user_id":    userID,
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
		"gen":        gen,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, nil
}

// verify checks signature, expiry, type and generation and returns the user id.
func (b *Backend) verify(raw, tokenType string, gen int) (int, bool) {
	parsed, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (interface{}, error) {
		return b.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithTimeFunc(b.now))
	if err != nil || !parsed.Valid {
		return 0, false
	}
	mc, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return 0, false
	}
	if tt, _ := mc["token_type"].(string); tt != tokenType {
		return 0, false
	}
	if g, _ := mc["gen"].(float64); int(g) != gen {
		return 0, false
	}
	uid, _ := mc["user_id"].(float64)
	return int(uid), uid > 0
}

func (b *Backend) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Authentication credentials were not provided."})
		}

		b.lock.Lock()
		gen := b.accessGen
		b.lock.Unlock()

		userID, ok := b.verify(raw, "access", gen)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
		}

		b.lock.Lock()
		_, exists := b.accounts[userID]
		b.lock.Unlock()
		if !exists {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "User not found", "code": "user_not_found"})
		}
		c.Set(userKey, userID)
		return next(c)
	}
}

func currentUser(c echo.Context) int {
	id, _ := c.Get(userKey).(int)
	return id
}

func (b *Backend) newID() int {
	id := b.nextID
	b.nextID++
	return id
}

func detail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"detail": msg})
}

func fieldError(c echo.Context, field, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{field: []string{msg}})
}

func notFound(c echo.Context) error {
	return detail(c, http.StatusNotFound, "Not found.")
}

// bindBody decodes only the JSON body; path and query parameters are read explicitly.
func bindBody(c echo.Context, v interface{}) error {
	return new(echo.DefaultBinder).BindBody(c, v)
}
