// Package session owns the console's authentication state: the credential
// lifecycle, the two-factor challenge and the transitions the route guard
// observes.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Devmainman/kurosadmin/internal/api"
	"github.com/Devmainman/kurosadmin/internal/credential"
	"github.com/Devmainman/kurosadmin/internal/domain"
	"github.com/Devmainman/kurosadmin/internal/notify"
	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
	"github.com/Devmainman/kurosadmin/pkg/logger"
	"github.com/Devmainman/kurosadmin/pkg/validator"
)

// State is the authentication state.
type State string

const (
	// StateUnknown holds until Bootstrap settles.
	StateUnknown          State = "unknown"
	StateAnonymous        State = "anonymous"
	StatePendingTwoFactor State = "pending_two_factor"
	StateAuthenticated    State = "authenticated"
)

// Reason records why the session last became anonymous.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonLogout           Reason = "logout"
	ReasonExpired          Reason = "expired"
	ReasonBootstrapFailed  Reason = "bootstrap_failed"
	ReasonChallengeExpired Reason = "challenge_expired"
)

// Navigation targets returned in an Outcome.
const (
	RouteLogin     = "/login"
	RouteVerify    = "/verify-2fa"
	RouteDashboard = "/dashboard"
)

const (
	msgLoginSuccess  = "Login successful!"
	msgVerifySuccess = "2FA verification successful!"
	msgLogoutSuccess = "Logged out successfully"
)

var (
	// ErrNoChallenge is returned by VerifyTwoFactor when no challenge is
	// pending for the given user.
	ErrNoChallenge = &apperrors.AppError{
		Code:    "NO_CHALLENGE",
		Message: "No two-factor verification is pending. Please log in again.",
		Status:  http.StatusConflict,
		Err:     apperrors.ErrConflict,
	}

	// ErrChallengeExpired is returned by VerifyTwoFactor once the pending
	// challenge has outlived the configured window.
	ErrChallengeExpired = &apperrors.AppError{
		Code:    "CHALLENGE_EXPIRED",
		Message: "The verification window has closed. Please log in again.",
		Status:  http.StatusUnauthorized,
		Err:     apperrors.ErrUnauthorized,
	}
)

// Snapshot is a copy of the session. Token is set only when State is
// StateAuthenticated and PendingUserID only when it is StatePendingTwoFactor.
type Snapshot struct {
	State         State        `json:"state"`
	User          *domain.User `json:"user,omitempty"`
	PendingUserID string       `json:"pendingUserId,omitempty"`
	Token         string       `json:"-"`
	Reason        Reason       `json:"reason,omitempty"`
}

// Authenticated reports whether the snapshot holds a usable credential.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated
}

// Outcome tells the caller where to navigate next.
type Outcome struct {
	RequiresTwoFactor bool   `json:"requiresTwoFactor,omitempty"`
	UserID            string `json:"userId,omitempty"`
	Redirect          string `json:"redirect"`
}

// AuthAPI is the part of the admin API the session drives.
type AuthAPI interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, code domain.TwoFactorCode) (*domain.LoginResult, error)
	Me(ctx context.Context) (*domain.User, error)
	Logout(ctx context.Context, token string) error
}

// Clearer drops every cached entry.
type Clearer interface {
	InvalidateAll()
}

// Config holds the session settings.
type Config struct {
	// TwoFactorTTL bounds how long a pending challenge stays answerable.
	// Zero disables the bound.
	TwoFactorTTL time.Duration
}

// Controller is the only writer of the session state. It is safe for
// concurrent use and never holds mu across a network call. credMu orders
// writes to the credential store with the transitions they belong to, so the
// stored token always matches the settled state.
type Controller struct {
	api      AuthAPI
	tokens   credential.Store
	cache    Clearer
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	credMu sync.Mutex

	mu          sync.Mutex
	snap        Snapshot
	challengeAt time.Time
	subs        map[chan Snapshot]struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

// NewController creates a Controller in StateUnknown. Bootstrap must be
// called once to settle it.
func NewController(authAPI AuthAPI, tokens credential.Store, cache Clearer, notifier notify.Notifier, cfg Config, logger *slog.Logger) *Controller {
	return &Controller{
		api:      authAPI,
		tokens:   tokens,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		snap:     Snapshot{State: StateUnknown},
		subs:     make(map[chan Snapshot]struct{}),
		ready:    make(chan struct{}),
	}
}

// Bootstrap restores the session from the credential store. A stored token is
// checked against the server unless it is a JWT that has visibly expired.
// Any failure clears the token. Ready is closed on every path.
func (c *Controller) Bootstrap(ctx context.Context) {
	defer c.readyOnce.Do(func() { close(c.ready) })

	token, ok := c.tokens.Load(ctx)
	if !ok {
		c.settleBootstrap(ctx, Snapshot{State: StateAnonymous})
		return
	}

	if expiredJWT(token, c.now()) {
		c.logger.InfoContext(ctx, "stored token has expired, discarding")
		c.settleBootstrap(ctx, Snapshot{State: StateAnonymous, Reason: ReasonExpired})
		return
	}

	user, err := c.api.Me(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "session restore failed",
			slog.String("error", err.Error()),
		)
		c.settleBootstrap(ctx, Snapshot{State: StateAnonymous, Reason: ReasonBootstrapFailed})
		return
	}

	ctx = logger.WithUserID(ctx, user.ID)
	c.logger.InfoContext(ctx, "session restored")
	c.settleBootstrap(ctx, Snapshot{State: StateAuthenticated, User: user, Token: token})
}

// settleBootstrap applies the bootstrap result unless a login or logout has
// already settled the session. An anonymous result discards the stored token,
// but only while the session is still unknown: a login that won the race owns
// the store by then.
func (c *Controller) settleBootstrap(ctx context.Context, next Snapshot) {
	c.credMu.Lock()
	defer c.credMu.Unlock()

	if c.Snapshot().State != StateUnknown {
		c.logger.DebugContext(ctx, "bootstrap result superseded", slog.String("state", string(next.State)))
		return
	}
	if next.State == StateAnonymous && next.Reason != ReasonNone {
		c.clearToken(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.State != StateUnknown {
		return
	}
	c.transition(ctx, next)
}

// Ready is closed once Bootstrap has settled.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Snapshot returns the current session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Subscribe delivers the current session and every later change. Slow
// receivers see only the newest snapshot. The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	c.subs[ch] = struct{}{}
	ch <- c.snap
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// Login submits credentials. A rejected login leaves the session untouched
// and returns the error for the form to show.
func (c *Controller) Login(ctx context.Context, email, password string) (Outcome, error) {
	creds := domain.Credentials{Email: email, Password: password}
	if err := validator.Validate(creds); err != nil {
		return Outcome{}, formError(err)
	}

	res, err := c.api.Login(ctx, creds)
	if err != nil {
		c.logger.InfoContext(ctx, "login rejected", slog.String("error", err.Error()))
		return Outcome{}, err
	}

	if res.RequiresTwoFactor {
		if res.UserID == "" {
			return Outcome{}, apperrors.Internal(errors.New("two-factor challenge without user id"))
		}
		c.credMu.Lock()
		c.clearToken(ctx)
		c.mu.Lock()
		prev := c.snap
		c.challengeAt = c.now()
		c.transition(ctx, Snapshot{State: StatePendingTwoFactor, PendingUserID: res.UserID})
		c.mu.Unlock()
		c.credMu.Unlock()
		c.displaced(ctx, prev, "")

		c.logger.InfoContext(logger.WithUserID(ctx, res.UserID), "two-factor challenge issued")
		return Outcome{RequiresTwoFactor: true, UserID: res.UserID, Redirect: RouteVerify}, nil
	}

	if err := c.authenticate(ctx, res); err != nil {
		return Outcome{}, err
	}
	c.notifier.Success(ctx, msgLoginSuccess)
	return Outcome{Redirect: RouteDashboard}, nil
}

// VerifyTwoFactor answers the pending challenge. A rejected code leaves the
// challenge pending.
func (c *Controller) VerifyTwoFactor(ctx context.Context, userID, code string) (Outcome, error) {
	c.mu.Lock()
	if c.snap.State != StatePendingTwoFactor || c.snap.PendingUserID != userID {
		c.mu.Unlock()
		return Outcome{}, ErrNoChallenge
	}
	if ttl := c.cfg.TwoFactorTTL; ttl > 0 && c.now().Sub(c.challengeAt) > ttl {
		c.transition(ctx, Snapshot{State: StateAnonymous, Reason: ReasonChallengeExpired})
		c.mu.Unlock()
		c.logger.InfoContext(logger.WithUserID(ctx, userID), "two-factor challenge expired")
		return Outcome{}, ErrChallengeExpired
	}
	c.mu.Unlock()

	req := domain.TwoFactorCode{UserID: userID, Code: code}
	if err := validator.Validate(req); err != nil {
		return Outcome{}, formError(err)
	}

	res, err := c.api.VerifyTwoFactor(ctx, req)
	if err != nil {
		c.logger.InfoContext(logger.WithUserID(ctx, userID), "two-factor code rejected",
			slog.String("error", err.Error()),
		)
		return Outcome{}, err
	}

	if err := c.authenticate(ctx, res); err != nil {
		return Outcome{}, err
	}
	c.notifier.Success(ctx, msgVerifySuccess)
	return Outcome{Redirect: RouteDashboard}, nil
}

// authenticate persists the issued token and enters StateAuthenticated,
// replacing any session that was already authenticated.
func (c *Controller) authenticate(ctx context.Context, res *domain.LoginResult) error {
	if res.Token == "" || res.User == nil {
		return apperrors.Internal(errors.New("login response carried no token"))
	}

	c.credMu.Lock()
	if err := c.tokens.Save(ctx, res.Token); err != nil {
		c.credMu.Unlock()
		c.logger.ErrorContext(ctx, "failed to persist token", slog.String("error", err.Error()))
		return apperrors.Internal(err)
	}
	c.mu.Lock()
	prev := c.snap
	c.challengeAt = time.Time{}
	c.transition(ctx, Snapshot{State: StateAuthenticated, User: res.User, Token: res.Token})
	c.mu.Unlock()
	c.credMu.Unlock()

	c.displaced(ctx, prev, res.Token)
	c.logger.InfoContext(logger.WithUserID(ctx, res.User.ID), "user authenticated")
	return nil
}

// displaced cleans up after a login replaced an authenticated session: the
// previous account's cached views are dropped and its token is revoked on a
// best-effort basis.
func (c *Controller) displaced(ctx context.Context, prev Snapshot, current string) {
	if prev.State != StateAuthenticated {
		return
	}
	c.cache.InvalidateAll()
	if prev.Token == "" || prev.Token == current {
		return
	}
	if err := c.api.Logout(ctx, prev.Token); err != nil {
		c.logger.WarnContext(ctx, "remote logout of replaced session failed", slog.String("error", err.Error()))
	}
}

// Logout ends the session locally, whatever the server says. The server is
// told afterwards on a best-effort basis.
func (c *Controller) Logout(ctx context.Context) Outcome {
	c.mu.Lock()
	token := c.snap.Token
	c.mu.Unlock()

	c.end(ctx, ReasonLogout)
	c.notifier.Success(ctx, msgLogoutSuccess)

	if token != "" {
		if err := c.api.Logout(ctx, token); err != nil {
			c.logger.WarnContext(ctx, "remote logout failed", slog.String("error", err.Error()))
		}
	}
	return Outcome{Redirect: RouteLogin}
}

// ForceExpire ends an authenticated session after the server rejected token,
// the credential the failed request carried. A rejection of any other token,
// including none, predates the current session and is ignored, as are calls
// made while not authenticated, so a burst of rejected requests yields a
// single notice.
func (c *Controller) ForceExpire(ctx context.Context, token string) {
	c.mu.Lock()
	current := c.snap.State == StateAuthenticated && token != "" && token == c.snap.Token
	c.mu.Unlock()
	if !current {
		return
	}

	if !c.endToken(ctx, ReasonExpired, token) {
		return
	}
	c.logger.WarnContext(ctx, "session expired")
	c.notifier.Expired(ctx, api.ExpiredMessage)
}

// end clears the credential and the cache and enters StateAnonymous. It
// reports whether this call performed the transition out of
// StateAuthenticated.
func (c *Controller) end(ctx context.Context, reason Reason) bool {
	return c.endToken(ctx, reason, "")
}

// endToken is end restricted, when token is set, to the authenticated session
// holding that token. A session that has already moved on is left alone.
func (c *Controller) endToken(ctx context.Context, reason Reason, token string) bool {
	c.credMu.Lock()
	snap := c.Snapshot()
	wasAuthenticated := snap.State == StateAuthenticated
	if token != "" && (!wasAuthenticated || snap.Token != token) {
		c.credMu.Unlock()
		return false
	}
	c.clearToken(ctx)

	c.mu.Lock()
	c.challengeAt = time.Time{}
	c.transition(ctx, Snapshot{State: StateAnonymous, Reason: reason})
	c.mu.Unlock()
	c.credMu.Unlock()

	c.readyOnce.Do(func() { close(c.ready) })
	c.cache.InvalidateAll()
	return wasAuthenticated
}

func (c *Controller) clearToken(ctx context.Context) {
	if err := c.tokens.Clear(ctx); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear stored token", slog.String("error", err.Error()))
	}
}

// transition replaces the snapshot and fans it out. Caller holds c.mu.
func (c *Controller) transition(ctx context.Context, next Snapshot) {
	prev := c.snap.State
	c.snap = next
	transitionsTotal.WithLabelValues(string(prev), string(next.State)).Inc()

	c.logger.DebugContext(ctx, "session transition",
		slog.String("from", string(prev)),
		slog.String("to", string(next.State)),
		slog.String("reason", string(next.Reason)),
	)

	for ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

// expiredJWT reports whether token is a JWT whose exp claim is in the past.
// The signature is not checked; the server remains the authority.
func expiredJWT(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time)
}

func formError(err error) error {
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		return ve.AppError()
	}
	return err
}
