// Package handler is the console's HTTP surface: the session endpoints, the
// guarded view tree and the live update streams.
package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Devmainman/kurosadmin/internal/cache"
	"github.com/Devmainman/kurosadmin/internal/config"
	"github.com/Devmainman/kurosadmin/internal/domain"
	"github.com/Devmainman/kurosadmin/internal/guard"
	"github.com/Devmainman/kurosadmin/internal/mutation"
	"github.com/Devmainman/kurosadmin/internal/notify"
	"github.com/Devmainman/kurosadmin/internal/resource"
	"github.com/Devmainman/kurosadmin/internal/session"
	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
	"github.com/Devmainman/kurosadmin/pkg/health"
	"github.com/Devmainman/kurosadmin/pkg/httputil"
	pkgmiddleware "github.com/Devmainman/kurosadmin/pkg/middleware"
)

const component = "console"

// Session is the session controller as used by the HTTP surface.
type Session interface {
	Snapshot() session.Snapshot
	Login(ctx context.Context, email, password string) (session.Outcome, error)
	VerifyTwoFactor(ctx context.Context, userID, code string) (session.Outcome, error)
	Logout(ctx context.Context) session.Outcome
	Subscribe() (<-chan session.Snapshot, func())
}

// Passwords runs the forgotten-password flow against the admin API.
type Passwords interface {
	ForgotPassword(ctx context.Context, req domain.PasswordResetRequest) error
	ResetPassword(ctx context.Context, resetToken string, req domain.PasswordReset) error
}

// Cache is the resource cache as used by the views.
type Cache interface {
	Read(ctx context.Context, key resource.Key) cache.Entry
	Load(ctx context.Context, key resource.Key) (cache.Entry, error)
	Subscribe(key resource.Key) *cache.Subscription
}

// Mutator performs writes.
type Mutator interface {
	Mutate(ctx context.Context, req mutation.Request) (mutation.Outcome, error)
	Run(ctx context.Context, a mutation.Action) (mutation.Outcome, error)
}

// Deps are the components the router serves.
type Deps struct {
	Session   Session
	Passwords Passwords
	Guard     *guard.Guard
	Cache     Cache
	Mutator   Mutator
	Actions   mutation.ActionWriter
	Feed      *notify.Feed
	Notifier  notify.Notifier
	Health    *health.Handler
}

// NewRouter creates the chi router with global middleware, health and metrics
// endpoints, the public session routes and the guarded views.
func NewRouter(cfg *config.Config, deps Deps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	cors := pkgmiddleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	r.Use(pkgmiddleware.CORS(cors))
	r.Use(pkgmiddleware.RateLimit(float64(cfg.RateLimitRPS), cfg.RateLimitBurst, logger))
	r.Use(pkgmiddleware.Recovery(logger))
	r.Use(pkgmiddleware.RequestLogging(logger))
	r.Use(pkgmiddleware.PrometheusMetrics(component))
	r.Use(pkgmiddleware.Tracing(component))
	r.Use(pkgmiddleware.RequestLogger(logger, func(context.Context) string {
		if s := deps.Session.Snapshot(); s.User != nil {
			return s.User.ID
		}
		return ""
	}))

	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Get("/metrics", metricsIPAllowlist(cfg.MetricsAllowedCIDRs, logger)(promhttp.Handler()).ServeHTTP)

	auth := &authHandler{session: deps.Session, passwords: deps.Passwords, notifier: deps.Notifier, logger: logger}
	views := &viewHandler{session: deps.Session, cache: deps.Cache, mutator: deps.Mutator, actions: deps.Actions, logger: logger}
	streams := &streamHandler{cache: deps.Cache, session: deps.Session, logger: logger}

	// Streams stay open for as long as the client watches, so they sit
	// outside the request timeout.
	r.Group(func(r chi.Router) {
		r.Use(pkgmiddleware.NoStore)
		r.Get("/session/events", streams.Session)
		r.Group(func(r chi.Router) {
			r.Use(deps.Guard.Middleware(cfg.GuardHoldTimeout))
			r.Get("/watch/{type}", streams.Collection)
			r.Get("/watch/{type}/{id}", streams.Detail)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Use(pkgmiddleware.NoStore)

		r.Post("/login", auth.Login)
		r.Post("/verify-2fa", auth.VerifyTwoFactor)
		r.Post("/logout", auth.Logout)
		r.Get("/session", auth.Session)
		r.Post("/forgot-password", auth.ForgotPassword)
		r.Put("/reset-password/{token}", auth.ResetPassword)
		r.Get("/notifications", func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteData(w, http.StatusOK, deps.Feed.Recent())
		})

		r.Route("/views", func(r chi.Router) {
			r.Use(deps.Guard.Middleware(cfg.GuardHoldTimeout))

			r.Get("/analytics/dashboard", views.Dashboard)
			r.Get("/settings", views.Settings)
			r.Post("/settings/bulk", views.UpdateSettings)
			r.Get("/services/slug/{slug}", views.ServiceBySlug)
			r.Get("/newsletter/stats", views.NewsletterStats)
			r.Post("/newsletter/send", views.SendNewsletter)
			r.Get("/careers/{id}/applications", views.Applications)
			r.Put("/quotes/{id}/status", views.QuoteStatus)
			r.Post("/quotes/{id}/send-quote", views.SendQuote)
			r.Put("/contacts/{id}/status", views.ContactStatus)

			r.Get("/{type}", views.List)
			r.Post("/{type}", views.Create)
			r.Get("/{type}/{id}", views.Get)
			r.Put("/{type}/{id}", views.Update)
			r.Delete("/{type}/{id}", views.Delete)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, &apperrors.AppError{
			Code: "NOT_FOUND", Message: "no such route", Status: http.StatusNotFound, Err: apperrors.ErrNotFound,
		}, logger)
	})

	return r
}

// metricsIPAllowlist returns middleware that restricts access to requests
// from IPs within the configured CIDR ranges.
func metricsIPAllowlist(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("invalid metrics CIDR, skipping", slog.String("cidr", cidr), slog.String("error", err.Error()))
			continue
		}
		nets = append(nets, ipNet)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			ip := net.ParseIP(host)

			allowed := false
			if ip != nil {
				for _, n := range nets {
					if n.Contains(ip) {
						allowed = true
						break
					}
				}
			}

			if !allowed {
				logger.Warn("metrics access denied", slog.String("ip", host))
				httputil.WriteError(w, r, apperrors.Forbidden("metrics endpoint is restricted"), logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
