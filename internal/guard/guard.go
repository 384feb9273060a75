// Package guard gates the protected view tree on the session state.
package guard

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Devmainman/kurosadmin/internal/api"
	"github.com/Devmainman/kurosadmin/internal/session"
	"github.com/Devmainman/kurosadmin/pkg/httputil"
	"github.com/Devmainman/kurosadmin/pkg/logger"
)

// Verdict is the guard's answer for one request.
type Verdict string

const (
	// Hold means the session has not settled yet; nothing may be shown.
	Hold          Verdict = "hold"
	Allow         Verdict = "allow"
	RedirectLogin Verdict = "redirect_login"
)

// Decision is a verdict plus what the redirect should say.
type Decision struct {
	Verdict Verdict
	// Expired is set when the session ended because the server rejected it.
	Expired bool
}

// Location returns the login route for a RedirectLogin decision.
func (d Decision) Location() string {
	if d.Expired {
		return session.RouteLogin + "?reason=expired"
	}
	return session.RouteLogin
}

// Decide maps a session snapshot to a decision.
func Decide(s session.Snapshot) Decision {
	switch s.State {
	case session.StateUnknown:
		return Decision{Verdict: Hold}
	case session.StateAuthenticated:
		return Decision{Verdict: Allow}
	default:
		return Decision{Verdict: RedirectLogin, Expired: s.Reason == session.ReasonExpired}
	}
}

// Source is the session as seen by the guard.
type Source interface {
	Snapshot() session.Snapshot
	Ready() <-chan struct{}
}

// Guard decides entry into protected views.
type Guard struct {
	src    Source
	logger *slog.Logger
}

// New creates a Guard over src.
func New(src Source, logger *slog.Logger) *Guard {
	return &Guard{src: src, logger: logger}
}

// Decide returns the decision for the current session without waiting.
func (g *Guard) Decide() Decision {
	return Decide(g.src.Snapshot())
}

// Await waits for the session to settle, or for ctx to end, and decides.
// If ctx ends first the decision is Hold.
func (g *Guard) Await(ctx context.Context) Decision {
	select {
	case <-g.src.Ready():
		return g.Decide()
	case <-ctx.Done():
		return Decision{Verdict: Hold}
	}
}

// loadingBody is served while the session is unsettled.
type loadingBody struct {
	Status string `json:"status"`
}

// Middleware admits requests only for an authenticated session. Requests
// arriving before the session settles wait up to holdTimeout, then get a 503
// asking the client to retry. Browsers are redirected to the login view; API
// clients get a 401 envelope naming it.
func (g *Guard) Middleware(holdTimeout time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(1, int(holdTimeout.Round(time.Second)/time.Second)))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), holdTimeout)
			d := g.Await(ctx)
			cancel()

			switch d.Verdict {
			case Allow:
				snap := g.src.Snapshot()
				if snap.User != nil {
					r = r.WithContext(logger.WithUserID(r.Context(), snap.User.ID))
				}
				next.ServeHTTP(w, r)

			case Hold:
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("Cache-Control", "no-store")
				httputil.WriteJSON(w, http.StatusServiceUnavailable, loadingBody{Status: "loading"})

			default:
				g.logger.DebugContext(r.Context(), "protected view refused",
					slog.String("path", r.URL.Path),
					slog.Bool("expired", d.Expired),
				)
				Refuse(w, r, d)
			}
		})
	}
}

// Refuse answers a request the session no longer admits: browsers are
// redirected to the login route, API callers get a 401 naming it.
func Refuse(w http.ResponseWriter, r *http.Request, d Decision) {
	if wantsHTML(r) {
		http.Redirect(w, r, d.Location(), http.StatusFound)
		return
	}
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
		Error:    &httputil.ErrorResponse{Code: code(d), Message: message(d)},
		Redirect: d.Location(),
	})
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func code(d Decision) string {
	if d.Expired {
		return "SESSION_EXPIRED"
	}
	return "UNAUTHORIZED"
}

func message(d Decision) string {
	if d.Expired {
		return api.ExpiredMessage
	}
	return "Please log in to continue."
}
