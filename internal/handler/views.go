package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Devmainman/kurosadmin/internal/api"
	"github.com/Devmainman/kurosadmin/internal/cache"
	"github.com/Devmainman/kurosadmin/internal/domain"
	"github.com/Devmainman/kurosadmin/internal/guard"
	"github.com/Devmainman/kurosadmin/internal/mutation"
	"github.com/Devmainman/kurosadmin/internal/resource"
	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
	"github.com/Devmainman/kurosadmin/pkg/httputil"
	"github.com/Devmainman/kurosadmin/pkg/pagination"
)

type viewHandler struct {
	session Session
	cache   Cache
	mutator Mutator
	actions mutation.ActionWriter
	logger  *slog.Logger
}

// entryView is a cache entry as served to a view. Data stays populated while
// a refresh runs or after it failed.
type entryView struct {
	Data      any          `json:"data"`
	Status    cache.Status `json:"status"`
	FetchedAt *time.Time   `json:"fetchedAt,omitempty"`
	Stale     bool         `json:"stale"`
	Error     string       `json:"error,omitempty"`
}

func newEntryView(e cache.Entry) entryView {
	v := entryView{Data: e.Data, Status: e.Status, Stale: e.Stale}
	if !e.FetchedAt.IsZero() {
		at := e.FetchedAt
		v.FetchedAt = &at
	}
	if e.Err != nil {
		v.Error = apperrors.UserMessage(e.Err)
	}
	return v
}

// reservedParams are list parameters handled by pagination or by the view
// itself rather than passed through as filters.
var reservedParams = map[string]bool{"page": true, "limit": true, "per_page": true, "search": true, "wait": true}

// collectionKey builds the list key for t from the request query. Pagination
// is normalised so equivalent requests share one entry.
func collectionKey(t resource.Type, q url.Values) resource.Key {
	params := pagination.FromQuery(q).Values()
	for name, values := range q {
		if !reservedParams[name] {
			params[name] = values
		}
	}
	return resource.CollectionKey(t, params)
}

func entityType(r *http.Request) (resource.Type, error) {
	t, err := resource.ParseType(chi.URLParam(r, "type"))
	if err != nil || !t.IsEntity() {
		return "", apperrors.NotFound("resource type", chi.URLParam(r, "type"))
	}
	return t, nil
}

// serve answers with the entry for key. By default it waits for the entry to
// settle; with ?wait=false it returns the current state at once. A failed
// entry that still has data is served with its error attached.
func (h *viewHandler) serve(w http.ResponseWriter, r *http.Request, key resource.Key) {
	if r.URL.Query().Get("wait") == "false" {
		httputil.WriteData(w, http.StatusOK, newEntryView(h.cache.Read(r.Context(), key)))
		return
	}

	e, err := h.cache.Load(r.Context(), key)
	if h.ended(w, r) {
		return
	}
	if err != nil && e.Data == nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newEntryView(e))
}

// ended refuses the request when the session ended while it was served,
// typically because the admin API rejected the stored token.
func (h *viewHandler) ended(w http.ResponseWriter, r *http.Request) bool {
	snap := h.session.Snapshot()
	if snap.Authenticated() {
		return false
	}
	guard.Refuse(w, r, guard.Decide(snap))
	return true
}

func (h *viewHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperrors.ErrSessionExpired) && h.ended(w, r) {
		return
	}
	httputil.WriteError(w, r, err, h.logger)
}

// List handles GET /views/{type}.
func (h *viewHandler) List(w http.ResponseWriter, r *http.Request) {
	t, err := entityType(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.serve(w, r, collectionKey(t, r.URL.Query()))
}

// Get handles GET /views/{type}/{id}.
func (h *viewHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := entityType(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.serve(w, r, resource.DetailKey(t, chi.URLParam(r, "id")))
}

// Dashboard handles GET /views/analytics/dashboard.
func (h *viewHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, api.DashboardKey)
}

// Settings handles GET /views/settings.
func (h *viewHandler) Settings(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, api.SettingsKey)
}

// ServiceBySlug handles GET /views/services/slug/{slug}.
func (h *viewHandler) ServiceBySlug(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, api.ServiceBySlugKey(chi.URLParam(r, "slug")))
}

// NewsletterStats handles GET /views/newsletter/stats.
func (h *viewHandler) NewsletterStats(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, api.NewsletterStatsKey)
}

// Applications handles GET /views/careers/{id}/applications.
func (h *viewHandler) Applications(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, api.ApplicationsKey(chi.URLParam(r, "id")))
}

// newPayload returns the form type of t. Lead types are edited as loose
// field maps since the console never creates them.
func newPayload(t resource.Type) any {
	switch t {
	case resource.Services:
		return &domain.Service{}
	case resource.Portfolio:
		return &domain.PortfolioItem{}
	case resource.Blog:
		return &domain.BlogPost{}
	case resource.Team:
		return &domain.TeamMember{}
	case resource.Initiatives:
		return &domain.Initiative{}
	case resource.Careers:
		return &domain.Career{}
	default:
		return nil
	}
}

func decodePayload(w http.ResponseWriter, r *http.Request, t resource.Type) (any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if p := newPayload(t); p != nil {
		if err := decodeBody(r.Body, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	m := map[string]any{}
	if err := decodeBody(r.Body, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeBody(body io.Reader, dst any) error {
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.InvalidInput("request body is required")
		}
		return apperrors.InvalidInput("request body must be valid JSON")
	}
	return nil
}

func (h *viewHandler) mutate(w http.ResponseWriter, r *http.Request, op mutation.Op) {
	t, err := entityType(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	req := mutation.Request{Type: t, Op: op, ID: chi.URLParam(r, "id")}

	if op != mutation.OpDelete {
		if req.Payload, err = decodePayload(w, r, t); err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
	}

	out, err := h.mutator.Mutate(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if op == mutation.OpCreate {
		status = http.StatusCreated
	}
	httputil.WriteRedirect(w, status, out.Result, out.Redirect)
}

// Create handles POST /views/{type}.
func (h *viewHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, mutation.OpCreate)
}

// Update handles PUT /views/{type}/{id}.
func (h *viewHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, mutation.OpUpdate)
}

// Delete handles DELETE /views/{type}/{id}.
func (h *viewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, mutation.OpDelete)
}

func (h *viewHandler) run(w http.ResponseWriter, r *http.Request, a mutation.Action) {
	out, err := h.mutator.Run(r.Context(), a)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteRedirect(w, http.StatusOK, out.Result, out.Redirect)
}

// QuoteStatus handles PUT /views/quotes/{id}/status.
func (h *viewHandler) QuoteStatus(w http.ResponseWriter, r *http.Request) {
	var body domain.StatusUpdate
	if err := decodeBody(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.run(w, r, mutation.QuoteStatus(h.actions, chi.URLParam(r, "id"), body))
}

// SendQuote handles POST /views/quotes/{id}/send-quote.
func (h *viewHandler) SendQuote(w http.ResponseWriter, r *http.Request) {
	var body domain.QuoteOffer
	if err := decodeBody(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.run(w, r, mutation.SendQuote(h.actions, chi.URLParam(r, "id"), body))
}

// ContactStatus handles PUT /views/contacts/{id}/status.
func (h *viewHandler) ContactStatus(w http.ResponseWriter, r *http.Request) {
	var body domain.StatusUpdate
	if err := decodeBody(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.run(w, r, mutation.ContactStatus(h.actions, chi.URLParam(r, "id"), body))
}

// SendNewsletter handles POST /views/newsletter/send.
func (h *viewHandler) SendNewsletter(w http.ResponseWriter, r *http.Request) {
	var body domain.Newsletter
	if err := decodeBody(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.run(w, r, mutation.SendNewsletter(h.actions, body))
}

// UpdateSettings handles POST /views/settings/bulk.
func (h *viewHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	body := domain.Settings{}
	if err := decodeBody(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.run(w, r, mutation.UpdateSettings(h.actions, body))
}
