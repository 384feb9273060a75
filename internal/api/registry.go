package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Devmainman/kurosadmin/internal/domain"
	"github.com/Devmainman/kurosadmin/internal/resource"
	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
)

// View names of the read-only auxiliary endpoints.
const (
	ViewBySlug       = resource.SlugView
	ViewStats        = "stats"
	ViewApplications = "applications"
	ViewDashboard    = "dashboard"
)

// Well-known keys of the auxiliary views.
var (
	NewsletterStatsKey = resource.ViewKey(resource.Newsletter, "", ViewStats)
	DashboardKey       = resource.ViewKey(resource.Analytics, "", ViewDashboard)
	SettingsKey        = resource.CollectionKey(resource.Settings, nil)
)

// ServiceBySlugKey addresses the service lookup by slug.
func ServiceBySlugKey(slug string) resource.Key {
	return resource.ViewKey(resource.Services, slug, ViewBySlug)
}

// ApplicationsKey addresses the applications received for a job posting.
func ApplicationsKey(careerID string) resource.Key {
	return resource.ViewKey(resource.Careers, careerID, ViewApplications)
}

// Registry routes cache keys and writes to the per-type clients. It is the
// cache's fetcher and the mutation coordinator's writer.
type Registry struct {
	client   *Client
	entities map[resource.Type]entity

	Services    *CRUD[domain.Service]
	Portfolio   *CRUD[domain.PortfolioItem]
	Blog        *CRUD[domain.BlogPost]
	Team        *CRUD[domain.TeamMember]
	Initiatives *CRUD[domain.Initiative]
	Contacts    *CRUD[domain.Contact]
	Quotes      *CRUD[domain.Quote]
	Newsletter  *CRUD[domain.Subscriber]
	Careers     *CRUD[domain.Career]
}

// NewRegistry builds the clients of every entity type.
func NewRegistry(client *Client) *Registry {
	r := &Registry{
		client:      client,
		Services:    NewCRUD[domain.Service](client, resource.Services),
		Portfolio:   NewCRUD[domain.PortfolioItem](client, resource.Portfolio),
		Blog:        NewCRUD[domain.BlogPost](client, resource.Blog),
		Team:        NewCRUD[domain.TeamMember](client, resource.Team),
		Initiatives: NewCRUD[domain.Initiative](client, resource.Initiatives),
		Contacts:    NewCRUD[domain.Contact](client, resource.Contacts),
		Quotes:      NewCRUD[domain.Quote](client, resource.Quotes),
		Newsletter:  NewCRUD[domain.Subscriber](client, resource.Newsletter),
		Careers:     NewCRUD[domain.Career](client, resource.Careers),
	}
	r.entities = map[resource.Type]entity{
		resource.Services:    r.Services,
		resource.Portfolio:   r.Portfolio,
		resource.Blog:        r.Blog,
		resource.Team:        r.Team,
		resource.Initiatives: r.Initiatives,
		resource.Contacts:    r.Contacts,
		resource.Quotes:      r.Quotes,
		resource.Newsletter:  r.Newsletter,
		resource.Careers:     r.Careers,
	}
	return r
}

// Fetch loads the data addressed by key.
func (r *Registry) Fetch(ctx context.Context, key resource.Key) (any, error) {
	switch {
	case key.View != "":
		return r.fetchView(ctx, key)
	case key.Type == resource.Settings:
		return r.Settings(ctx)
	}
	e, err := r.entity(key.Type)
	if err != nil {
		return nil, err
	}
	return e.fetch(ctx, key)
}

func (r *Registry) fetchView(ctx context.Context, key resource.Key) (any, error) {
	switch {
	case key.Type == resource.Services && key.View == ViewBySlug:
		return r.ServiceBySlug(ctx, key.ID)
	case key == NewsletterStatsKey:
		return r.NewsletterStats(ctx)
	case key.Type == resource.Careers && key.View == ViewApplications:
		return r.Applications(ctx, key.ID)
	case key == DashboardKey:
		return r.Dashboard(ctx)
	}
	return nil, apperrors.InvalidInput(fmt.Sprintf("unknown view %s", key))
}

// Create submits a new entity of type t.
func (r *Registry) Create(ctx context.Context, t resource.Type, payload any) (any, error) {
	e, err := r.entity(t)
	if err != nil {
		return nil, err
	}
	return e.create(ctx, payload)
}

// Update replaces entity id of type t.
func (r *Registry) Update(ctx context.Context, t resource.Type, id string, payload any) (any, error) {
	e, err := r.entity(t)
	if err != nil {
		return nil, err
	}
	return e.update(ctx, id, payload)
}

// Delete removes entity id of type t.
func (r *Registry) Delete(ctx context.Context, t resource.Type, id string) error {
	e, err := r.entity(t)
	if err != nil {
		return err
	}
	return e.remove(ctx, id)
}

func (r *Registry) entity(t resource.Type) (entity, error) {
	e, ok := r.entities[t]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%q does not support this operation", t))
	}
	return e, nil
}

// ServiceBySlug looks a service up by its public slug.
func (r *Registry) ServiceBySlug(ctx context.Context, slug string) (*domain.Service, error) {
	var out domain.Service
	path := resource.CollectionKey(resource.Services, nil).Path() + "/slug/" + url.PathEscape(slug)
	if err := r.client.do(ctx, call{method: http.MethodGet, path: path, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewsletterStats fetches the subscriber summary.
func (r *Registry) NewsletterStats(ctx context.Context) (*domain.NewsletterStats, error) {
	var out domain.NewsletterStats
	if err := r.client.do(ctx, call{method: http.MethodGet, path: NewsletterStatsKey.Path(), out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Applications lists the applications received for a job posting.
func (r *Registry) Applications(ctx context.Context, careerID string) ([]domain.Application, error) {
	out := []domain.Application{}
	if err := r.client.do(ctx, call{method: http.MethodGet, path: ApplicationsKey(careerID).Path(), out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

// Dashboard fetches the analytics summary.
func (r *Registry) Dashboard(ctx context.Context) (*domain.DashboardStats, error) {
	var out domain.DashboardStats
	if err := r.client.do(ctx, call{method: http.MethodGet, path: DashboardKey.Path(), out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settings fetches the site configuration.
func (r *Registry) Settings(ctx context.Context) (domain.Settings, error) {
	out := domain.Settings{}
	if err := r.client.do(ctx, call{method: http.MethodGet, path: SettingsKey.Path(), out: &out}); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateSettings writes several settings at once.
func (r *Registry) UpdateSettings(ctx context.Context, settings domain.Settings) error {
	return r.client.do(ctx, call{method: http.MethodPost, path: SettingsKey.Path() + "/bulk", body: settings})
}

// SetQuoteStatus moves a quote request through its workflow.
func (r *Registry) SetQuoteStatus(ctx context.Context, id string, update domain.StatusUpdate) error {
	path := resource.DetailKey(resource.Quotes, id).Path() + "/status"
	return r.client.do(ctx, call{method: http.MethodPut, path: path, body: update})
}

// SendQuote sends a priced offer to the client of a quote request.
func (r *Registry) SendQuote(ctx context.Context, id string, offer domain.QuoteOffer) error {
	path := resource.DetailKey(resource.Quotes, id).Path() + "/send-quote"
	return r.client.do(ctx, call{method: http.MethodPost, path: path, body: offer})
}

// SetContactStatus marks a contact message read, replied or archived.
func (r *Registry) SetContactStatus(ctx context.Context, id string, update domain.StatusUpdate) error {
	path := resource.DetailKey(resource.Contacts, id).Path() + "/status"
	return r.client.do(ctx, call{method: http.MethodPut, path: path, body: update})
}

// SendNewsletter hands an issue to the server for delivery.
func (r *Registry) SendNewsletter(ctx context.Context, issue domain.Newsletter) error {
	path := resource.CollectionKey(resource.Newsletter, nil).Path() + "/send"
	return r.client.do(ctx, call{method: http.MethodPost, path: path, body: issue})
}
