package mutation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Devmainman/kurosadmin/internal/api"
	"github.com/Devmainman/kurosadmin/internal/domain"
	"github.com/Devmainman/kurosadmin/internal/resource"
	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
)

// ActionWriter performs the entity-specific writes of the admin API.
type ActionWriter interface {
	SetQuoteStatus(ctx context.Context, id string, update domain.StatusUpdate) error
	SendQuote(ctx context.Context, id string, offer domain.QuoteOffer) error
	SetContactStatus(ctx context.Context, id string, update domain.StatusUpdate) error
	SendNewsletter(ctx context.Context, issue domain.Newsletter) error
	UpdateSettings(ctx context.Context, settings domain.Settings) error
}

func entityKeys(t resource.Type, id string) []resource.Key {
	return Request{Type: t, ID: id}.AffectedKeys()
}

func requireID(id string) func() error {
	return func() error {
		if id == "" {
			return apperrors.InvalidInput("an id is required")
		}
		return nil
	}
}

// QuoteStatus moves quote id to a new workflow status.
func QuoteStatus(w ActionWriter, id string, update domain.StatusUpdate) Action {
	return Action{
		Name:    "status",
		Type:    resource.Quotes,
		Payload: update,
		Affects: entityKeys(resource.Quotes, id),
		Success: "Quote status updated",
		Check: func() error {
			if err := requireID(id)(); err != nil {
				return err
			}
			if !domain.IsValidQuoteStatus(update.Status) {
				return apperrors.InvalidInput(fmt.Sprintf("status must be one of: %s", strings.Join(domain.ValidQuoteStatuses(), ", ")))
			}
			return nil
		},
		Do: func(ctx context.Context) error { return w.SetQuoteStatus(ctx, id, update) },
	}
}

// SendQuote sends a priced offer for quote id.
func SendQuote(w ActionWriter, id string, offer domain.QuoteOffer) Action {
	return Action{
		Name:     "send-quote",
		Type:     resource.Quotes,
		Payload:  offer,
		Affects:  entityKeys(resource.Quotes, id),
		Success:  "Quote sent successfully",
		Redirect: "/" + string(resource.Quotes),
		Check:    requireID(id),
		Do:       func(ctx context.Context) error { return w.SendQuote(ctx, id, offer) },
	}
}

// ContactStatus marks contact id read, replied or archived.
func ContactStatus(w ActionWriter, id string, update domain.StatusUpdate) Action {
	return Action{
		Name:    "status",
		Type:    resource.Contacts,
		Payload: update,
		Affects: entityKeys(resource.Contacts, id),
		Success: "Contact status updated",
		Check: func() error {
			if err := requireID(id)(); err != nil {
				return err
			}
			if !domain.IsValidContactStatus(update.Status) {
				return apperrors.InvalidInput(fmt.Sprintf("status must be one of: %s", strings.Join(domain.ValidContactStatuses(), ", ")))
			}
			return nil
		},
		Do: func(ctx context.Context) error { return w.SetContactStatus(ctx, id, update) },
	}
}

// SendNewsletter hands an issue to the server for delivery. The subscriber
// views are refreshed afterwards since sending updates their counters.
func SendNewsletter(w ActionWriter, issue domain.Newsletter) Action {
	success := "Newsletter sent successfully"
	if issue.TestEmail != "" {
		success = "Test newsletter sent to " + issue.TestEmail
	}
	return Action{
		Name:    "send",
		Type:    resource.Newsletter,
		Payload: issue,
		Affects: []resource.Key{resource.CollectionKey(resource.Newsletter, nil), api.NewsletterStatsKey},
		Success: success,
		Do:      func(ctx context.Context) error { return w.SendNewsletter(ctx, issue) },
	}
}

// UpdateSettings writes several settings at once.
func UpdateSettings(w ActionWriter, settings domain.Settings) Action {
	return Action{
		Name:    "bulk",
		Type:    resource.Settings,
		Affects: []resource.Key{api.SettingsKey},
		Success: "Settings saved successfully",
		Check: func() error {
			if len(settings) == 0 {
				return apperrors.InvalidInput("no settings to save")
			}
			return nil
		},
		Do: func(ctx context.Context) error { return w.UpdateSettings(ctx, settings) },
	}
}
