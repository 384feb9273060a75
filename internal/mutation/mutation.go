// Package mutation performs the console's writes. A write is confirmed by the
// server before anything cached is touched; only then are the keys it
// affects invalidated.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Devmainman/kurosadmin/internal/notify"
	"github.com/Devmainman/kurosadmin/internal/resource"
	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
	"github.com/Devmainman/kurosadmin/pkg/validator"
)

// Op is the kind of write.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpAction Op = "action"
)

var pastTense = map[Op]string{
	OpCreate: "created",
	OpUpdate: "updated",
	OpDelete: "deleted",
}

// Request is one create, update or delete.
type Request struct {
	Type    resource.Type
	Op      Op
	ID      string
	Payload any
}

// AffectedKeys returns the keys a confirmed write makes stale: the entity's
// detail key when it has an id, and every collection of its type. Services
// are also looked up by slug, and a write may change or remove any slug.
func (r Request) AffectedKeys() []resource.Key {
	keys := make([]resource.Key, 0, 3)
	if r.ID != "" {
		keys = append(keys, resource.DetailKey(r.Type, r.ID))
	}
	keys = append(keys, resource.CollectionKey(r.Type, nil))
	if r.Type == resource.Services {
		keys = append(keys, resource.ViewKey(r.Type, "", resource.SlugView))
	}
	return keys
}

// Outcome is the result of a confirmed write.
type Outcome struct {
	Result   any    `json:"data,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// Writer performs entity writes against the admin API.
type Writer interface {
	Create(ctx context.Context, t resource.Type, payload any) (any, error)
	Update(ctx context.Context, t resource.Type, id string, payload any) (any, error)
	Delete(ctx context.Context, t resource.Type, id string) error
}

// Invalidator marks cached keys stale.
type Invalidator interface {
	Invalidate(keys ...resource.Key)
}

// preparer is implemented by payloads with derived fields, such as slugs.
type preparer interface {
	Prepare()
}

// Coordinator runs writes and applies their invalidations. Writes are never
// retried and never applied to the cache before the server confirms them.
type Coordinator struct {
	writer   Writer
	cache    Invalidator
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(writer Writer, cache Invalidator, notifier notify.Notifier, logger *slog.Logger) *Coordinator {
	return &Coordinator{writer: writer, cache: cache, notifier: notifier, logger: logger}
}

// Mutate performs req with exactly one API call. A rejected payload or a
// failed call leaves the cache untouched and returns the error, so the
// caller can keep its form state.
func (c *Coordinator) Mutate(ctx context.Context, req Request) (Outcome, error) {
	if err := checkRequest(req); err != nil {
		return Outcome{}, err
	}
	if p, ok := req.Payload.(preparer); ok {
		p.Prepare()
	}
	if err := validator.ValidatePayload(req.Payload); err != nil {
		return Outcome{}, formError(err)
	}

	var (
		result any
		err    error
	)
	switch req.Op {
	case OpCreate:
		result, err = c.writer.Create(ctx, req.Type, req.Payload)
	case OpUpdate:
		result, err = c.writer.Update(ctx, req.Type, req.ID, req.Payload)
	case OpDelete:
		err = c.writer.Delete(ctx, req.Type, req.ID)
	}

	label := Label(req.Type)
	if err != nil {
		c.fail(ctx, string(req.Type), string(req.Op), err)
		return Outcome{}, err
	}

	c.confirm(ctx, string(req.Type), string(req.Op), req.AffectedKeys(),
		fmt.Sprintf("%s %s successfully", label, pastTense[req.Op]))
	return Outcome{Result: result, Redirect: "/" + string(req.Type)}, nil
}

// Action is a custom write such as changing a quote's status. Affects lists
// the keys it makes stale.
type Action struct {
	Name     string
	Type     resource.Type
	Payload  any
	Affects  []resource.Key
	Success  string
	Redirect string
	// Check runs before the payload is validated. Optional.
	Check func() error
	Do    func(ctx context.Context) error
}

// Run performs a custom action under the same contract as Mutate.
func (c *Coordinator) Run(ctx context.Context, a Action) (Outcome, error) {
	if a.Do == nil {
		return Outcome{}, apperrors.Internal(fmt.Errorf("action %q has no body", a.Name))
	}
	if a.Check != nil {
		if err := a.Check(); err != nil {
			return Outcome{}, err
		}
	}
	if err := validator.ValidatePayload(a.Payload); err != nil {
		return Outcome{}, formError(err)
	}

	if err := a.Do(ctx); err != nil {
		c.fail(ctx, string(a.Type), a.Name, err)
		return Outcome{}, err
	}

	c.confirm(ctx, string(a.Type), a.Name, a.Affects, a.Success)
	return Outcome{Redirect: a.Redirect}, nil
}

func (c *Coordinator) confirm(ctx context.Context, typ, op string, keys []resource.Key, message string) {
	c.cache.Invalidate(keys...)
	mutationsTotal.WithLabelValues(typ, op, "success").Inc()
	c.logger.InfoContext(ctx, "mutation confirmed",
		slog.String("type", typ),
		slog.String("op", op),
		slog.Int("invalidated", len(keys)),
	)
	if message != "" {
		c.notifier.Success(ctx, message)
	}
}

func (c *Coordinator) fail(ctx context.Context, typ, op string, err error) {
	mutationsTotal.WithLabelValues(typ, op, "error").Inc()
	c.logger.WarnContext(ctx, "mutation failed",
		slog.String("type", typ),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	// An expired session has already been announced by the session.
	if errors.Is(err, apperrors.ErrSessionExpired) {
		return
	}
	c.notifier.Failure(ctx, apperrors.UserMessage(err))
}

func checkRequest(req Request) error {
	if !req.Type.IsEntity() {
		return apperrors.InvalidInput(fmt.Sprintf("%q cannot be modified", req.Type))
	}
	switch req.Op {
	case OpCreate:
		if req.Payload == nil {
			return apperrors.InvalidInput("a payload is required")
		}
	case OpUpdate:
		if req.ID == "" || req.Payload == nil {
			return apperrors.InvalidInput("an id and a payload are required")
		}
	case OpDelete:
		if req.ID == "" {
			return apperrors.InvalidInput("an id is required")
		}
	default:
		return apperrors.InvalidInput(fmt.Sprintf("unknown operation %q", req.Op))
	}
	return nil
}

func formError(err error) error {
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		return ve.AppError()
	}
	return err
}

var labels = map[resource.Type]string{
	resource.Services:    "Service",
	resource.Portfolio:   "Portfolio item",
	resource.Blog:        "Blog post",
	resource.Team:        "Team member",
	resource.Initiatives: "Initiative",
	resource.Contacts:    "Contact",
	resource.Quotes:      "Quote",
	resource.Newsletter:  "Subscriber",
	resource.Careers:     "Job posting",
	resource.Settings:    "Settings",
}

// Label returns the display name of one entity of type t.
func Label(t resource.Type) string {
	if l, ok := labels[t]; ok {
		return l
	}
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
