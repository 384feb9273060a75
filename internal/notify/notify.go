// Package notify surfaces the terminal outcome of console operations to the
// user. Publishing is fire-and-forget: callers never wait for or learn about
// delivery problems.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Kind classifies a notice.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
	KindExpired Kind = "expired"
)

// Notice is one toast-style message.
type Notice struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink receives every published notice.
type Sink interface {
	Deliver(ctx context.Context, n Notice) error
}

// Notifier is the publishing side of the bus, as seen by the session,
// cache and mutation components.
type Notifier interface {
	Success(ctx context.Context, message string)
	Failure(ctx context.Context, message string)
	Expired(ctx context.Context, message string)
}

var noticesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kurosadmin_notices_total",
		Help: "Total number of notices published, by kind",
	},
	[]string{"kind"},
)

// Bus fans notices out to its sinks in registration order.
type Bus struct {
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewBus creates a Bus delivering to sinks.
func NewBus(logger *slog.Logger, sinks ...Sink) *Bus {
	return &Bus{sinks: sinks, logger: logger, now: time.Now}
}

// Success publishes a success notice.
func (b *Bus) Success(ctx context.Context, message string) {
	b.publish(ctx, KindSuccess, message)
}

// Failure publishes a failure notice.
func (b *Bus) Failure(ctx context.Context, message string) {
	b.publish(ctx, KindFailure, message)
}

// Expired publishes a session-expired notice.
func (b *Bus) Expired(ctx context.Context, message string) {
	b.publish(ctx, KindExpired, message)
}

func (b *Bus) publish(ctx context.Context, kind Kind, message string) {
	n := Notice{
		ID:      uuid.New().String(),
		Kind:    kind,
		Message: message,
		At:      b.now().UTC(),
	}
	noticesTotal.WithLabelValues(string(kind)).Inc()

	for _, s := range b.sinks {
		if err := s.Deliver(ctx, n); err != nil {
			b.logger.WarnContext(ctx, "notice delivery failed",
				slog.String("notice_id", n.ID),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		}
	}
}
