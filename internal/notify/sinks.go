package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Devmainman/kurosadmin/pkg/kafka"
	"github.com/Devmainman/kurosadmin/pkg/logger"
)

// LogSink writes every notice to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver logs n. Failures log at warn level.
func (s *LogSink) Deliver(ctx context.Context, n Notice) error {
	level := slog.LevelInfo
	if n.Kind != KindSuccess {
		level = slog.LevelWarn
	}
	logger.WithContext(ctx, s.logger).Log(ctx, level, "notice",
		slog.String("notice_id", n.ID),
		slog.String("kind", string(n.Kind)),
		slog.String("message", n.Message),
	)
	return nil
}

// DefaultFeedSize is the number of notices a Feed keeps.
const DefaultFeedSize = 100

// Feed keeps the most recent notices in a bounded ring for the console
// surface to display.
type Feed struct {
	mu    sync.RWMutex
	buf   []Notice
	next  int
	count int
}

// NewFeed creates a Feed holding up to size notices.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{buf: make([]Notice, size)}
}

// Deliver appends n, overwriting the oldest notice when full.
func (f *Feed) Deliver(_ context.Context, n Notice) error {
	f.mu.Lock()
	f.buf[f.next] = n
	f.next = (f.next + 1) % len(f.buf)
	if f.count < len(f.buf) {
		f.count++
	}
	f.mu.Unlock()
	return nil
}

// Recent returns the stored notices, oldest first.
func (f *Feed) Recent() []Notice {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Notice, 0, f.count)
	start := (f.next - f.count + len(f.buf)) % len(f.buf)
	for i := 0; i < f.count; i++ {
		out = append(out, f.buf[(start+i)%len(f.buf)])
	}
	return out
}

// Last returns the newest notice.
func (f *Feed) Last() (Notice, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.count == 0 {
		return Notice{}, false
	}
	return f.buf[(f.next-1+len(f.buf))%len(f.buf)], true
}

// Publisher is the subset of kafka.Producer the KafkaSink needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// KafkaSink publishes every notice as an event on
// kurosadmin.notice.<kind>.
type KafkaSink struct {
	publisher Publisher
	source    string
}

// NewKafkaSink creates a KafkaSink tagging events with source.
func NewKafkaSink(publisher Publisher, source string) *KafkaSink {
	return &KafkaSink{publisher: publisher, source: source}
}

// Deliver publishes n keyed by its id.
func (s *KafkaSink) Deliver(ctx context.Context, n Notice) error {
	event, err := kafka.NewEvent("notice."+string(n.Kind), n.ID, s.source, n)
	if err != nil {
		return fmt.Errorf("build notice event: %w", err)
	}
	event.WithMetadata("kind", string(n.Kind))
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if err := s.publisher.Publish(ctx, kafka.Topic("notice", string(n.Kind)), event); err != nil {
		return fmt.Errorf("publish notice: %w", err)
	}
	return nil
}
