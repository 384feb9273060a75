// Package cache is the keyed store of server data shared by every console
// view. It de-duplicates concurrent fetches of a key, discards responses that
// a newer fetch has superseded, and refetches observed keys when they are
// invalidated.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Devmainman/kurosadmin/internal/notify"
	"github.com/Devmainman/kurosadmin/internal/resource"
	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
)

// Status is the fetch state of an entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Entry is a point-in-time copy of one cache entry. Data keeps the last good
// payload through every status change except InvalidateAll.
type Entry struct {
	Key       resource.Key `json:"-"`
	Data      any          `json:"data"`
	Status    Status       `json:"status"`
	FetchedAt time.Time    `json:"fetched_at"`
	Err       error        `json:"-"`
	// Stale reports an invalidation since the last successful fetch.
	Stale bool `json:"stale"`
}

// Fetcher loads the data addressed by a key.
type Fetcher interface {
	Fetch(ctx context.Context, key resource.Key) (any, error)
}

// Config holds the cache timings.
type Config struct {
	// StaleAfter is the age after which a read triggers a background refresh.
	StaleAfter time.Duration
	// StaleAfterByType overrides StaleAfter per resource type.
	StaleAfterByType map[resource.Type]time.Duration
	// Retention is how long an unobserved entry is kept.
	Retention time.Duration
	// FetchTimeout bounds each background fetch, retry included.
	FetchTimeout time.Duration
	// RetryDelay is the pause before the single automatic retry.
	RetryDelay time.Duration
	// JanitorInterval is how often unobserved entries are evicted.
	JanitorInterval time.Duration
}

// DefaultConfig returns the default cache timings.
func DefaultConfig() Config {
	return Config{
		StaleAfter:      5 * time.Minute,
		Retention:       5 * time.Minute,
		FetchTimeout:    15 * time.Second,
		RetryDelay:      500 * time.Millisecond,
		JanitorInterval: time.Minute,
	}
}

type entry struct {
	Entry

	// seq is the generation of the entry. It advances when a fetch is issued
	// and when an in-flight fetch is superseded; only a fetch whose sequence
	// still equals seq may apply its result.
	seq         uint64
	inflight    bool
	inflightSeq uint64
	// byInvalidation marks an in-flight fetch issued by Invalidate.
	byInvalidation bool
	// refetchQueued schedules one fetch after the superseded one settles.
	refetchQueued bool
	done          chan struct{}

	observers  map[*Subscription]struct{}
	lastAccess time.Time
}

func (e *entry) snapshot() Entry {
	return e.Entry
}

// Cache is the resource cache. It is safe for concurrent use; no lock is held
// while a fetch is in progress.
type Cache struct {
	fetcher  Fetcher
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	mu      sync.Mutex
	entries map[resource.Key]*entry

	fetches   sync.WaitGroup
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New creates a Cache and starts its janitor. Close stops it.
func New(fetcher Fetcher, notifier notify.Notifier, cfg Config, logger *slog.Logger) *Cache {
	def := DefaultConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = def.JanitorInterval
	}

	c := &Cache{
		fetcher:  fetcher,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		entries:  make(map[resource.Key]*entry),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go c.janitor()
	return c
}

// Read returns the current state of key and starts a background fetch when
// the entry is absent, idle, invalidated, older than the staleness threshold
// or failed. It never blocks on the network.
func (c *Cache) Read(_ context.Context, key resource.Key) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(key)
	if !c.ensureFetch(e) && e.Status == StatusReady {
		cacheHits.WithLabelValues(string(key.Type)).Inc()
	}
	return e.snapshot()
}

// Load returns the settled state of key, waiting for an outstanding or newly
// started fetch. A failed entry is returned together with its error.
func (c *Cache) Load(ctx context.Context, key resource.Key) (Entry, error) {
	waited := false
	for {
		c.mu.Lock()
		e := c.lookup(key)
		if !waited {
			c.ensureFetch(e)
		}
		if !e.inflight {
			snap := e.snapshot()
			c.mu.Unlock()
			if snap.Status == StatusError {
				return snap, snap.Err
			}
			return snap, nil
		}
		done := e.done
		c.mu.Unlock()

		select {
		case <-done:
			waited = true
		case <-ctx.Done():
			return c.Peek(key), ctx.Err()
		}
	}
}

// Peek returns the current state of key without triggering a fetch.
func (c *Cache) Peek(key resource.Key) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.snapshot()
	}
	return Entry{Key: key, Status: StatusIdle}
}

// Invalidate marks every entry matched by keys as stale without dropping its
// data. Observed entries are refetched at once; unobserved ones on their next
// read. An ordinary in-flight fetch is superseded and followed by one
// refetch; invalidating an entry whose invalidation refetch is still pending
// has no further effect.
func (c *Cache) Invalidate(keys ...resource.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if !matchesAny(k, keys) {
			continue
		}
		e.Stale = true

		switch {
		case e.inflight && e.byInvalidation && e.inflightSeq == e.seq:
			// The pending invalidation refetch already covers this call.
		case e.inflight:
			e.seq++
			e.refetchQueued = true
		case len(e.observers) > 0:
			c.startFetch(e, true)
		}
		c.broadcast(e)
	}

	c.logger.Debug("cache invalidated", slog.Any("keys", keySegments(keys)))
}

// InvalidateAll drops the data, status and error of every entry and
// supersedes all in-flight fetches. Nothing is refetched.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		e.Data = nil
		e.Err = nil
		e.FetchedAt = time.Time{}
		e.Stale = false
		e.Status = StatusIdle
		e.refetchQueued = false
		if e.inflight {
			e.seq++
		}
		c.broadcast(e)
	}

	c.logger.Info("cache cleared", slog.Int("entries", len(c.entries)))
}

// Len returns the number of entries held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the janitor and waits for in-flight fetches to settle.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.stopped
		c.fetches.Wait()
	})
}

// lookup returns the entry for key, creating it idle. Caller holds c.mu.
func (c *Cache) lookup(key resource.Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{
			Entry:     Entry{Key: key, Status: StatusIdle},
			observers: make(map[*Subscription]struct{}),
		}
		c.entries[key] = e
	}
	e.lastAccess = c.now()
	return e
}

// ensureFetch starts a fetch if the entry needs one and reports whether a
// fetch is now outstanding. Caller holds c.mu.
func (c *Cache) ensureFetch(e *entry) bool {
	if e.inflight {
		if e.inflightSeq != e.seq && !e.refetchQueued {
			// The outstanding fetch was superseded by InvalidateAll.
			e.refetchQueued = true
			e.Status = StatusLoading
		}
		cacheDedupJoins.WithLabelValues(string(e.Key.Type)).Inc()
		return true
	}
	if !c.needsFetch(e) {
		return false
	}
	c.startFetch(e, false)
	return true
}

func (c *Cache) needsFetch(e *entry) bool {
	switch e.Status {
	case StatusIdle, StatusError:
		return true
	case StatusReady:
		return e.Stale || c.now().Sub(e.FetchedAt) > c.staleAfter(e.Key.Type)
	default:
		return false
	}
}

func (c *Cache) staleAfter(t resource.Type) time.Duration {
	if d, ok := c.cfg.StaleAfterByType[t]; ok && d > 0 {
		return d
	}
	return c.cfg.StaleAfter
}

// startFetch issues a new fetch sequence for e. Caller holds c.mu.
func (c *Cache) startFetch(e *entry, byInvalidation bool) {
	e.seq++
	e.inflight = true
	e.inflightSeq = e.seq
	e.byInvalidation = byInvalidation
	e.done = make(chan struct{})
	e.Status = StatusLoading
	c.broadcast(e)

	c.fetches.Add(1)
	go c.fetch(e.Key, e.seq)
}

func (c *Cache) fetch(key resource.Key, seq uint64) {
	defer c.fetches.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
	defer cancel()

	start := c.now()
	data, err := c.fetcher.Fetch(ctx, key)
	if err != nil && retryable(err) && c.current(key, seq) {
		c.logger.Warn("cache fetch failed, retrying",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		cacheRetries.WithLabelValues(string(key.Type)).Inc()
		if sleep(ctx, c.cfg.RetryDelay) {
			data, err = c.fetcher.Fetch(ctx, key)
		}
	}
	cacheFetchDuration.WithLabelValues(string(key.Type)).Observe(c.now().Sub(start).Seconds())

	c.settle(key, seq, data, err)
}

// current reports whether seq is still the latest sequence of key.
func (c *Cache) current(key resource.Key, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.seq == seq
}

func (c *Cache) settle(key resource.Key, seq uint64, data any, err error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		cacheDiscarded.WithLabelValues(string(key.Type)).Inc()
		return
	}

	e.inflight = false
	done := e.done
	e.done = nil
	defer close(done)

	if seq != e.seq {
		cacheDiscarded.WithLabelValues(string(key.Type)).Inc()
		c.logger.Debug("discarding superseded response",
			slog.String("key", key.String()),
			slog.Uint64("seq", seq),
			slog.Uint64("latest", e.seq),
		)
		if e.refetchQueued {
			e.refetchQueued = false
			c.startFetch(e, true)
		}
		c.mu.Unlock()
		return
	}

	if err == nil {
		e.Data = data
		e.Status = StatusReady
		e.FetchedAt = c.now()
		e.Err = nil
		e.Stale = false
		cacheFetches.WithLabelValues(string(key.Type), "success").Inc()
	} else {
		e.Status = StatusError
		e.Err = err
		cacheFetches.WithLabelValues(string(key.Type), "error").Inc()
	}
	c.broadcast(e)
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("cache fetch failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		// Expiry has its own notice, raised by the session.
		if !apperrors.IsUnauthorized(err) && !errors.Is(err, context.Canceled) {
			c.notifier.Failure(context.Background(), fmt.Sprintf("Could not load %s: %s", key.Type, apperrors.UserMessage(err)))
		}
	}
}

func (c *Cache) janitor() {
	defer close(c.stopped)
	ticker := time.NewTicker(c.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evict()
		}
	}
}

// evict drops entries nobody has observed or read within the retention
// window.
func (c *Cache) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.cfg.Retention)
	n := 0
	for k, e := range c.entries {
		if len(e.observers) == 0 && !e.inflight && e.lastAccess.Before(cutoff) {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		cacheEvictions.Add(float64(n))
		c.logger.Debug("evicted unobserved cache entries", slog.Int("count", n))
	}
	return n
}

func retryable(err error) bool {
	return !apperrors.IsUnauthorized(err) && !errors.Is(err, context.Canceled)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func matchesAny(k resource.Key, patterns []resource.Key) bool {
	for _, p := range patterns {
		if k.Matches(p) {
			return true
		}
	}
	return false
}

func keySegments(keys []resource.Key) [][]string {
	out := make([][]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Segments())
	}
	return out
}
