// Package api is the console's client for the admin REST API. It attaches the
// stored credential to authenticated calls and reports rejected credentials
// to the session through the unauthorized hook.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Devmainman/kurosadmin/internal/credential"
	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
	"github.com/Devmainman/kurosadmin/pkg/httpclient"
	"github.com/Devmainman/kurosadmin/pkg/logger"
	"github.com/Devmainman/kurosadmin/pkg/middleware"
)

const source = "admin-api"

// ExpiredMessage is the message carried by the error an authenticated call
// returns once the server has rejected the stored token.
const ExpiredMessage = "Your session has expired. Please log in again."

const unavailableMessage = "The admin API is temporarily unavailable. Please try again shortly."

// CircuitOpenFallback replaces the breaker's raw open-state error with a
// structured one the console can show.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.Unavailable(unavailableMessage)
}

// Config holds the client settings.
type Config struct {
	BaseURL string
	// RequestsPerSecond throttles outgoing calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// Client performs admin API calls.
type Client struct {
	baseURL string
	doer    httpclient.Doer
	tokens  credential.Store
	limiter *rate.Limiter
	logger  *slog.Logger
	tracer  trace.Tracer

	mu             sync.RWMutex
	onUnauthorized func(ctx context.Context, token string)
}

// NewClient creates a Client. doer is normally an
// httpclient.CircuitBreakerClient.
func NewClient(cfg Config, doer httpclient.Doer, tokens credential.Store, logger *slog.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		doer:    doer,
		tokens:  tokens,
		logger:  logger,
		tracer:  otel.Tracer("github.com/Devmainman/kurosadmin/api"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// OnUnauthorized registers the function called when an authenticated call is
// answered with 401. fn receives the token the rejected request carried,
// empty when none was stored. It is set once during wiring, after the
// session exists.
func (c *Client) OnUnauthorized(fn func(ctx context.Context, token string)) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

type authMode int

const (
	// authStored attaches the stored token and treats 401 as expiry.
	authStored authMode = iota
	// authNone sends no credential; 401 is an ordinary rejection.
	authNone
	// authExplicit sends call.token without consulting the store.
	authExplicit
)

type call struct {
	method string
	path   string
	query  url.Values
	body   any
	out    any
	auth   authMode
	token  string
}

// envelope is the success wrapper used by resource endpoints. Auth endpoints
// answer with bare objects, which decode() also accepts.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, cl call) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for api rate limit: %w", err)
		}
	}

	ctx, span := c.tracer.Start(ctx, cl.method+" "+cl.path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPMethod(cl.method),
			attribute.String("url.path", cl.path),
		),
	)
	defer span.End()

	req, sent, err := c.newRequest(ctx, cl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	start := time.Now()
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		err = c.transportError(err)
		apiRequestsTotal.WithLabelValues(cl.method, statusLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	apiRequestsTotal.WithLabelValues(cl.method, strconv.Itoa(resp.StatusCode)).Inc()
	apiRequestDuration.WithLabelValues(cl.method).Observe(time.Since(start).Seconds())
	span.SetAttributes(semconv.HTTPStatusCode(resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized && cl.auth == authStored {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "admin api rejected stored credential",
			slog.String("method", cl.method),
			slog.String("path", cl.path),
		)
		c.expire(ctx, sent)
		span.SetStatus(codes.Error, "session expired")
		return apperrors.SessionExpired(ExpiredMessage)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := httpclient.ParseResponseError(resp, source)
		span.RecordError(err)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return err
	}

	if cl.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := decode(resp.Body, cl.out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", cl.method, cl.path, err)
	}
	return nil
}

// newRequest builds the HTTP request for cl and returns the token it carries.
func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, string, error) {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader = http.NoBody
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return nil, "", fmt.Errorf("marshal %s %s request: %w", cl.method, cl.path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, "", fmt.Errorf("create %s %s request: %w", cl.method, cl.path, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	correlationID := logger.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	req.Header.Set(middleware.CorrelationHeader, correlationID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	var token string
	switch cl.auth {
	case authStored:
		token, _ = c.tokens.Load(ctx)
	case authExplicit:
		token = cl.token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, token, nil
}

// transportError converts a failure from the doer into an error carrying a
// displayable message where one exists.
func (c *Client) transportError(err error) error {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return httpclient.ParseErrorBody(statusErr.StatusCode, statusErr.Body, source)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, httpclient.ErrCircuitOpen) {
		appErr := apperrors.Unavailable(unavailableMessage)
		appErr.Err = errors.Join(apperrors.ErrServiceUnavail, err)
		return appErr
	}
	return fmt.Errorf("call %s: %w", source, err)
}

func (c *Client) expire(ctx context.Context, token string) {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn(ctx, token)
	}
}

func decode(r io.Reader, out any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Success != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(data, out)
}

func statusLabel(err error) string {
	if status := apperrors.HTTPStatus(err); status != http.StatusInternalServerError {
		return strconv.Itoa(status)
	}
	return "error"
}
