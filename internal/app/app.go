package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Devmainman/kurosadmin/internal/api"
	"github.com/Devmainman/kurosadmin/internal/cache"
	"github.com/Devmainman/kurosadmin/internal/config"
	"github.com/Devmainman/kurosadmin/internal/credential"
	"github.com/Devmainman/kurosadmin/internal/guard"
	"github.com/Devmainman/kurosadmin/internal/handler"
	"github.com/Devmainman/kurosadmin/internal/mutation"
	"github.com/Devmainman/kurosadmin/internal/notify"
	"github.com/Devmainman/kurosadmin/internal/session"
	"github.com/Devmainman/kurosadmin/pkg/database"
	"github.com/Devmainman/kurosadmin/pkg/health"
	"github.com/Devmainman/kurosadmin/pkg/httpclient"
	pkgkafka "github.com/Devmainman/kurosadmin/pkg/kafka"
	"github.com/Devmainman/kurosadmin/pkg/tracing"
)

const serviceName = "kurosadmin-console"

// App wires together all dependencies and runs the admin console.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	session        *session.Controller
	cache          *cache.Cache
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// The session is not restored until Run.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Insecure:       cfg.OTelInsecure,
		SampleRate:     cfg.OTelSampleRate,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, tracerShutdown: tracerShutdown}
	healthHandler := health.NewHandler()

	// Credential store.
	tokens, err := a.credentialStore(ctx, healthHandler)
	if err != nil {
		_ = a.release()
		return nil, err
	}

	// Admin API client behind a circuit breaker.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.APITimeout
	doer := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("admin-api"),
		logger,
	).WithFallback(api.CircuitOpenFallback)

	client := api.NewClient(api.Config{
		BaseURL:           cfg.APIBaseURL,
		RequestsPerSecond: cfg.APIRequestsPerSec,
		Burst:             cfg.APIBurst,
	}, doer, tokens, logger)
	registry := api.NewRegistry(client)

	// Notices go to the log and the console feed, and to Kafka when brokers
	// are configured.
	feed := notify.NewFeed(cfg.NoticeFeedSize)
	sinks := []notify.Sink{notify.NewLogSink(logger), feed}
	if cfg.KafkaEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		sinks = append(sinks, notify.NewKafkaSink(a.producer, serviceName))
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka notice sink enabled", slog.Any("brokers", cfg.KafkaBrokers))
	}
	bus := notify.NewBus(logger, sinks...)

	// Cache, session and writes. The client reports rejected credentials to
	// the session, which is built after it.
	a.cache = cache.New(registry, bus, cache.Config{
		StaleAfter:       cfg.CacheStaleAfter,
		StaleAfterByType: cfg.StaleAfterByType(),
		Retention:        cfg.CacheRetention,
		FetchTimeout:     cfg.APITimeout,
		RetryDelay:       cfg.CacheRetryDelay,
	}, logger)

	a.session = session.NewController(client, tokens, a.cache, bus, session.Config{
		TwoFactorTTL: cfg.TwoFactorTTL,
	}, logger)
	client.OnUnauthorized(a.session.ForceExpire)

	coordinator := mutation.NewCoordinator(registry, a.cache, bus, logger)

	// Health checks.
	healthHandler.RegisterNonCritical("admin-api", func(ctx context.Context) error {
		u, err := url.Parse(cfg.APIBaseURL)
		if err != nil {
			return fmt.Errorf("parse admin api URL: %w", err)
		}
		host := u.Host
		if u.Port() == "" {
			port := "80"
			if u.Scheme == "https" {
				port = "443"
			}
			host = net.JoinHostPort(u.Hostname(), port)
		}
		d := net.Dialer{Timeout: 2 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", host)
		if err != nil {
			return fmt.Errorf("admin api unreachable: %w", err)
		}
		_ = conn.Close()
		return nil
	})
	healthHandler.RegisterNonCritical("session", func(context.Context) error {
		select {
		case <-a.session.Ready():
			return nil
		default:
			return errors.New("session restore in progress")
		}
	})

	// HTTP router.
	router := handler.NewRouter(cfg, handler.Deps{
		Session:   a.session,
		Passwords: client,
		Guard:     guard.New(a.session, logger),
		Cache:     a.cache,
		Mutator:   coordinator,
		Actions:   registry,
		Feed:      feed,
		Notifier:  bus,
		Health:    healthHandler,
	}, logger)

	// WriteTimeout stays zero: watch streams are long-lived and every other
	// route is bounded by the router's timeout.
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// credentialStore builds the configured token store and registers its
// health check.
func (a *App) credentialStore(ctx context.Context, h *health.Handler) (credential.Store, error) {
	switch a.cfg.CredentialBackend {
	case config.CredentialsRedis:
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Host = a.cfg.RedisHost
		redisCfg.Port = a.cfg.RedisPort
		redisCfg.Password = a.cfg.RedisPassword
		redisCfg.DB = a.cfg.RedisDB
		rdb, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		a.logger.Info("connected to Redis",
			slog.String("host", a.cfg.RedisHost),
			slog.Int("db", a.cfg.RedisDB),
		)
		store := credential.NewRedisStore(rdb, a.cfg.CredentialsKey, a.logger)
		h.Register("credentials", store.Ping)
		return store, nil

	case config.CredentialsMemory:
		a.logger.Warn("using in-memory credential store, the session will not survive a restart")
		return credential.NewMemoryStore(), nil

	default:
		path := a.cfg.CredentialsFile
		if path == "" {
			var err error
			if path, err = credential.DefaultPath(); err != nil {
				return nil, err
			}
		}
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create credentials dir: %w", err)
		}
		h.Register("credentials", func(context.Context) error {
			_, err := os.Stat(dir)
			return err
		})
		return credential.NewFileStore(path, a.logger), nil
	}
}

// Handler returns the console's HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run restores the session, starts the HTTP server and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		bootCtx, cancel := context.WithTimeout(ctx, a.cfg.APITimeout)
		defer cancel()
		a.session.Bootstrap(bootCtx)
		a.logger.Info("session bootstrap complete", slog.String("state", string(a.session.Snapshot().State)))
	}()

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests and close streams)
// 2. Cache (wait for background fetches)
// 3. Kafka producer (flush pending notices)
// 4. Redis
// 5. Tracer (flush pending spans)
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.cache.Close()

	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes the producer, Redis and the tracer.
func (a *App) release() error {
	var errs []error

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
