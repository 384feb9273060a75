// Package main provides consolectl, a command-line client for the Kuros admin
// API. Invocations share the console's credential file, so a login survives
// between commands until the server rejects the token or logout is run.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Devmainman/kurosadmin/internal/api"
	"github.com/Devmainman/kurosadmin/internal/cache"
	"github.com/Devmainman/kurosadmin/internal/config"
	"github.com/Devmainman/kurosadmin/internal/credential"
	"github.com/Devmainman/kurosadmin/internal/mutation"
	"github.com/Devmainman/kurosadmin/internal/notify"
	"github.com/Devmainman/kurosadmin/internal/session"
	"github.com/Devmainman/kurosadmin/pkg/httpclient"
	"github.com/Devmainman/kurosadmin/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// console holds the components a command runs against. It is built before
// every command and released after it.
type console struct {
	cfg      *config.Config
	log      *slog.Logger
	tokens   *credential.FileStore
	registry *api.Registry
	cache    *cache.Cache
	session  *session.Controller
	mutator  *mutation.Coordinator
}

type rootOptions struct {
	apiURL  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var c console

	root := &cobra.Command{
		Use:   "consolectl",
		Short: "consolectl manages Kuros site content from the terminal",
		Long: `consolectl talks to the Kuros admin API with the same session rules as
the admin console: one stored token, a two-factor challenge when the account
requires it, and automatic logout when the server rejects the token.

Configuration is read from KUROS_ environment variables, e.g.
KUROS_API_BASE_URL and KUROS_CREDENTIALS_FILE.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd, opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.close()
		},
	}

	root.PersistentFlags().StringVar(&opts.apiURL, "api", "", "admin API base URL (overrides KUROS_API_BASE_URL)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(newLoginCmd(&c))
	root.AddCommand(newLogoutCmd(&c))
	root.AddCommand(newWhoamiCmd(&c))
	root.AddCommand(newListCmd(&c))
	root.AddCommand(newGetCmd(&c))
	root.AddCommand(newDeleteCmd(&c))
	return root
}

// open loads the configuration and wires the session over the credential
// file. Every command except login starts by restoring the stored session.
func (c *console) open(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.apiURL != "" {
		cfg.APIBaseURL = opts.apiURL
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	c.cfg = cfg
	c.log = logger.NewWithFormat("consolectl", level, logger.FormatText, cmd.ErrOrStderr())

	path := cfg.CredentialsFile
	if path == "" {
		if path, err = credential.DefaultPath(); err != nil {
			return err
		}
	}
	c.tokens = credential.NewFileStore(path, c.log)

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.APITimeout
	doer := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("admin-api"),
		c.log,
	).WithFallback(api.CircuitOpenFallback)

	client := api.NewClient(api.Config{BaseURL: cfg.APIBaseURL}, doer, c.tokens, c.log)
	c.registry = api.NewRegistry(client)

	bus := notify.NewBus(c.log, noticePrinter{w: cmd.ErrOrStderr()})
	c.cache = cache.New(c.registry, bus, cache.Config{
		FetchTimeout: cfg.APITimeout,
		RetryDelay:   cfg.CacheRetryDelay,
	}, c.log)
	c.session = session.NewController(client, c.tokens, c.cache, bus, session.Config{
		TwoFactorTTL: cfg.TwoFactorTTL,
	}, c.log)
	client.OnUnauthorized(c.session.ForceExpire)
	c.mutator = mutation.NewCoordinator(c.registry, c.cache, bus, c.log)

	if cmd.Name() != "login" {
		c.session.Bootstrap(cmd.Context())
	}
	return nil
}

func (c *console) close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

// requireSession fails unless the restored session is authenticated.
func (c *console) requireSession() error {
	snap := c.session.Snapshot()
	switch {
	case snap.Authenticated():
		return nil
	case snap.Reason == session.ReasonExpired:
		return errors.New("session expired, run `consolectl login`")
	default:
		return errors.New("not logged in, run `consolectl login`")
	}
}

// noticePrinter shows notices on stderr so stdout carries only data.
type noticePrinter struct {
	w io.Writer
}

func (p noticePrinter) Deliver(_ context.Context, n notify.Notice) error {
	_, err := fmt.Fprintf(p.w, "[%s] %s\n", n.Kind, n.Message)
	return err
}
