package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/evertag/internal/activation"
	"github.com/roach88/evertag/internal/codepool"
	"github.com/roach88/evertag/internal/config"
	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/fulfillment"
	"github.com/roach88/evertag/internal/gateway"
	"github.com/roach88/evertag/internal/notify"
	"github.com/roach88/evertag/internal/store"
)

// app is the wired service shared by the commands.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	clock  domain.Clock
	store  *store.Store
	pool   *codepool.Pool
	orch   *fulfillment.Orchestrator
	scans  *activation.Handler
}

// loadConfig applies the config file, environment and flag overrides, and
// installs the process logger.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.Options{Path: opts.ConfigPath, Environment: opts.Environment})
	if err != nil {
		return cfg, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}

	logger := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// openApp loads configuration, opens the database and wires the services.
// The caller must Close it.
func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}

	pool := codepool.New(
		codepool.WithMaxAttempts(cfg.Pool.MaxAttempts),
		codepool.WithCandidateBatch(cfg.Pool.CandidateBatch),
		codepool.WithSyntheticPrefix(cfg.Pool.SyntheticPrefix),
		codepool.WithClock(clock),
		codepool.WithLogger(logger),
	)

	verifier := opts.Verifier
	if verifier == nil {
		verifier = gateway.NewClient(gateway.Config{
			BaseURL:     cfg.Gateway.BaseURL,
			SecretKey:   cfg.Gateway.SecretKey,
			Timeout:     cfg.Gateway.Timeout,
			MaxAttempts: cfg.Gateway.MaxAttempts,
		}, logger)
	}

	orch := fulfillment.New(st, pool, verifier,
		fulfillment.WithNotifier(newNotifier(cfg, opts, logger)),
		fulfillment.WithCartClearer(st),
		fulfillment.WithClock(clock),
		fulfillment.WithLogger(logger),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		clock:  clock,
		store:  st,
		pool:   pool,
		orch:   orch,
		scans:  activation.NewHandler(st, pool, clock, logger),
	}, nil
}

func newNotifier(cfg config.Config, opts *RootOptions, logger *slog.Logger) fulfillment.Notifier {
	if opts.Notifier != nil {
		return opts.Notifier
	}
	if cfg.Mail.APIURL == "" {
		return notify.LogNotifier{From: cfg.Mail.From, BaseURL: cfg.PublicBaseURL, Logger: logger}
	}
	return notify.NewHTTPMailer(notify.MailerConfig{
		APIURL:      cfg.Mail.APIURL,
		APIKey:      cfg.Mail.APIKey,
		From:        cfg.Mail.From,
		BaseURL:     cfg.PublicBaseURL,
		Timeout:     cfg.Mail.Timeout,
		MaxAttempts: cfg.Mail.MaxAttempts,
	}, logger)
}

// Close waits for background notifications and closes the database.
func (a *app) Close() {
	a.orch.Wait()
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

func (a *app) generateCodes(cmd *cobra.Command, prefix string, count int) (codepool.Batch, error) {
	batch, err := a.pool.Generate(cmd.Context(), a.store, prefix, count)
	if err != nil {
		return batch, fmt.Errorf("generate codes: %w", err)
	}
	return batch, nil
}
