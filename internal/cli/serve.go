package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/evertag/internal/codepool"
	"github.com/roach88/evertag/internal/gateway"
	"github.com/roach88/evertag/internal/httpapi"
	"github.com/roach88/evertag/internal/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Run the HTTP service: the payment webhook, the confirmation poll,
tag scans and the admin endpoints.

Example:
  evertag serve --config ./evertag.yaml
  EVERTAG_GATEWAY_SECRET_KEY=sk_live_... evertag serve --addr :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, a.cfg.Telemetry)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Error("error flushing traces", "error", err)
		}
	}()

	if a.cfg.Gateway.WebhookSecret == "" {
		a.logger.Warn("gateway webhook secret not configured, every callback will be rejected")
	}

	server := httpapi.New(httpapi.Deps{
		Fulfiller: a.orch,
		Scanner:   a.scans,
		Codes: httpapi.CodeGeneratorFunc(func(ctx context.Context, prefix string, count int) (codepool.Batch, error) {
			return a.pool.Generate(ctx, a.store, prefix, count)
		}),
		Webhooks:       gateway.NewWebhookVerifier(a.cfg.Gateway.WebhookSecret, a.cfg.Gateway.Tolerance, nil),
		Admin:          httpapi.AdminAuth{Secret: a.cfg.Admin.JWTSecret, Issuer: a.cfg.Admin.Issuer},
		RequestTimeout: a.cfg.HTTP.RequestTimeout,
		Logger:         a.logger,
	})

	addr := a.cfg.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	err = server.Serve(ctx, addr, a.cfg.HTTP.ShutdownTimeout)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "http server error", err)
	}
	a.logger.Info("stopped gracefully")
	return nil
}
