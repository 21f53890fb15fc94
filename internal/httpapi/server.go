// Package httpapi exposes the fulfillment triggers, tag scans and admin
// operations over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/evertag/internal/activation"
	"github.com/roach88/evertag/internal/codepool"
	"github.com/roach88/evertag/internal/fulfillment"
	"github.com/roach88/evertag/internal/gateway"
)

// DefaultRequestTimeout bounds every request when Deps leaves it unset.
const DefaultRequestTimeout = 5 * time.Second

// maxWebhookBody caps callback payloads.
const maxWebhookBody = 1 << 20

// Fulfiller runs fulfillment and repair. *fulfillment.Orchestrator
// implements it.
type Fulfiller interface {
	Fulfill(ctx context.Context, req fulfillment.Request) (fulfillment.Result, error)
	Repair(ctx context.Context, orderID string) (fulfillment.RepairResult, error)
}

// Scanner handles a tag scan. *activation.Handler implements it.
type Scanner interface {
	OnScan(ctx context.Context, code string) (activation.Result, error)
}

// CodeGenerator creates a batch of pool codes.
type CodeGenerator interface {
	Generate(ctx context.Context, prefix string, count int) (codepool.Batch, error)
}

// CodeGeneratorFunc adapts a function to CodeGenerator.
type CodeGeneratorFunc func(ctx context.Context, prefix string, count int) (codepool.Batch, error)

func (f CodeGeneratorFunc) Generate(ctx context.Context, prefix string, count int) (codepool.Batch, error) {
	return f(ctx, prefix, count)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Fulfiller Fulfiller
	Scanner   Scanner
	Codes     CodeGenerator
	Webhooks  *gateway.WebhookVerifier
	// Admin guards /admin. Routes are not registered when Admin.Secret is empty.
	Admin          AdminAuth
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Server is the HTTP transport.
type Server struct {
	deps    Deps
	router  *gin.Engine
	logger  *slog.Logger
	confirm singleflight.Group
}

// New builds the router.
func New(deps Deps) *Server {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = DefaultRequestTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	s := &Server{deps: deps, router: router, logger: logger}

	router.Use(gin.Recovery(), s.trace(), s.accessLog(), timeout(deps.RequestTimeout))

	router.GET("/healthz", s.handleHealth)
	router.POST("/webhooks/payment", s.handleWebhook)
	router.POST("/orders/confirm", s.handleConfirm)
	router.GET("/scan/:code", s.handleScan)

	if deps.Admin.Secret != "" {
		admin := router.Group("/admin", s.requireAdmin())
		{
			admin.POST("/orders/:id/repair", s.handleRepair)
			admin.POST("/codes/batches", s.handleGenerate)
		}
	} else {
		logger.Warn("admin secret not configured, admin routes disabled")
	}

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
