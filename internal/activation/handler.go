// Package activation turns a reserved access code into an active memorial
// on the first physical scan of its tag.
package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/evertag/internal/codepool"
	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/store"
)

// State is what a scan reports to the person holding the tag.
type State string

const (
	// StatePending means the code has not been sold yet.
	StatePending State = "pending"
	// StateActive means the memorial is live.
	StateActive State = "active"
)

// Result is the outcome of one scan.
type Result struct {
	State    State            `json:"state"`
	Code     string           `json:"code"`
	Memorial *domain.Memorial `json:"memorial,omitempty"`
	// Activated is set only on the scan that performed the transition.
	Activated bool `json:"activated"`
}

// Store is the persistence surface of the handler.
type Store interface {
	GetAccessCode(ctx context.Context, code string) (domain.AccessCode, error)
	GetMemorial(ctx context.Context, id string) (domain.Memorial, error)
	InTx(ctx context.Context, fn func(*store.Tx) error) error
}

// Handler processes scans.
type Handler struct {
	store  Store
	pool   *codepool.Pool
	clock  domain.Clock
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHandler creates a Handler. A nil logger uses slog.Default.
func NewHandler(s Store, pool *codepool.Pool, clock domain.Clock, logger *slog.Logger) *Handler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		pool:   pool,
		clock:  clock,
		logger: logger,
		tracer: otel.Tracer("github.com/roach88/evertag/internal/activation"),
	}
}

// OnScan handles a scan of code.
//
//   - available: pending, nothing is written
//   - reserved: the code and its memorial become active together
//   - activated: active, nothing is written
func (h *Handler) OnScan(ctx context.Context, code string) (res Result, err error) {
	code = domain.NormalizeCode(code)
	ctx, span := h.tracer.Start(ctx, "activation.OnScan", trace.WithAttributes(
		attribute.String("access_code", code),
	))
	defer func() {
		span.SetAttributes(
			attribute.String("activation.state", string(res.State)),
			attribute.Bool("activation.activated", res.Activated),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()

	if code == "" {
		return Result{}, domain.NewInvalidArgumentError("code is required")
	}

	c, err := h.store.GetAccessCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, domain.NewNotFoundError("access code", code)
	}
	if err != nil {
		return Result{}, fmt.Errorf("scan %s: %w", code, err)
	}

	switch c.Status {
	case domain.CodeAvailable:
		return Result{State: StatePending, Code: code}, nil
	case domain.CodeActivated:
		m, err := h.store.GetMemorial(ctx, c.MemorialID)
		if err != nil {
			return Result{}, fmt.Errorf("scan %s: load memorial: %w", code, err)
		}
		return Result{State: StateActive, Code: code, Memorial: &m}, nil
	}

	return h.activate(ctx, c)
}

// activate moves the code and memorial to active in one transaction.
func (h *Handler) activate(ctx context.Context, c domain.AccessCode) (Result, error) {
	var (
		m         domain.Memorial
		activated bool
	)
	err := h.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := h.pool.Activate(ctx, tx, c.Code, c.MemorialID); err != nil {
			return err
		}
		var err error
		activated, err = tx.MarkMemorialActivated(ctx, c.MemorialID, h.clock.Now())
		if err != nil {
			return err
		}
		m, err = tx.GetMemorial(ctx, c.MemorialID)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("scan %s: %w", c.Code, err)
	}

	if activated {
		h.logger.Info("memorial activated", "code", c.Code, "memorial_id", m.ID, "order_id", c.OrderID)
	}
	return Result{State: StateActive, Code: c.Code, Memorial: &m, Activated: activated}, nil
}
