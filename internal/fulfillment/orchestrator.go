package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/evertag/internal/codepool"
	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/store"
)

const tracerName = "github.com/roach88/evertag/internal/fulfillment"

// DefaultNotifyTimeout bounds one background notification.
const DefaultNotifyTimeout = 10 * time.Second

// PaymentVerifier asks the payment gateway about a checkout session.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, reference string) (domain.PaymentDetails, error)
}

// Notifier delivers the purchase confirmation. Failures are logged only.
type Notifier interface {
	Notify(ctx context.Context, f domain.Fulfillment) error
}

// CartClearer deletes the cart a purchase came from.
type CartClearer interface {
	ClearCart(ctx context.Context, sessionID string) error
}

// Ledger is the persistent state the orchestrator reconciles against.
// *store.Store implements it.
type Ledger interface {
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	GetOrderByReference(ctx context.Context, reference string) (domain.Order, error)
	InsertOrder(ctx context.Context, o domain.Order) error
	SetOrderMemorial(ctx context.Context, orderID, memorialID string, at time.Time) (bool, error)
	GetMemorial(ctx context.Context, id string) (domain.Memorial, error)
	GetMemorialByReference(ctx context.Context, reference string) (domain.Memorial, error)
	GetAccessCodeByMemorial(ctx context.Context, memorialID string) (domain.AccessCode, error)
	InTx(ctx context.Context, fn func(*store.Tx) error) error
}

// Source names the trigger that invoked the orchestrator.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceRepair  Source = "repair"
	SourceCLI     Source = "cli"
)

// Request is one fulfillment attempt.
type Request struct {
	Reference string
	// Verified carries payment details the caller already authenticated,
	// such as a signature-checked callback payload. When nil the
	// orchestrator asks the gateway itself.
	Verified *domain.PaymentDetails
	// SessionID identifies the cart to clear after fulfillment. Falls back
	// to the cart session recorded on the payment.
	SessionID string
	Source    Source
}

// Result is the fulfilled triad.
type Result struct {
	domain.Fulfillment
	// Created is set when this call created or linked the order. Only
	// such calls notify the customer.
	Created bool
}

// RepairResult is the outcome of a manual repair.
type RepairResult struct {
	Memorial   domain.Memorial   `json:"memorial"`
	AccessCode domain.AccessCode `json:"access_code"`
	Repaired   bool              `json:"repaired"`
}

// Orchestrator runs the fulfillment state machine.
// Safe for concurrent use by any number of triggers.
type Orchestrator struct {
	ledger        Ledger
	pool          *codepool.Pool
	verifier      PaymentVerifier
	notifier      Notifier
	carts         CartClearer
	clock         domain.Clock
	ids           domain.IDGenerator
	logger        *slog.Logger
	tracer        trace.Tracer
	notifyTimeout time.Duration

	// pending tracks background notifications.
	pending sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithCartClearer(c CartClearer) Option {
	return func(o *Orchestrator) { o.carts = c }
}

func WithClock(c domain.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithIDGenerator sets the generator for memorial IDs.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(o *Orchestrator) { o.ids = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithNotifyTimeout bounds each background notification.
func WithNotifyTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.notifyTimeout = d
		}
	}
}

// New creates an Orchestrator.
func New(ledger Ledger, pool *codepool.Pool, verifier PaymentVerifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:        ledger,
		pool:          pool,
		verifier:      verifier,
		clock:         domain.SystemClock{},
		ids:           domain.UUIDv7Generator{},
		tracer:        otel.Tracer(tracerName),
		notifyTimeout: DefaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Wait blocks until background notifications have finished.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

// Fulfill guarantees the Order, Memorial and AccessCode triad for the
// request's payment reference. Safe to call concurrently and redundantly.
//
// Errors:
//   - INVALID_ARGUMENT: empty reference or mismatched payment details
//   - PAYMENT_NOT_CONFIRMED: the gateway has not settled the payment; retry later
//   - DATA_INTEGRITY: the order exists without a memorial; Repair or a retry finishes it
//
// Any other error leaves state from which an identical call makes progress.
func (o *Orchestrator) Fulfill(ctx context.Context, req Request) (res Result, err error) {
	ref := strings.TrimSpace(req.Reference)
	ctx, span := o.tracer.Start(ctx, "fulfillment.Fulfill", trace.WithAttributes(
		attribute.String("payment.reference", ref),
		attribute.String("fulfillment.source", string(req.Source)),
	))
	defer func() { endSpan(span, res, err) }()

	if ref == "" {
		return Result{}, domain.NewInvalidArgumentError("payment reference is required")
	}
	log := o.logger.With("reference", ref, "source", req.Source)

	// Steps 1 and 2: the persisted order decides the resume point.
	order, err := o.ledger.GetOrderByReference(ctx, ref)
	switch {
	case err == nil && order.Linked():
		f, err := o.load(ctx, order)
		if err != nil {
			return Result{}, err
		}
		log.Debug("order already fulfilled", "order_id", order.ID)
		return Result{Fulfillment: f}, nil
	case err == nil:
		log.Info("resuming order without memorial", "order_id", order.ID)
		return o.complete(ctx, order, req, log)
	case !errors.Is(err, store.ErrNotFound):
		return Result{}, fmt.Errorf("fulfill %s: lookup order: %w", ref, err)
	}

	// Step 3.
	details, err := o.confirm(ctx, ref, req.Verified)
	if err != nil {
		return Result{}, err
	}

	// Steps 4 and 5.
	orderID := domain.OrderID(ref)
	rsv, err := o.reserve(ctx, orderID, ref, details.CustomerEmail, details.Items, log)
	if err != nil {
		return Result{}, o.recordUnlinked(ctx, orderID, details, err, log)
	}

	// Step 6.
	now := o.clock.Now()
	order = newOrder(orderID, details, rsv.memorial.ID, now)
	err = o.ledger.InsertOrder(ctx, order)
	if errors.Is(err, store.ErrConflict) {
		log.Info("order insert lost the race, reconciling", "order_id", orderID)
		res, err = o.reconcile(ctx, ref, rsv, log)
	} else if err != nil {
		// Memorial and code are committed; the next call reuses them.
		return Result{}, fmt.Errorf("fulfill %s: insert order: %w", ref, err)
	} else {
		res = Result{
			Fulfillment: domain.Fulfillment{Order: order, Memorial: rsv.memorial, AccessCode: rsv.code},
			Created:     true,
		}
	}
	if err != nil {
		return Result{}, err
	}

	// Steps 7 and 8.
	o.afterCommit(ctx, res, sessionFor(req, details.CartSessionID), log)
	return res, nil
}

// Repair finishes an order that exists without a memorial. Repairing a
// linked order is a no-op that returns its memorial unchanged.
func (o *Orchestrator) Repair(ctx context.Context, orderID string) (res RepairResult, err error) {
	ctx, span := o.tracer.Start(ctx, "fulfillment.Repair", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer func() {
		span.SetAttributes(attribute.Bool("fulfillment.repaired", res.Repaired))
		endSpan(span, Result{}, err)
	}()

	order, err := o.ledger.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return RepairResult{}, domain.NewNotFoundError("order", orderID)
	}
	if err != nil {
		return RepairResult{}, fmt.Errorf("repair %s: %w", orderID, err)
	}

	if order.Linked() {
		f, err := o.load(ctx, order)
		if err != nil {
			return RepairResult{}, err
		}
		return RepairResult{Memorial: f.Memorial, AccessCode: f.AccessCode}, nil
	}

	log := o.logger.With("reference", order.PaymentReference, "source", SourceRepair)
	result, err := o.complete(ctx, order, Request{Reference: order.PaymentReference, Source: SourceRepair}, log)
	if err != nil {
		return RepairResult{}, err
	}
	log.Info("order repaired", "order_id", order.ID, "memorial_id", result.Memorial.ID, "linked", result.Created)
	return RepairResult{Memorial: result.Memorial, AccessCode: result.AccessCode, Repaired: result.Created}, nil
}

// complete runs steps 4 onward for an order that already exists, using its
// stored snapshot rather than the gateway's.
func (o *Orchestrator) complete(ctx context.Context, order domain.Order, req Request, log *slog.Logger) (Result, error) {
	rsv, err := o.reserve(ctx, order.ID, order.PaymentReference, order.CustomerEmail, order.Items, log)
	if err != nil {
		log.Error("memorial reservation failed for existing order", "order_id", order.ID, "error", err)
		return Result{}, domain.NewDataIntegrityError(order.PaymentReference, order.ID, err)
	}

	linked, err := o.ledger.SetOrderMemorial(ctx, order.ID, rsv.memorial.ID, o.clock.Now())
	if err != nil {
		return Result{}, domain.NewDataIntegrityError(order.PaymentReference, order.ID, err)
	}
	if !linked {
		// Another caller linked it between our read and write.
		return o.reconcile(ctx, order.PaymentReference, rsv, log)
	}

	orderID := order.ID
	order, err = o.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return Result{}, fmt.Errorf("complete %s: reload order: %w", orderID, err)
	}
	res := Result{
		Fulfillment: domain.Fulfillment{Order: order, Memorial: rsv.memorial, AccessCode: rsv.code},
		Created:     true,
	}
	o.afterCommit(ctx, res, req.SessionID, log)
	return res, nil
}

// confirm returns completed payment details for ref, asking the gateway
// unless the caller already verified them.
func (o *Orchestrator) confirm(ctx context.Context, ref string, verified *domain.PaymentDetails) (domain.PaymentDetails, error) {
	var details domain.PaymentDetails
	if verified != nil {
		details = *verified
	} else {
		if o.verifier == nil {
			return details, fmt.Errorf("confirm %s: no payment verifier configured", ref)
		}
		var err error
		details, err = o.verifier.VerifyPayment(ctx, ref)
		if err != nil {
			return details, fmt.Errorf("confirm %s: %w", ref, err)
		}
	}

	if details.Reference != "" && details.Reference != ref {
		return details, domain.NewInvalidArgumentError("payment details are for %q, not %q", details.Reference, ref)
	}
	details.Reference = ref
	if !details.Completed() {
		return details, domain.NewPaymentNotConfirmedError(ref, details.Status, details.PaymentStatus)
	}
	return details, nil
}

// recordUnlinked inserts the order without a memorial after the
// reservation failed, so the purchase is never lost and repair can finish
// it.
func (o *Orchestrator) recordUnlinked(ctx context.Context, orderID string, details domain.PaymentDetails, cause error, log *slog.Logger) error {
	now := o.clock.Now()
	err := o.ledger.InsertOrder(ctx, newOrder(orderID, details, "", now))
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("fulfill %s: reserve: %w (recording order: %v)", details.Reference, cause, err)
	}
	log.Error("order recorded without memorial; run repair", "order_id", orderID, "error", cause)
	return domain.NewDataIntegrityError(details.Reference, orderID, cause)
}

func newOrder(orderID string, details domain.PaymentDetails, memorialID string, now time.Time) domain.Order {
	return domain.Order{
		ID:               orderID,
		OrderNumber:      domain.OrderNumber(orderID),
		PaymentReference: details.Reference,
		CustomerEmail:    details.CustomerEmail,
		CustomerName:     details.CustomerName,
		Shipping:         details.Shipping,
		Items:            details.Items,
		Totals:           details.Totals,
		Status:           domain.OrderPaid,
		MemorialID:       memorialID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func sessionFor(req Request, fromPayment string) string {
	if req.SessionID != "" {
		return req.SessionID
	}
	return fromPayment
}

func endSpan(span trace.Span, res Result, err error) {
	if res.Order.ID != "" {
		span.SetAttributes(
			attribute.String("order.id", res.Order.ID),
			attribute.Bool("fulfillment.created", res.Created),
			attribute.Bool("fulfillment.degraded", res.Degraded()),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		if code := domain.CodeOf(err); code != "" {
			span.SetAttributes(attribute.String("error.code", string(code)))
		}
	}
	span.End()
}
