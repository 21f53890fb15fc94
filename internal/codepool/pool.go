package codepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/store"
)

const (
	// DefaultMaxAttempts bounds the CAS retry loop of a single claim.
	DefaultMaxAttempts = 8
	// DefaultCandidateBatch is how many available rows one read fetches.
	DefaultCandidateBatch = 4
	// DefaultSyntheticPrefix marks degraded-mode codes.
	DefaultSyntheticPrefix = "SYN"
	// MaxBatchSize caps a single generate call.
	MaxBatchSize = 100000
)

// Claimer is the transactional surface a claim runs against.
// *store.Tx implements it.
type Claimer interface {
	AvailableCandidates(ctx context.Context, afterCode string, limit int) ([]domain.AccessCode, error)
	CompareAndReserve(ctx context.Context, id string, b domain.Binding, at time.Time) (bool, error)
	InsertSyntheticCode(ctx context.Context, c domain.AccessCode) error
}

var _ Claimer = (*store.Tx)(nil)

// Activator is the transactional surface an activation runs against.
type Activator interface {
	GetAccessCode(ctx context.Context, code string) (domain.AccessCode, error)
	CompareAndActivate(ctx context.Context, code, memorialID string, at time.Time) (bool, error)
}

// Releaser undoes a reservation.
type Releaser interface {
	ReleaseAccessCode(ctx context.Context, code, orderID string) (bool, error)
}

// BatchWriter stores a generated batch atomically.
type BatchWriter interface {
	InsertAccessCodes(ctx context.Context, codes []domain.AccessCode) (int, error)
}

// Claim is the outcome of claiming a code for one purchase.
type Claim struct {
	Code domain.AccessCode
	// Degraded is set when the code is synthetic because the pool had
	// nothing to give.
	Degraded bool
}

// Pool allocates and transitions access codes.
// Safe for concurrent use; all state lives in the store.
type Pool struct {
	maxAttempts     int
	candidateBatch  int
	syntheticPrefix string
	clock           domain.Clock
	ids             domain.IDGenerator
	syntheticCode   func(prefix string) string
	logger          *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxAttempts sets how many conditional updates a claim may try before
// falling back to a synthetic code.
func WithMaxAttempts(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithCandidateBatch sets how many candidates each read returns.
func WithCandidateBatch(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.candidateBatch = n
		}
	}
}

// WithSyntheticPrefix sets the prefix of degraded-mode codes.
func WithSyntheticPrefix(prefix string) Option {
	return func(p *Pool) {
		if prefix != "" {
			p.syntheticPrefix = prefix
		}
	}
}

// WithSyntheticCodeFunc replaces the random synthetic code generator.
func WithSyntheticCodeFunc(fn func(prefix string) string) Option {
	return func(p *Pool) { p.syntheticCode = fn }
}

func WithClock(c domain.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

func WithIDGenerator(g domain.IDGenerator) Option {
	return func(p *Pool) { p.ids = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// New creates a Pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		maxAttempts:     DefaultMaxAttempts,
		candidateBatch:  DefaultCandidateBatch,
		syntheticPrefix: DefaultSyntheticPrefix,
		clock:           domain.SystemClock{},
		ids:             domain.UUIDv7Generator{},
		syntheticCode:   randomSyntheticCode,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// randomSyntheticCode returns PREFIX-XXXXXXXXXXXX from 48 random bits.
func randomSyntheticCode(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + strings.ToUpper(raw[len(raw)-12:])
}

// Claim reserves one code for the binding and attaches the binding in the
// same conditional update. Claim never returns ResourceExhausted: an empty
// or fully contended pool yields a synthetic code with Degraded set.
//
// Returns store.ErrConflict (wrapped) when the binding's order already
// holds a code.
func (p *Pool) Claim(ctx context.Context, tx Claimer, b domain.Binding) (Claim, error) {
	code, err := p.claimPooled(ctx, tx, b)
	if err == nil {
		return Claim{Code: code}, nil
	}
	if !domain.IsResourceExhausted(err) {
		return Claim{}, err
	}

	synthetic, err := p.claimSynthetic(ctx, tx, b)
	if err != nil {
		return Claim{}, err
	}
	p.logger.Warn("code pool exhausted, issued synthetic code; flagged for manual follow-up",
		"order_id", b.OrderID,
		"memorial_id", b.MemorialID,
		"code", synthetic.Code,
		"max_attempts", p.maxAttempts)
	return Claim{Code: synthetic, Degraded: true}, nil
}

// claimPooled runs the bounded CAS loop. Candidates are walked in code
// order; a lost CAS moves on to the next row rather than re-reading the
// same one.
func (p *Pool) claimPooled(ctx context.Context, tx Claimer, b domain.Binding) (domain.AccessCode, error) {
	attempts := 0
	after := ""
	for attempts < p.maxAttempts {
		if err := ctx.Err(); err != nil {
			return domain.AccessCode{}, err
		}

		candidates, err := tx.AvailableCandidates(ctx, after, p.candidateBatch)
		if err != nil {
			return domain.AccessCode{}, fmt.Errorf("claim: %w", err)
		}
		if len(candidates) == 0 {
			break
		}

		for _, c := range candidates {
			if attempts >= p.maxAttempts {
				break
			}
			attempts++
			after = c.Code

			now := p.clock.Now()
			ok, err := tx.CompareAndReserve(ctx, c.ID, b, now)
			if err != nil {
				return domain.AccessCode{}, fmt.Errorf("claim %s: %w", c.Code, err)
			}
			if !ok {
				p.logger.Debug("claim contended, trying next candidate", "code", c.Code, "attempt", attempts)
				continue
			}
			return bound(c, b, now), nil
		}
	}
	return domain.AccessCode{}, domain.NewResourceExhaustedError(attempts)
}

func (p *Pool) claimSynthetic(ctx context.Context, tx Claimer, b domain.Binding) (domain.AccessCode, error) {
	now := p.clock.Now()
	c := bound(domain.AccessCode{
		ID:        p.ids.Generate(),
		Code:      p.syntheticCode(p.syntheticPrefix),
		Synthetic: true,
		Batch:     "synthetic",
		CreatedAt: now,
	}, b, now)
	if err := tx.InsertSyntheticCode(ctx, c); err != nil {
		return domain.AccessCode{}, fmt.Errorf("claim synthetic: %w", err)
	}
	return c, nil
}

func bound(c domain.AccessCode, b domain.Binding, at time.Time) domain.AccessCode {
	c.Status = domain.CodeReserved
	c.MemorialID = b.MemorialID
	c.OrderID = b.OrderID
	c.OwnerEmail = b.OwnerEmail
	c.ReservedAt = &at
	return c
}

// Activate moves a reserved code bound to memorialID to activated.
// Activating a code that is already active for the same memorial is a
// no-op. Any other state, or a different memorial, is rejected.
func (p *Pool) Activate(ctx context.Context, tx Activator, code, memorialID string) (domain.AccessCode, error) {
	c, err := tx.GetAccessCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return c, domain.NewNotFoundError("access code", code)
	}
	if err != nil {
		return c, fmt.Errorf("activate: %w", err)
	}

	if c.MemorialID != memorialID && c.Status != domain.CodeAvailable {
		return c, domain.NewInvalidTransitionError("access code", code,
			fmt.Sprintf("%s(memorial=%s)", c.Status, c.MemorialID),
			fmt.Sprintf("%s(memorial=%s)", domain.CodeActivated, memorialID))
	}

	switch c.Status {
	case domain.CodeActivated:
		return c, nil
	case domain.CodeReserved:
		now := p.clock.Now()
		ok, err := tx.CompareAndActivate(ctx, code, memorialID, now)
		if err != nil {
			return c, fmt.Errorf("activate: %w", err)
		}
		if !ok {
			// Lost to a concurrent scan; the winner's state is the answer.
			current, err := tx.GetAccessCode(ctx, code)
			if err != nil {
				return c, fmt.Errorf("activate: %w", err)
			}
			if current.Status == domain.CodeActivated && current.MemorialID == memorialID {
				return current, nil
			}
			return current, domain.NewInvalidTransitionError("access code", code, current.Status, domain.CodeActivated)
		}
		c.Status = domain.CodeActivated
		c.ActivatedAt = &now
		return c, nil
	default:
		return c, domain.NewInvalidTransitionError("access code", code, c.Status, domain.CodeActivated)
	}
}

// Release returns a code claimed for orderID to the pool after its claim
// lost the order race. Synthetic codes are discarded instead.
func (p *Pool) Release(ctx context.Context, tx Releaser, code, orderID string) error {
	released, err := tx.ReleaseAccessCode(ctx, code, orderID)
	if err != nil {
		return fmt.Errorf("release %s: %w", code, err)
	}
	if released {
		p.logger.Info("released access code", "code", code, "order_id", orderID)
	}
	return nil
}
