package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/store"
)

// reservation is the memorial and code held for one payment reference.
type reservation struct {
	memorial domain.Memorial
	code     domain.AccessCode
	degraded bool
}

// reserve claims a code and creates the memorial in one transaction, or
// returns the reservation a previous call already committed for ref.
func (o *Orchestrator) reserve(ctx context.Context, orderID, ref, email string, items []domain.LineItem, log *slog.Logger) (reservation, error) {
	var rsv reservation
	err := o.ledger.InTx(ctx, func(tx *store.Tx) error {
		existing, err := tx.GetMemorialByReference(ctx, ref)
		if err == nil {
			code, err := tx.GetAccessCodeByMemorial(ctx, existing.ID)
			if err != nil {
				return fmt.Errorf("load code of memorial %s: %w", existing.ID, err)
			}
			rsv = reservation{memorial: existing, code: code, degraded: code.Synthetic}
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		memorialID := o.ids.Generate()
		claim, err := o.pool.Claim(ctx, tx, domain.Binding{
			MemorialID: memorialID,
			OrderID:    orderID,
			OwnerEmail: email,
		})
		if err != nil {
			return err
		}

		m := domain.Memorial{
			ID:               memorialID,
			Name:             domain.MemorialName(items),
			AccessCode:       claim.Code.Code,
			OwnerEmail:       email,
			PaymentReference: ref,
			CreatedAt:        o.clock.Now(),
		}
		if err := tx.InsertMemorial(ctx, m); err != nil {
			return err
		}
		rsv = reservation{memorial: m, code: claim.Code, degraded: claim.Degraded}
		return nil
	})

	if errors.Is(err, store.ErrConflict) {
		// A concurrent caller committed its reservation first. Our claim
		// was rolled back with the transaction, so the code is available
		// again.
		log.Info("reservation lost the race, adopting winner", "order_id", orderID)
		return o.loadReservation(ctx, ref)
	}
	if err != nil {
		return reservation{}, fmt.Errorf("reserve %s: %w", ref, err)
	}
	if rsv.degraded {
		log.Warn("fulfilled with synthetic code; flagged for manual follow-up",
			"order_id", orderID, "memorial_id", rsv.memorial.ID, "code", rsv.code.Code)
	}
	return rsv, nil
}

func (o *Orchestrator) loadReservation(ctx context.Context, ref string) (reservation, error) {
	m, err := o.ledger.GetMemorialByReference(ctx, ref)
	if err != nil {
		return reservation{}, fmt.Errorf("reserve %s: reload memorial: %w", ref, err)
	}
	code, err := o.ledger.GetAccessCodeByMemorial(ctx, m.ID)
	if err != nil {
		return reservation{}, fmt.Errorf("reserve %s: reload code: %w", ref, err)
	}
	return reservation{memorial: m, code: code, degraded: code.Synthetic}, nil
}

// reconcile resolves a lost order race. If the winning order still lacks
// a memorial ours is linked; if it points at a different memorial ours is
// retired and its code released.
func (o *Orchestrator) reconcile(ctx context.Context, ref string, rsv reservation, log *slog.Logger) (Result, error) {
	existing, err := o.ledger.GetOrderByReference(ctx, ref)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile %s: reload order: %w", ref, err)
	}

	if !existing.Linked() {
		linked, err := o.ledger.SetOrderMemorial(ctx, existing.ID, rsv.memorial.ID, o.clock.Now())
		if err != nil {
			return Result{}, fmt.Errorf("reconcile %s: link memorial: %w", ref, err)
		}
		if linked {
			existing.MemorialID = rsv.memorial.ID
			return Result{
				Fulfillment: domain.Fulfillment{Order: existing, Memorial: rsv.memorial, AccessCode: rsv.code},
				Created:     true,
			}, nil
		}
		if existing, err = o.ledger.GetOrderByReference(ctx, ref); err != nil {
			return Result{}, fmt.Errorf("reconcile %s: reload order: %w", ref, err)
		}
	}

	if existing.MemorialID != rsv.memorial.ID {
		if err := o.retire(ctx, existing.ID, rsv); err != nil {
			return Result{}, err
		}
		log.Info("released code of superseded memorial",
			"order_id", existing.ID, "memorial_id", rsv.memorial.ID, "code", rsv.code.Code)
	}

	f, err := o.load(ctx, existing)
	if err != nil {
		return Result{}, err
	}
	return Result{Fulfillment: f}, nil
}

// retire returns the code of a memorial that lost to another one and
// detaches it. The memorial row is kept.
func (o *Orchestrator) retire(ctx context.Context, orderID string, rsv reservation) error {
	err := o.ledger.InTx(ctx, func(tx *store.Tx) error {
		if err := o.pool.Release(ctx, tx, rsv.code.Code, orderID); err != nil {
			return err
		}
		return tx.DetachMemorialCode(ctx, rsv.memorial.ID)
	})
	if err != nil {
		return fmt.Errorf("retire memorial %s: %w", rsv.memorial.ID, err)
	}
	return nil
}

// load reads the memorial and code of a linked order.
func (o *Orchestrator) load(ctx context.Context, order domain.Order) (domain.Fulfillment, error) {
	f := domain.Fulfillment{Order: order}
	m, err := o.ledger.GetMemorial(ctx, order.MemorialID)
	if err != nil {
		return f, fmt.Errorf("load memorial %s: %w", order.MemorialID, err)
	}
	f.Memorial = m

	code, err := o.ledger.GetAccessCodeByMemorial(ctx, m.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return f, fmt.Errorf("load code of memorial %s: %w", m.ID, err)
	}
	f.AccessCode = code
	return f, nil
}
