package fulfillment

import (
	"context"
	"log/slog"

	"github.com/roach88/evertag/internal/domain"
)

// afterCommit runs the best-effort side effects. Neither can undo or fail
// the fulfillment.
func (o *Orchestrator) afterCommit(ctx context.Context, res Result, sessionID string, log *slog.Logger) {
	if res.Created && o.notifier != nil {
		o.notify(ctx, res.Fulfillment, log)
	}
	if sessionID != "" && o.carts != nil {
		if err := o.carts.ClearCart(ctx, sessionID); err != nil {
			log.Warn("failed to clear cart", "session_id", sessionID, "error", err)
		}
	}
}

// notify sends the confirmation in the background. The request context is
// detached so a finished HTTP request does not cancel delivery.
func (o *Orchestrator) notify(ctx context.Context, f domain.Fulfillment, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, o.notifyTimeout)
		defer cancel()

		if err := o.notifier.Notify(ctx, f); err != nil {
			nerr := domain.NewNotificationError(f.Order.ID, err)
			log.Warn("notification failed", "order_id", f.Order.ID, "error", nerr)
			return
		}
		log.Debug("notification sent", "order_id", f.Order.ID)
	}()
}
