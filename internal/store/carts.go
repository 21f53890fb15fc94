package store

import (
	"context"
	"fmt"
	"time"
)

// CartItem is one row of a shopping session's cart.
type CartItem struct {
	SessionID       string
	SKU             string
	Quantity        int64
	Personalization map[string]string
	AddedAt         time.Time
}

// AddCartItem upserts a cart row. Carts are owned by the storefront; the
// fulfillment core only reads and clears them.
func (s *Store) AddCartItem(ctx context.Context, item CartItem) error {
	personalization, err := marshalPersonalization(item.Personalization)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cart_items (session_id, sku, quantity, personalization, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, sku) DO UPDATE SET
			quantity = excluded.quantity,
			personalization = excluded.personalization
	`, item.SessionID, item.SKU, item.Quantity, personalization, toMillis(item.AddedAt))
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

// CountCartItems returns the number of rows in a session's cart.
func (s *Store) CountCartItems(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cart_items WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cart items: %w", err)
	}
	return n, nil
}

// ClearCart deletes a session's cart. Idempotent: clearing an empty or
// unknown session succeeds.
func (s *Store) ClearCart(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
