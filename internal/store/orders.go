package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/evertag/internal/domain"
)

const orderColumns = `id, order_number, external_payment_reference, customer_email, customer_name,
	shipping, items, subtotal, shipping_amount, tax, total, currency, status, memorial_id, created_at, updated_at`

// OrderFilter narrows ListOrders. Zero values match everything.
type OrderFilter struct {
	Status   domain.OrderStatus
	Unlinked bool
	Limit    int
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                    domain.Order
		shipping, items      string
		status               string
		memorialID           sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.PaymentReference, &o.CustomerEmail, &o.CustomerName,
		&shipping, &items, &o.Totals.Subtotal, &o.Totals.Shipping, &o.Totals.Tax, &o.Totals.Total,
		&o.Totals.Currency, &status, &memorialID, &createdAt, &updatedAt)
	if err != nil {
		return o, err
	}
	if o.Shipping, err = unmarshalAddress(shipping); err != nil {
		return o, err
	}
	if o.Items, err = unmarshalItems(items); err != nil {
		return o, err
	}
	o.Status = domain.OrderStatus(status)
	o.MemorialID = memorialID.String
	o.CreatedAt = fromMillis(createdAt)
	o.UpdatedAt = fromMillis(updatedAt)
	return o, nil
}

func getOrder(ctx context.Context, q querier, column, value string) (domain.Order, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE "+column+" = ?", value)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	if err != nil {
		return o, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrder returns an order by ID.
func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return getOrder(ctx, s.db, "id", id)
}

// GetOrderByReference returns the order for an external payment reference.
func (s *Store) GetOrderByReference(ctx context.Context, reference string) (domain.Order, error) {
	return getOrder(ctx, s.db, "external_payment_reference", reference)
}

// ListOrders returns orders matching the filter, oldest first.
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Unlinked {
		clauses = append(clauses, "memorial_id IS NULL")
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list orders: scan: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// InsertOrder records an order exactly once per payment reference.
// Uses ON CONFLICT DO NOTHING; a lost race returns ErrConflict and the
// caller re-reads the winner with GetOrderByReference.
func (s *Store) InsertOrder(ctx context.Context, o domain.Order) error {
	items, err := marshalItems(o.Items)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	shipping, err := marshalAddress(o.Shipping)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	snapshot, err := domain.SnapshotHash(o.Items, o.Totals)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
		(id, order_number, external_payment_reference, customer_email, customer_name, shipping, items,
		 snapshot_hash, subtotal, shipping_amount, tax, total, currency, status, memorial_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		o.ID, o.OrderNumber, o.PaymentReference, o.CustomerEmail, o.CustomerName, shipping, items,
		snapshot, o.Totals.Subtotal, o.Totals.Shipping, o.Totals.Tax, o.Totals.Total, o.Totals.Currency,
		string(o.Status), nullString(o.MemorialID), toMillis(o.CreatedAt), toMillis(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	inserted, err := affectedOne(result, "insert order")
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("insert order %s: %w", o.PaymentReference, ErrConflict)
	}
	return nil
}

// SetOrderMemorial links an order to its memorial if it has none yet.
// Returns false when the order was already linked.
func (s *Store) SetOrderMemorial(ctx context.Context, orderID, memorialID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET memorial_id = ?, updated_at = ?
		WHERE id = ? AND memorial_id IS NULL
	`, memorialID, toMillis(at), orderID)
	if err != nil {
		return false, fmt.Errorf("link order memorial: %w", err)
	}
	return affectedOne(result, "link order memorial")
}

// UpdateOrderStatus moves an order from one status to the next.
// Returns false when the order is no longer in status from.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), toMillis(at), orderID, string(from))
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return affectedOne(result, "update order status")
}
