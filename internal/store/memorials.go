package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/evertag/internal/domain"
)

const memorialColumns = `id, name, access_code, owner_email, payment_reference, is_activated, created_at, activated_at`

func scanMemorial(row rowScanner) (domain.Memorial, error) {
	var (
		m           domain.Memorial
		accessCode  sql.NullString
		activated   int
		createdAt   int64
		activatedAt sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.Name, &accessCode, &m.OwnerEmail, &m.PaymentReference,
		&activated, &createdAt, &activatedAt)
	if err != nil {
		return m, err
	}
	m.AccessCode = accessCode.String
	m.IsActivated = activated != 0
	m.CreatedAt = fromMillis(createdAt)
	m.ActivatedAt = timePtr(activatedAt)
	return m, nil
}

func getMemorial(ctx context.Context, q querier, column, value string) (domain.Memorial, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+memorialColumns+" FROM memorials WHERE "+column+" = ?", value)
	m, err := scanMemorial(row)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, fmt.Errorf("get memorial: %w", err)
	}
	return m, nil
}

// GetMemorial returns a memorial by ID.
func (s *Store) GetMemorial(ctx context.Context, id string) (domain.Memorial, error) {
	return getMemorial(ctx, s.db, "id", id)
}

// GetMemorialByReference returns the memorial created for a payment reference.
func (s *Store) GetMemorialByReference(ctx context.Context, reference string) (domain.Memorial, error) {
	return getMemorial(ctx, s.db, "payment_reference", reference)
}

// GetMemorial returns a memorial by ID within the transaction.
func (t *Tx) GetMemorial(ctx context.Context, id string) (domain.Memorial, error) {
	return getMemorial(ctx, t.tx, "id", id)
}

// GetMemorialByReference returns the memorial for a payment reference within
// the transaction.
func (t *Tx) GetMemorialByReference(ctx context.Context, reference string) (domain.Memorial, error) {
	return getMemorial(ctx, t.tx, "payment_reference", reference)
}

// ListMemorials returns all memorials ordered by creation.
func (s *Store) ListMemorials(ctx context.Context) ([]domain.Memorial, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+memorialColumns+" FROM memorials ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("list memorials: %w", err)
	}
	defer rows.Close()

	var memorials []domain.Memorial
	for rows.Next() {
		m, err := scanMemorial(rows)
		if err != nil {
			return nil, fmt.Errorf("list memorials: scan: %w", err)
		}
		memorials = append(memorials, m)
	}
	return memorials, rows.Err()
}

// InsertMemorial creates an inactive memorial.
// Uses ON CONFLICT DO NOTHING: a memorial that already exists for the same
// payment reference (or code) yields ErrConflict and writes nothing.
func (t *Tx) InsertMemorial(ctx context.Context, m domain.Memorial) error {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO memorials
		(id, name, access_code, owner_email, payment_reference, is_activated, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT DO NOTHING
	`, m.ID, m.Name, nullString(m.AccessCode), m.OwnerEmail, m.PaymentReference, toMillis(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert memorial: %w", err)
	}
	inserted, err := affectedOne(result, "insert memorial")
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("insert memorial: %w", ErrConflict)
	}
	return nil
}

// MarkMemorialActivated flips is_activated exactly once.
// Returns false when the memorial was already active.
func (t *Tx) MarkMemorialActivated(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE memorials SET is_activated = 1, activated_at = ?
		WHERE id = ? AND is_activated = 0
	`, toMillis(at), id)
	if err != nil {
		return false, fmt.Errorf("activate memorial: %w", err)
	}
	return affectedOne(result, "activate memorial")
}

// DetachMemorialCode clears the access code of a memorial that lost its
// order to another memorial, so the released code can be sold again.
// The memorial row itself is kept.
func (t *Tx) DetachMemorialCode(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE memorials SET access_code = NULL
		WHERE id = ? AND is_activated = 0
	`, id)
	if err != nil {
		return fmt.Errorf("detach memorial code: %w", err)
	}
	return nil
}
