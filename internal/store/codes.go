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

const accessCodeColumns = `id, code, status, memorial_id, order_id, owner_email, synthetic, batch, created_at, reserved_at, activated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// CodeFilter narrows ListAccessCodes. Zero values match everything.
type CodeFilter struct {
	Status    domain.CodeStatus
	Synthetic *bool
	Prefix    string
	Limit     int
}

func scanAccessCode(row rowScanner) (domain.AccessCode, error) {
	var (
		c                               domain.AccessCode
		status                          string
		memorialID, orderID, ownerEmail sql.NullString
		synthetic                       int
		createdAt                       int64
		reservedAt, activatedAt         sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.Code, &status, &memorialID, &orderID, &ownerEmail,
		&synthetic, &c.Batch, &createdAt, &reservedAt, &activatedAt)
	if err != nil {
		return c, err
	}
	c.Status = domain.CodeStatus(status)
	c.MemorialID = memorialID.String
	c.OrderID = orderID.String
	c.OwnerEmail = ownerEmail.String
	c.Synthetic = synthetic != 0
	c.CreatedAt = fromMillis(createdAt)
	c.ReservedAt = timePtr(reservedAt)
	c.ActivatedAt = timePtr(activatedAt)
	return c, nil
}

func getAccessCode(ctx context.Context, q querier, column, value string) (domain.AccessCode, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+accessCodeColumns+" FROM access_codes WHERE "+column+" = ?", value)
	c, err := scanAccessCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	if err != nil {
		return c, fmt.Errorf("get access code: %w", err)
	}
	return c, nil
}

// GetAccessCode returns the code row for a printed code string.
func (s *Store) GetAccessCode(ctx context.Context, code string) (domain.AccessCode, error) {
	return getAccessCode(ctx, s.db, "code", code)
}

// GetAccessCodeByMemorial returns the code bound to a memorial.
func (s *Store) GetAccessCodeByMemorial(ctx context.Context, memorialID string) (domain.AccessCode, error) {
	return getAccessCode(ctx, s.db, "memorial_id", memorialID)
}

// GetAccessCode returns the code row within the transaction.
func (t *Tx) GetAccessCode(ctx context.Context, code string) (domain.AccessCode, error) {
	return getAccessCode(ctx, t.tx, "code", code)
}

// GetAccessCodeByMemorial returns the code bound to a memorial within the transaction.
func (t *Tx) GetAccessCodeByMemorial(ctx context.Context, memorialID string) (domain.AccessCode, error) {
	return getAccessCode(ctx, t.tx, "memorial_id", memorialID)
}

// ListAccessCodes returns codes matching the filter ordered by code.
func (s *Store) ListAccessCodes(ctx context.Context, filter CodeFilter) ([]domain.AccessCode, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Synthetic != nil {
		clauses = append(clauses, "synthetic = ?")
		args = append(args, boolInt(*filter.Synthetic))
	}
	if filter.Prefix != "" {
		clauses = append(clauses, "code LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(filter.Prefix)+"-%")
	}

	query := "SELECT " + accessCodeColumns + " FROM access_codes"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY code ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list access codes: %w", err)
	}
	defer rows.Close()

	var codes []domain.AccessCode
	for rows.Next() {
		c, err := scanAccessCode(rows)
		if err != nil {
			return nil, fmt.Errorf("list access codes: scan: %w", err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list access codes: %w", err)
	}
	return codes, nil
}

// CountAccessCodes returns the number of codes per status.
func (s *Store) CountAccessCodes(ctx context.Context) (map[domain.CodeStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM access_codes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count access codes: %w", err)
	}
	defer rows.Close()

	counts := map[domain.CodeStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count access codes: scan: %w", err)
		}
		counts[domain.CodeStatus(status)] = n
	}
	return counts, rows.Err()
}

// InsertAccessCodes inserts a batch of available codes atomically.
// Any code that already exists aborts the whole batch with ErrConflict.
func (s *Store) InsertAccessCodes(ctx context.Context, codes []domain.AccessCode) (int, error) {
	inserted := 0
	err := s.InTx(ctx, func(t *Tx) error {
		stmt, err := t.tx.PrepareContext(ctx, `
			INSERT INTO access_codes (id, code, status, synthetic, batch, created_at)
			VALUES (?, ?, 'available', 0, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("insert access codes: prepare: %w", err)
		}
		defer stmt.Close()

		for _, c := range codes {
			if _, err := stmt.ExecContext(ctx, c.ID, c.Code, c.Batch, toMillis(c.CreatedAt)); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("insert access codes: code %s: %w", c.Code, ErrConflict)
				}
				return fmt.Errorf("insert access codes: code %s: %w", c.Code, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// AvailableCandidates returns up to limit pool codes that were available at
// read time, ordered by code and strictly after afterCode. A candidate may be
// taken by someone else before CompareAndReserve runs.
func (t *Tx) AvailableCandidates(ctx context.Context, afterCode string, limit int) ([]domain.AccessCode, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+accessCodeColumns+` FROM access_codes
		WHERE status = 'available' AND synthetic = 0 AND code > ?
		ORDER BY code ASC
		LIMIT ?
	`, afterCode, limit)
	if err != nil {
		return nil, fmt.Errorf("available candidates: %w", err)
	}
	defer rows.Close()

	var codes []domain.AccessCode
	for rows.Next() {
		c, err := scanAccessCode(rows)
		if err != nil {
			return nil, fmt.Errorf("available candidates: scan: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// CompareAndReserve moves one code from available to reserved and binds it,
// in a single conditional UPDATE. Returns false when the row was no longer
// available at write time. Returns ErrConflict when the order already holds
// another code.
func (t *Tx) CompareAndReserve(ctx context.Context, id string, b domain.Binding, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE access_codes
		SET status = 'reserved', memorial_id = ?, order_id = ?, owner_email = ?, reserved_at = ?
		WHERE id = ? AND status = 'available'
	`, b.MemorialID, b.OrderID, nullString(b.OwnerEmail), toMillis(at), id)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("reserve access code: %w", ErrConflict)
		}
		return false, fmt.Errorf("reserve access code: %w", err)
	}
	return affectedOne(result, "reserve access code")
}

// InsertSyntheticCode records a degraded-mode code that is reserved from
// birth. Returns ErrConflict on a duplicate code string or order.
func (t *Tx) InsertSyntheticCode(ctx context.Context, c domain.AccessCode) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO access_codes
		(id, code, status, memorial_id, order_id, owner_email, synthetic, batch, created_at, reserved_at)
		VALUES (?, ?, 'reserved', ?, ?, ?, 1, ?, ?, ?)
	`, c.ID, c.Code, c.MemorialID, c.OrderID, nullString(c.OwnerEmail), c.Batch,
		toMillis(c.CreatedAt), nullMillis(c.ReservedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert synthetic code: %w", ErrConflict)
		}
		return fmt.Errorf("insert synthetic code: %w", err)
	}
	return nil
}

// CompareAndActivate moves a reserved code bound to memorialID to activated.
// Returns false when the code is not in that state.
func (t *Tx) CompareAndActivate(ctx context.Context, code, memorialID string, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE access_codes
		SET status = 'activated', activated_at = ?
		WHERE code = ? AND status = 'reserved' AND memorial_id = ?
	`, toMillis(at), code, memorialID)
	if err != nil {
		return false, fmt.Errorf("activate access code: %w", err)
	}
	return affectedOne(result, "activate access code")
}

// ReleaseAccessCode undoes a reservation that lost a fulfillment race.
// Pool codes return to available; synthetic codes are deleted because they
// were never part of the pool. Only a reserved code still bound to orderID
// is touched.
func (t *Tx) ReleaseAccessCode(ctx context.Context, code, orderID string) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		DELETE FROM access_codes
		WHERE code = ? AND status = 'reserved' AND order_id = ? AND synthetic = 1
	`, code, orderID)
	if err != nil {
		return false, fmt.Errorf("release synthetic code: %w", err)
	}
	if deleted, err := affectedOne(result, "release synthetic code"); err != nil || deleted {
		return deleted, err
	}

	result, err = t.tx.ExecContext(ctx, `
		UPDATE access_codes
		SET status = 'available', memorial_id = NULL, order_id = NULL, owner_email = NULL, reserved_at = NULL
		WHERE code = ? AND status = 'reserved' AND order_id = ? AND synthetic = 0
	`, code, orderID)
	if err != nil {
		return false, fmt.Errorf("release access code: %w", err)
	}
	return affectedOne(result, "release access code")
}

func affectedOne(result sql.Result, op string) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n > 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
