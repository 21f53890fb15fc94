package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/evertag/internal/domain"
)

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// createTestStore creates a fresh file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedCodes inserts available pool codes with IDs derived from the code.
func seedCodes(t *testing.T, s *Store, codes ...string) {
	t.Helper()
	batch := make([]domain.AccessCode, 0, len(codes))
	for _, c := range codes {
		batch = append(batch, domain.AccessCode{ID: "id-" + c, Code: c, Batch: "test", CreatedAt: testTime})
	}
	if _, err := s.InsertAccessCodes(context.Background(), batch); err != nil {
		t.Fatalf("InsertAccessCodes() failed: %v", err)
	}
}

// createTestMemorial inserts an inactive memorial in its own transaction.
func createTestMemorial(t *testing.T, s *Store, id, code, reference string) domain.Memorial {
	t.Helper()
	m := createTestMemorialValue(id, code, reference)
	err := s.InTx(context.Background(), func(tx *Tx) error {
		return tx.InsertMemorial(context.Background(), m)
	})
	if err != nil {
		t.Fatalf("InsertMemorial() failed: %v", err)
	}
	return m
}

// createTestMemorialValue builds an inactive memorial without storing it.
func createTestMemorialValue(id, code, reference string) domain.Memorial {
	return domain.Memorial{
		ID:               id,
		Name:             "Biscuit",
		AccessCode:       code,
		OwnerEmail:       "owner@example.com",
		PaymentReference: reference,
		CreatedAt:        testTime,
	}
}

// createTestOrder builds a paid order for reference with a fixed snapshot.
func createTestOrder(reference, memorialID string) domain.Order {
	id := domain.OrderID(reference)
	return domain.Order{
		ID:               id,
		OrderNumber:      domain.OrderNumber(id),
		PaymentReference: reference,
		CustomerEmail:    "owner@example.com",
		CustomerName:     "Sam Rivera",
		Shipping:         domain.Address{Name: "Sam Rivera", Line1: "1 Elm St", City: "Portland", PostalCode: "97201", Country: "US"},
		Items: []domain.LineItem{{
			SKU: "TAG-STD", Name: "Memorial tag", Quantity: 1, UnitAmount: 2500,
			Personalization: map[string]string{"pet_name": "Biscuit"},
		}},
		Totals:     domain.Totals{Subtotal: 2500, Shipping: 500, Tax: 0, Total: 3000, Currency: "usd"},
		Status:     domain.OrderPaid,
		MemorialID: memorialID,
		CreatedAt:  testTime,
		UpdatedAt:  testTime,
	}
}
