package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Domain prefixes for derived identity. The version suffix allows a future
// algorithm change without colliding with existing IDs.
const (
	DomainOrder    = "evertag/order/v1"
	DomainSnapshot = "evertag/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// OrderID derives the order identity from the gateway payment reference.
// Every trigger computes the same ID for the same reference, which lets a
// claimed code be bound to its order before the order row exists.
func OrderID(reference string) string {
	canonical, err := MarshalCanonical(map[string]any{"payment_reference": reference})
	if err != nil {
		// Only strings are marshaled; this cannot fail.
		panic(fmt.Sprintf("OrderID: %v", err))
	}
	return "ord_" + hashWithDomain(DomainOrder, canonical)[:32]
}

// OrderNumber returns the display number for an order ID.
// It is for humans only and never used as an idempotency key.
func OrderNumber(orderID string) string {
	raw := strings.TrimPrefix(orderID, "ord_")
	if len(raw) > 8 {
		raw = raw[:8]
	}
	return "ET-" + strings.ToUpper(raw)
}

// SnapshotHash fingerprints an item snapshot so operators can compare
// what the gateway reported with what the ledger stored.
func SnapshotHash(items []LineItem, totals Totals) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"items": ItemsDocument(items),
		"totals": map[string]any{
			"subtotal": totals.Subtotal,
			"shipping": totals.Shipping,
			"tax":      totals.Tax,
			"total":    totals.Total,
			"currency": totals.Currency,
		},
	})
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
