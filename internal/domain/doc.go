// Package domain defines the entities of the memorial tag fulfillment core:
// access codes, memorials, orders, and the payment details reported by the
// gateway.
//
// # Invariants
//
//   - AccessCode.Status only advances available → reserved → activated.
//   - AccessCode.MemorialID and AccessCode.OrderID are empty iff the code is available.
//   - Memorial.IsActivated implies the referenced code is activated.
//   - Order.PaymentReference identifies at most one order. OrderID derives
//     from it, so every caller computes the same order identity.
//
// IDs derived from external references use domain-separated SHA-256 over
// canonical JSON (see hash.go and canonical.go).
package domain
