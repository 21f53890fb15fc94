// Package store provides SQLite-backed durable storage for the fulfillment
// core: the code pool, the memorial registry, the order ledger, and the cart
// rows cleared after checkout.
//
// # Critical Patterns
//
// Idempotency by constraint:
//   - UNIQUE(orders.external_payment_reference) is the single source of truth
//     for "this payment was fulfilled". InsertOrder reports ErrConflict when a
//     concurrent caller inserted first.
//   - UNIQUE(memorials.payment_reference) keeps crash-resumed fulfillment from
//     creating a second memorial for the same payment.
//   - UNIQUE(access_codes.order_id) keeps a code from being bound to two orders.
//
// Compare-and-swap transitions:
//   - Every code and order state change is an UPDATE guarded by the expected
//     prior state. Callers inspect the returned bool (rows affected) instead of
//     reading and then writing.
//
// Immutability:
//   - A trigger rejects updates to an order's items and totals.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Timestamps are stored as UTC unix milliseconds.
package store
