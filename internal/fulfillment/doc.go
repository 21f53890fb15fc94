// Package fulfillment turns a confirmed payment into exactly one Order,
// one Memorial and one bound AccessCode.
//
// The orchestrator is re-entrant at every step boundary. It never keeps
// progress in memory: each call re-derives its resume point from what the
// store already holds, so a crashed or timed-out call is finished by
// calling Fulfill again with the same reference, or Repair with the order
// ID.
//
// # Steps
//
//  1. Order linked to a memorial: return it, no side effects.
//  2. Order without memorial: resume at step 4 from the stored snapshot.
//  3. No order: confirm the payment with the gateway.
//  4. Claim a code (degrading to a synthetic one when the pool is empty).
//  5. Create the memorial and bind the code, in the same transaction.
//  6. Insert the order. The UNIQUE payment reference decides the race;
//     losers reconcile against the winner.
//  7. Notify the customer, best-effort.
//  8. Clear the originating cart, best-effort.
//
// # Uniqueness
//
// The order ID is derived from the payment reference, and memorials are
// unique per payment reference. A reservation that loses either race rolls
// back, which returns its claimed code to the pool in the same step.
package fulfillment
