// Package harness runs end-to-end fulfillment scenarios.
//
// A scenario seeds a code pool and a set of gateway payments, drives the
// real orchestrator and activation handler through a list of steps, then
// checks assertions against the final store state. Every run uses a fresh
// in-memory database, a fixed clock and a fake gateway, so the resulting
// trace is reproducible and can be compared against a golden snapshot.
//
// # Scenario Format
//
//	name: crash_before_link
//	description: "What this scenario validates"
//	pool: [A1, A2]
//	payments:
//	  - reference: pay_4
//	    email: sam@example.com
//	    pet_name: Biscuit
//	steps:
//	  - op: fulfill
//	    references: [pay_4]
//	    faults: { order_insert: 1 }
//	    expect: ERROR
//	  - op: fulfill
//	    references: [pay_4]
//	assertions:
//	  - type: count
//	    entity: memorials
//	    count: 1
//	  - type: fulfilled
//	    reference: pay_4
//
// # Steps
//
//   - fulfill: fulfill every reference, concurrency times each, all at once
//   - repair: repair the order of each reference
//   - scan: scan a code, or the code bound to a reference's memorial
//   - pay: settle a payment that was created unpaid
//
// expect is "ok" (the default) or the error code every call must return.
// Errors without a code report as ERROR.
//
// # Assertion Types
//
//   - count: number of orders, memorials, codes or notifications
//   - fulfilled: the reference has a linked order, memorial and bound code
//   - unlinked: the reference has an order without a memorial
//   - distinct_codes: no code is shared between memorials
//   - memorial: activation and degraded flags of a reference's memorial
//   - code: status of one code
package harness
