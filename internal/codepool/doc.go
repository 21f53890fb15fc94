// Package codepool allocates pre-printed access codes.
//
// Every state change is a conditional update against the store: a claim
// only succeeds if the row is still available at write time, and an
// activation only succeeds if the code is still reserved for the same
// memorial. The pool never reads a row and then writes it unconditionally.
//
// When no pooled code can be claimed within the attempt budget, Claim
// degrades to a synthetic code that was never printed. The purchase still
// completes; the synthetic flag marks it for manual follow-up.
package codepool
