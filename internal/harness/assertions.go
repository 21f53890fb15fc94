package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/store"
)

// AssertionContext provides what assertions inspect.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	State State
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all assertions held.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertCount:
		return assertCount(actx, a)
	case AssertFulfilled:
		return assertFulfilled(actx, a)
	case AssertUnlinked:
		return assertUnlinked(actx, a)
	case AssertDistinctCodes:
		return assertDistinctCodes(actx)
	case AssertMemorial:
		return assertMemorial(actx, a)
	case AssertCode:
		return assertCode(actx, a)
	}
	return fmt.Errorf("unknown assertion type: %s", a.Type)
}

// assertCount counts entities in the final state.
func assertCount(actx *AssertionContext, a Assertion) error {
	var got int
	switch a.Entity {
	case "orders":
		for _, o := range actx.State.Orders {
			if a.Status == "" || o.Status == a.Status {
				got++
			}
		}
	case "memorials":
		got = len(actx.State.Memorials)
	case "notifications":
		got = actx.State.Notifications
	case "codes":
		codes, err := actx.Store.ListAccessCodes(actx.Ctx, store.CodeFilter{
			Status:    domain.CodeStatus(a.Status),
			Synthetic: a.Synthetic,
		})
		if err != nil {
			return fmt.Errorf("list codes: %w", err)
		}
		got = len(codes)
	default:
		return fmt.Errorf("unknown entity: %s", a.Entity)
	}

	if got != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d %s%s", a.Count, a.Entity, countQualifier(a)),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func countQualifier(a Assertion) string {
	var parts []string
	if a.Status != "" {
		parts = append(parts, "status="+a.Status)
	}
	if a.Synthetic != nil {
		parts = append(parts, fmt.Sprintf("synthetic=%t", *a.Synthetic))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// assertFulfilled checks the complete triad for a reference: a linked
// order, its memorial, and a code bound to both.
func assertFulfilled(actx *AssertionContext, a Assertion) error {
	fail := func(actual string) error {
		return &AssertionError{
			Type:     AssertFulfilled,
			Expected: "order, memorial and code linked for " + a.Reference,
			Actual:   actual,
		}
	}

	order, err := actx.Store.GetOrderByReference(actx.Ctx, a.Reference)
	if errors.Is(err, store.ErrNotFound) {
		return fail("no order")
	}
	if err != nil {
		return err
	}
	if !order.Linked() {
		return fail("order has no memorial")
	}

	m, err := actx.Store.GetMemorial(actx.Ctx, order.MemorialID)
	if errors.Is(err, store.ErrNotFound) {
		return fail("order points at missing memorial " + order.MemorialID)
	}
	if err != nil {
		return err
	}
	if m.PaymentReference != a.Reference {
		return fail("memorial belongs to " + m.PaymentReference)
	}

	c, err := actx.Store.GetAccessCodeByMemorial(actx.Ctx, m.ID)
	if errors.Is(err, store.ErrNotFound) {
		return fail("memorial has no code")
	}
	if err != nil {
		return err
	}
	if c.Code != m.AccessCode {
		return fail(fmt.Sprintf("memorial shows %s but %s is bound to it", m.AccessCode, c.Code))
	}
	if c.OrderID != order.ID {
		return fail(fmt.Sprintf("code %s is bound to order %s", c.Code, c.OrderID))
	}
	if c.Status == domain.CodeAvailable {
		return fail("code " + c.Code + " is still available")
	}
	return nil
}

// assertUnlinked checks that the reference has an order without memorial.
func assertUnlinked(actx *AssertionContext, a Assertion) error {
	for _, o := range actx.State.Orders {
		if o.Reference != a.Reference {
			continue
		}
		if o.Linked {
			return &AssertionError{Type: AssertUnlinked, Expected: a.Reference + " without memorial", Actual: "linked"}
		}
		return nil
	}
	return &AssertionError{Type: AssertUnlinked, Expected: a.Reference + " without memorial", Actual: "no order"}
}

// assertDistinctCodes checks that no code is shared between memorials.
func assertDistinctCodes(actx *AssertionContext) error {
	memorials, err := actx.Store.ListMemorials(actx.Ctx)
	if err != nil {
		return fmt.Errorf("list memorials: %w", err)
	}
	owners := make(map[string]string, len(memorials))
	for _, m := range memorials {
		if m.AccessCode == "" {
			continue
		}
		if prev, ok := owners[m.AccessCode]; ok {
			return &AssertionError{
				Type:     AssertDistinctCodes,
				Expected: "one memorial per code",
				Actual:   fmt.Sprintf("%s held by %s and %s", m.AccessCode, prev, m.PaymentReference),
			}
		}
		owners[m.AccessCode] = m.PaymentReference
	}
	return nil
}

func assertMemorial(actx *AssertionContext, a Assertion) error {
	for _, m := range actx.State.Memorials {
		if m.Reference != a.Reference {
			continue
		}
		if a.Activated != nil && m.Activated != *a.Activated {
			return &AssertionError{
				Type:     AssertMemorial,
				Expected: fmt.Sprintf("%s activated=%t", a.Reference, *a.Activated),
				Actual:   fmt.Sprintf("activated=%t", m.Activated),
			}
		}
		if a.Degraded != nil && m.Degraded != *a.Degraded {
			return &AssertionError{
				Type:     AssertMemorial,
				Expected: fmt.Sprintf("%s degraded=%t", a.Reference, *a.Degraded),
				Actual:   fmt.Sprintf("degraded=%t", m.Degraded),
			}
		}
		return nil
	}
	return &AssertionError{Type: AssertMemorial, Expected: "memorial for " + a.Reference, Actual: "none"}
}

func assertCode(actx *AssertionContext, a Assertion) error {
	c, err := actx.Store.GetAccessCode(actx.Ctx, a.Code)
	if errors.Is(err, store.ErrNotFound) {
		return &AssertionError{Type: AssertCode, Expected: a.Code + " " + a.Status, Actual: "no such code"}
	}
	if err != nil {
		return err
	}
	if string(c.Status) != a.Status {
		return &AssertionError{Type: AssertCode, Expected: a.Code + " " + a.Status, Actual: string(c.Status)}
	}
	return nil
}
