package testutil

import (
	"context"
	"sync"

	"github.com/roach88/evertag/internal/domain"
)

// FakeGateway is an in-memory payment gateway for tests.
// Unknown references report an open, unpaid session.
type FakeGateway struct {
	mu       sync.Mutex
	sessions map[string]domain.PaymentDetails
	errs     map[string]error
	calls    map[string]int
}

// NewFakeGateway creates an empty gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		sessions: map[string]domain.PaymentDetails{},
		errs:     map[string]error{},
		calls:    map[string]int{},
	}
}

// Complete registers a paid session for details.Reference.
func (g *FakeGateway) Complete(details domain.PaymentDetails) {
	details.Status = domain.SessionComplete
	details.PaymentStatus = domain.PaymentPaid
	g.Set(details)
}

// Set registers a session as-is.
func (g *FakeGateway) Set(details domain.PaymentDetails) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[details.Reference] = details
}

// Fail makes VerifyPayment return err for reference.
func (g *FakeGateway) Fail(reference string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[reference] = err
}

// Calls returns how often reference was verified.
func (g *FakeGateway) Calls(reference string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[reference]
}

// VerifyPayment returns the registered session for reference.
func (g *FakeGateway) VerifyPayment(ctx context.Context, reference string) (domain.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[reference]++
	if err := g.errs[reference]; err != nil {
		return domain.PaymentDetails{}, err
	}
	if details, ok := g.sessions[reference]; ok {
		return details, nil
	}
	return domain.PaymentDetails{Reference: reference, Status: "open", PaymentStatus: "unpaid"}, nil
}

// PaidSession builds completed payment details with one personalized tag.
func PaidSession(reference, email, petName string) domain.PaymentDetails {
	return domain.PaymentDetails{
		Reference:     reference,
		Status:        domain.SessionComplete,
		PaymentStatus: domain.PaymentPaid,
		CustomerEmail: email,
		CustomerName:  "Sam Rivera",
		Shipping: domain.Address{
			Name: "Sam Rivera", Line1: "1 Elm St", City: "Portland",
			State: "OR", PostalCode: "97201", Country: "US",
		},
		Items: []domain.LineItem{{
			SKU:             "TAG-STD",
			Name:            "Memorial tag",
			Quantity:        1,
			UnitAmount:      2500,
			Personalization: map[string]string{"pet_name": petName},
		}},
		Totals: domain.Totals{Subtotal: 2500, Shipping: 500, Tax: 0, Total: 3000, Currency: "usd"},
	}
}
