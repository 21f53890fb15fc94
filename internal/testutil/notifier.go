package testutil

import (
	"context"
	"sync"

	"github.com/roach88/evertag/internal/domain"
)

// RecordingNotifier captures every notification it is asked to send.
// Set Err to simulate a failing mail provider.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Fulfillment
	Err  error
}

// Notify records f and returns Err.
func (n *RecordingNotifier) Notify(ctx context.Context, f domain.Fulfillment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, f)
	return n.Err
}

// Sent returns a copy of the recorded notifications.
func (n *RecordingNotifier) Sent() []domain.Fulfillment {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Fulfillment(nil), n.sent...)
}
