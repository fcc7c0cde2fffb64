// Package store keeps payment records keyed by the gateway's
// CheckoutRequestID. Both the server-side status poller and the callback
// handler write here; the browser-facing status endpoint only reads.
package store

import (
	"context"
	"errors"

	"mpesa-checkout-service/models"
)

// ErrNotFound is returned when no record exists for a correlation id.
var ErrNotFound = errors.New("payment record not found")

// Store is the shared payment record store.
type Store interface {
	// Put creates or replaces the record for rec.CheckoutRequestID.
	Put(ctx context.Context, rec models.PaymentRecord) error
	// Get returns the record for the given CheckoutRequestID.
	Get(ctx context.Context, checkoutRequestID string) (models.PaymentRecord, error)
	// SetOutcome records a terminal (or refreshed pending) status. Terminal
	// statuses are sticky: the only permitted overwrite of a terminal record
	// is a success reported by the gateway callback, which is authoritative
	// over a poll-side timeout or failure.
	SetOutcome(ctx context.Context, checkoutRequestID string, status models.PaymentStatus, desc, receipt string) error
}

// allowTransition implements the stickiness rule shared by both backends.
func allowTransition(old, next models.PaymentStatus) bool {
	if !old.Terminal() {
		return true
	}
	return old != models.StatusSuccess && next == models.StatusSuccess
}
