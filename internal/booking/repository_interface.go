package booking

import "context"

// Repository is the booking store. Every multi-record write is a single
// transaction and is conditional on the state the orchestrator read, so a
// replayed or concurrent write fails with ErrStateChanged instead of applying
// twice.
type Repository interface {
	GetBookingByID(ctx context.Context, id string) (*Booking, error)
	CommitCancellation(ctx context.Context, c Cancellation) error
	CommitTransfer(ctx context.Context, t Transfer) error
	MarkBalancePaid(ctx context.Context, p BalancePayment) error
}
