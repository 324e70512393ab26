package ledger

import "context"

type Repository interface {
	Record(ctx context.Context, e *Entry) error
	ListFailed(ctx context.Context, limit, offset int) ([]Entry, error)
	ListByBooking(ctx context.Context, bookingID string) ([]Entry, error)
	Resolve(ctx context.Context, id string, gatewayRef, resolvedBy string) error
}
