package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrEntryNotFound = errors.New("open refund entry not found")
	ErrInvalidEntry  = errors.New("refund entry needs a booking, a context and a non-negative amount")
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Record(ctx context.Context, e *Entry) error {
	if e.BookingID == "" || e.Context == "" || e.Amount < 0 {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	return r.db.QueryRowxContext(ctx,
		`INSERT INTO refund_ledger (id, booking_id, context, charge_id, amount, outcome, gateway_ref, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		e.ID, e.BookingID, e.Context, e.ChargeID, e.Amount, e.Outcome, e.GatewayRef, e.Error,
	).Scan(&e.CreatedAt)
}

func (r *repository) ListFailed(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	entries := []Entry{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, booking_id, context, charge_id, amount, outcome, gateway_ref, error, resolved_at, resolved_by, created_at
		FROM refund_ledger
		WHERE outcome = 'failed' AND resolved_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListByBooking(ctx context.Context, bookingID string) ([]Entry, error) {
	entries := []Entry{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, booking_id, context, charge_id, amount, outcome, gateway_ref, error, resolved_at, resolved_by, created_at
		FROM refund_ledger
		WHERE booking_id = $1
		ORDER BY created_at ASC
	`, bookingID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) Resolve(ctx context.Context, id string, gatewayRef, resolvedBy string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refund_ledger
		 SET resolved_at = NOW(), resolved_by = $2, gateway_ref = $3
		 WHERE id = $1 AND outcome = 'failed' AND resolved_at IS NULL`,
		id, resolvedBy, gatewayRef,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}
