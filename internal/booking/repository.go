package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mergimg0/ttnts121-sub002/internal/db"
	"github.com/mergimg0/ttnts121-sub002/internal/session"
)

const bookingColumns = `id, reference, contact_email, contact_name, child_name, session_id, status, payment_status,
	amount, deposit_paid, balance_due, refunded_amount, charge_id,
	cancelled_at, cancelled_by, cancellation_reason, refund_amount, refund_percentage, refund_id, refund_explanation,
	transferred_from, transferred_at, transfer_price_difference, transfer_refund_amount, transfer_refund_id,
	balance_paid_at, created_at, updated_at`

const chargeColumns = `charge_id, kind, amount, refunded, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetBookingByID(ctx context.Context, id string) (*Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}

	err = r.db.SelectContext(ctx, &b.Charges,
		`SELECT `+chargeColumns+` FROM booking_charges WHERE booking_id = $1 ORDER BY created_at, charge_id`, id)
	if err != nil {
		return nil, fmt.Errorf("load charges for %s: %w", id, err)
	}
	return &b, nil
}

func (r *repository) CommitCancellation(ctx context.Context, c Cancellation) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = 'cancelled',
				payment_status = $2,
				refunded_amount = refunded_amount + $3,
				refund_amount = $3,
				refund_percentage = $4,
				refund_id = $5,
				refund_explanation = $6,
				cancelled_at = $7,
				cancelled_by = $8,
				cancellation_reason = $9,
				updated_at = NOW()
			WHERE id = $1 AND status = 'confirmed' AND payment_status = $10
		`, c.BookingID, c.PaymentStatus, c.RefundedAmount, c.RefundPercentage, c.RefundID, c.Explanation,
			c.CancelledAt, c.CancelledBy, nullString(c.Reason), c.ExpectedPaymentStatus)
		if err := expectOne(res, err, ErrStateChanged); err != nil {
			return err
		}
		if err := applyChargeRefunds(ctx, tx, c.BookingID, c.ChargeRefunds); err != nil {
			return err
		}

		return releaseSeat(ctx, tx, c.SessionID)
	})
}

func (r *repository) CommitTransfer(ctx context.Context, t Transfer) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET session_id = $2,
				transferred_from = $3,
				transferred_at = $4,
				transfer_price_difference = $5,
				amount = $6,
				transfer_refund_amount = $7,
				transfer_refund_id = $8,
				updated_at = NOW()
			WHERE id = $1 AND session_id = $3 AND status = 'confirmed' AND payment_status = 'paid'
		`, t.BookingID, t.ToSessionID, t.FromSessionID, t.At, t.PriceDifference, t.NewAmount,
			nullAmount(t.RefundedAmount), t.RefundID)
		if err := expectOne(res, err, ErrStateChanged); err != nil {
			return err
		}

		// The seat check happens here and not only in the orchestrator: two
		// transfers can race for the last place.
		res, err = tx.ExecContext(ctx, `
			UPDATE sessions
			SET enrolled = enrolled + 1, updated_at = NOW()
			WHERE id = $1 AND enrolled < capacity AND NOT is_force_closed AND start_date > $2
		`, t.ToSessionID, t.At)
		if err := expectOne(res, err, ErrSeatUnavailable); err != nil {
			return err
		}

		if err := releaseSeat(ctx, tx, t.FromSessionID); err != nil {
			return err
		}
		if err := applyChargeRefunds(ctx, tx, t.BookingID, t.ChargeRefunds); err != nil {
			return err
		}
		return insertCharges(ctx, tx, t.BookingID, t.NewCharges)
	})
}

func (r *repository) MarkBalancePaid(ctx context.Context, p BalancePayment) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET payment_status = 'paid', balance_due = 0, balance_paid_at = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'confirmed' AND payment_status = 'deposit_paid' AND balance_paid_at IS NULL
		`, p.BookingID, p.At)
		if err := expectOne(res, err, ErrStateChanged); err != nil {
			return err
		}
		return insertCharges(ctx, tx, p.BookingID, p.Charges)
	})
}

func insertCharges(ctx context.Context, tx *sqlx.Tx, bookingID string, charges []Charge) error {
	for _, c := range charges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO booking_charges (booking_id, charge_id, kind, amount, refunded, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (booking_id, charge_id) DO NOTHING
		`, bookingID, c.ChargeID, c.Kind, c.Amount, c.Refunded, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("record charge %s: %w", c.ChargeID, err)
		}
	}
	return nil
}

// applyChargeRefunds moves refunded money onto the stored charges. A booking
// still paid by its checkout charge alone has no rows, which is fine.
func applyChargeRefunds(ctx context.Context, tx *sqlx.Tx, bookingID string, refunds []ChargeRefund) error {
	for _, cr := range refunds {
		_, err := tx.ExecContext(ctx, `
			UPDATE booking_charges SET refunded = refunded + $3
			WHERE booking_id = $1 AND charge_id = $2
		`, bookingID, cr.ChargeID, cr.Amount)
		if err != nil {
			return fmt.Errorf("apply refund to charge %s: %w", cr.ChargeID, err)
		}
	}
	return nil
}

func releaseSeat(ctx context.Context, tx *sqlx.Tx, sessionID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET enrolled = GREATEST(enrolled - 1, 0), updated_at = NOW()
		WHERE id = $1
	`, sessionID)
	if err := expectOne(res, err, session.ErrSessionNotFound); err != nil {
		return fmt.Errorf("release seat on %s: %w", sessionID, err)
	}
	return nil
}

func expectOne(res sql.Result, err error, none error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}

func nullAmount(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
