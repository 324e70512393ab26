package booking

import (
	"context"
	"errors"
	"time"

	"github.com/mergimg0/ttnts121-sub002/internal/effect"
	"github.com/mergimg0/ttnts121-sub002/internal/email"
	"github.com/mergimg0/ttnts121-sub002/internal/events"
	"github.com/mergimg0/ttnts121-sub002/internal/ledger"
	"github.com/mergimg0/ttnts121-sub002/internal/lock"
	"github.com/mergimg0/ttnts121-sub002/internal/logger"
	"github.com/mergimg0/ttnts121-sub002/internal/metrics"
	"github.com/mergimg0/ttnts121-sub002/internal/obs"
	"github.com/mergimg0/ttnts121-sub002/internal/payment"
	"github.com/mergimg0/ttnts121-sub002/internal/refund"
	"github.com/mergimg0/ttnts121-sub002/internal/session"
)

// Notifier sends customer emails. Its errors are logged and never change an
// operation's outcome.
type Notifier interface {
	SendCancellationConfirmation(ctx context.Context, n email.CancellationNotice) error
	SendTransferConfirmation(ctx context.Context, n email.TransferNotice) error
	SendBalanceRequest(ctx context.Context, n email.BalanceNotice) error
	SendRefundAlert(ctx context.Context, a email.RefundAlert) error
}

// Deps are the collaborators shared by the orchestrators.
type Deps struct {
	Bookings Repository
	Sessions session.Repository
	Gateway  payment.Gateway
	Ledger   ledger.Repository
	Notifier Notifier
	Events   events.Publisher
	Locker   lock.Locker

	// Policy applies to sessions without their own refund rules.
	Policy     refund.Policy
	SuccessURL string
	CancelURL  string
	Now        func() time.Time

	// OpsEmail receives an alert for every refund that fails. Empty disables it.
	OpsEmail string
}

type core struct {
	Deps
}

func newCore(d Deps) core {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return core{Deps: d}
}

func (c *core) lockBooking(ctx context.Context, bookingID string) (func(), error) {
	release, err := c.Locker.Acquire(ctx, bookingID)
	if errors.Is(err, lock.ErrHeld) {
		return nil, newError(KindInvalidState, "another change to this booking is in progress", err)
	}
	if err != nil {
		// Without the lock two requests could both refund, so fail closed.
		logger.Error("booking lock unavailable", "booking_id", bookingID, "error", err.Error())
		return nil, newError(KindExternalService, "booking is temporarily unavailable, please retry", err)
	}
	return release, nil
}

func (c *core) loadBooking(ctx context.Context, id string) (*Booking, error) {
	b, err := c.Bookings.GetBookingByID(ctx, id)
	if errors.Is(err, ErrBookingNotFound) {
		return nil, newError(KindNotFound, "booking not found", err)
	}
	if err != nil {
		return nil, newError(KindPersistence, "failed to load booking", err)
	}
	return b, nil
}

func (c *core) loadOwnedBooking(ctx context.Context, callerEmail, id string) (*Booking, error) {
	b, err := c.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.OwnedBy(callerEmail) {
		return nil, newError(KindUnauthorized, "booking belongs to another account", nil)
	}
	return b, nil
}

func (c *core) loadSession(ctx context.Context, id string) (*session.Session, error) {
	s, err := c.Sessions.GetSessionByID(ctx, id)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, newError(KindNotFound, "session not found", err)
	}
	if err != nil {
		return nil, newError(KindPersistence, "failed to load session", err)
	}
	return s, nil
}

func (c *core) policyFor(s *session.Session) (refund.Policy, error) {
	p, err := s.Policy(c.Policy)
	if err != nil {
		logger.Error("invalid refund policy", "session_id", s.ID, "error", err.Error())
		return refund.Policy{}, newError(KindConfiguration, "refund policy is misconfigured", err)
	}
	return p, nil
}

// commitErr maps a failed write to the caller-facing error.
func commitErr(err error) error {
	switch {
	case errors.Is(err, ErrStateChanged):
		return newError(KindInvalidState, "booking was changed by another request", err)
	case errors.Is(err, ErrSeatUnavailable):
		return newError(KindUnavailable, "the selected session is no longer available", err)
	default:
		return newError(KindPersistence, "failed to save booking", err)
	}
}

type refundAttempt struct {
	BookingID string
	Charges   []Charge
	Amount    int64
	Context   string
	Reason    string
	Metadata  payment.Metadata
}

type refundOutcome struct {
	// Amount is what the gateway actually refunded, 0 on failure.
	Amount int64
	// ID is the first gateway refund; the ledger has every one.
	ID      *string
	Failed  bool
	Refunds []ChargeRefund
}

var (
	errNoCharge         = errors.New("booking has no charge reference")
	errChargesExhausted = errors.New("refund is larger than what the booking's charges have left")
)

// allocateRefund spreads amount over charges, newest first, never asking a
// charge for more than it has left. uncovered is what no charge can take.
func allocateRefund(charges []Charge, amount int64) (parts []ChargeRefund, uncovered int64) {
	uncovered = amount
	for i := len(charges) - 1; i >= 0 && uncovered > 0; i-- {
		take := charges[i].Remaining()
		if take <= 0 {
			continue
		}
		if take > uncovered {
			take = uncovered
		}
		parts = append(parts, ChargeRefund{ChargeID: charges[i].ChargeID, Amount: take})
		uncovered -= take
	}
	return parts, uncovered
}

// issueRefund refunds across the booking's charges and records every attempt
// in the ledger. Failures are absorbed: the caller carries on with what was
// realized and the failed entries stay open for manual reconciliation.
func (c *core) issueRefund(ctx context.Context, a refundAttempt) refundOutcome {
	if a.Amount <= 0 {
		return refundOutcome{}
	}

	ctx, end := obs.Start(ctx, "payment.refund")
	var spanErr error
	defer func() { end(&spanErr) }()

	parts, uncovered := allocateRefund(a.Charges, a.Amount)
	out := refundOutcome{}
	for _, p := range parts {
		got, err := c.refundCharge(ctx, a, p)
		if err != nil {
			out.Failed = true
			spanErr = err
			continue
		}
		out.Amount += got.Amount
		out.Refunds = append(out.Refunds, got)
		if out.ID == nil {
			id := got.RefundID
			out.ID = &id
		}
	}

	if uncovered > 0 {
		cause := errChargesExhausted
		if len(a.Charges) == 0 {
			cause = errNoCharge
			logger.Warn("refund due but booking has no charge", "booking_id", a.BookingID, "amount", uncovered)
		}
		c.recordRefund(ctx, a, "", uncovered, effect.Result{Name: "payment.refund", Err: cause}, nil)
		out.Failed = true
		spanErr = cause
	}
	return out
}

// refundCharge asks the gateway for one charge's share of a refund.
func (c *core) refundCharge(ctx context.Context, a refundAttempt, p ChargeRefund) (ChargeRefund, error) {
	res := effect.RunValue(ctx, "payment.refund", func(ctx context.Context) (*payment.Refund, error) {
		return c.Gateway.Refund(ctx, payment.RefundRequest{
			ChargeID: p.ChargeID,
			Amount:   p.Amount,
			Reason:   a.Reason,
			Metadata: a.Metadata,
		})
	}, "booking_id", a.BookingID, "charge_id", p.ChargeID, "amount", p.Amount, "context", a.Context)

	c.recordRefund(ctx, a, p.ChargeID, p.Amount, res.Result, res.Value)
	if res.Failed() {
		return ChargeRefund{}, res.Err
	}

	got := ChargeRefund{ChargeID: p.ChargeID, Amount: p.Amount}
	if res.Value != nil {
		got.RefundID = res.Value.ID
		if v := res.Value.Amount; v > 0 && v < p.Amount {
			got.Amount = v
		}
	}
	return got, nil
}

// recordRefund writes the ledger entry for one attempt and raises the
// failure event and alert when it did not go through.
func (c *core) recordRefund(ctx context.Context, a refundAttempt, chargeID string, amount int64, res effect.Result, r *payment.Refund) {
	metrics.RecordRefund(a.Context, res.OK, amount)

	entry := ledger.Entry{
		BookingID: a.BookingID,
		Context:   a.Context,
		ChargeID:  chargeID,
		Amount:    amount,
		Outcome:   ledger.OutcomeSucceeded,
	}
	if res.Failed() {
		msg := res.ErrorText()
		entry.Outcome = ledger.OutcomeFailed
		entry.Error = &msg
	} else if r != nil {
		id := r.ID
		entry.GatewayRef = &id
	}

	effect.Run(ctx, "ledger.record", func(ctx context.Context) error {
		return c.Ledger.Record(ctx, &entry)
	}, "booking_id", a.BookingID, "amount", amount, "outcome", entry.Outcome)

	if !res.Failed() {
		return
	}
	c.publish(ctx, events.RefundFailed, events.RefundFailedData{
		BookingID:     a.BookingID,
		LedgerEntryID: entry.ID,
		Context:       a.Context,
		ChargeID:      chargeID,
		Amount:        amount,
		Error:         res.ErrorText(),
	})
	if c.OpsEmail != "" {
		c.notify(ctx, "refund_alert", func(ctx context.Context) error {
			return c.Notifier.SendRefundAlert(ctx, email.RefundAlert{
				To:        c.OpsEmail,
				BookingID: a.BookingID,
				Context:   a.Context,
				ChargeID:  chargeID,
				Amount:    amount,
				Error:     res.ErrorText(),
			})
		}, "booking_id", a.BookingID)
	}
}

func (c *core) publish(ctx context.Context, event string, data interface{}) {
	effect.Run(ctx, "event."+event, func(ctx context.Context) error {
		return c.Events.Publish(ctx, event, data)
	})
}

func (c *core) notify(ctx context.Context, name string, fn func(context.Context) error, attrs ...any) {
	effect.Run(ctx, "email."+name, fn, attrs...)
}

// swap moves b from old to target in one write and sends the post-transfer
// notice and event. refunded is the downgrade refund, if any, and added the
// charges that join the booking with the move.
func (c *core) swap(ctx context.Context, b *Booking, from, to *session.Session, delta, newAmount int64, refunded refundOutcome, added []Charge, deferred bool) error {
	now := c.Now()
	err := c.Bookings.CommitTransfer(ctx, Transfer{
		BookingID:       b.ID,
		FromSessionID:   from.ID,
		ToSessionID:     to.ID,
		NewAmount:       newAmount,
		PriceDifference: delta,
		At:              now,
		RefundedAmount:  refunded.Amount,
		RefundID:        refunded.ID,
		ChargeRefunds:   refunded.Refunds,
		NewCharges:      added,
	})
	if err != nil {
		return err
	}

	logger.Info("booking transferred",
		"booking_id", b.ID,
		"from_session", from.ID,
		"to_session", to.ID,
		"price_difference", delta,
		"deferred", deferred,
	)

	c.notify(ctx, "transfer", func(ctx context.Context) error {
		return c.Notifier.SendTransferConfirmation(ctx, email.TransferNotice{
			To:              b.ContactEmail,
			ParentName:      b.ContactName,
			ChildName:       b.ChildName,
			Reference:       b.Reference,
			FromSession:     from.Name,
			FromStart:       from.StartDate,
			ToSession:       to.Name,
			ToStart:         to.StartDate,
			PriceDifference: delta,
			RefundAmount:    refunded.Amount,
		})
	}, "booking_id", b.ID)

	c.publish(ctx, events.BookingTransferred, events.BookingTransferredData{
		BookingID:       b.ID,
		Reference:       b.Reference,
		FromSessionID:   from.ID,
		ToSessionID:     to.ID,
		PriceDifference: delta,
		RefundAmount:    refunded.Amount,
		Deferred:        deferred,
	})
	return nil
}
