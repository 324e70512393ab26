package booking

import (
	"context"
	"time"

	"github.com/mergimg0/ttnts121-sub002/internal/email"
	"github.com/mergimg0/ttnts121-sub002/internal/events"
	"github.com/mergimg0/ttnts121-sub002/internal/ledger"
	"github.com/mergimg0/ttnts121-sub002/internal/logger"
	"github.com/mergimg0/ttnts121-sub002/internal/metrics"
	"github.com/mergimg0/ttnts121-sub002/internal/obs"
	"github.com/mergimg0/ttnts121-sub002/internal/payment"
	"github.com/mergimg0/ttnts121-sub002/internal/refund"
	"github.com/mergimg0/ttnts121-sub002/internal/session"
)

type CancellationService interface {
	// Preview reports what cancelling now would refund. It never writes.
	Preview(ctx context.Context, callerEmail, bookingID string) (*CancellationPreview, error)
	Cancel(ctx context.Context, callerEmail, bookingID, reason string) (*CancellationResult, error)
}

type cancellationService struct {
	core
}

func NewCancellationService(d Deps) CancellationService {
	return &cancellationService{core: newCore(d)}
}

// bookingBlocker returns why b cannot be cancelled, or "".
func bookingBlocker(b *Booking) string {
	switch {
	case b.Status == StatusCancelled:
		return "booking is already cancelled"
	case b.PaymentStatus == PaymentRefunded:
		return "booking has already been refunded"
	case b.Status != StatusConfirmed:
		return "only confirmed bookings can be cancelled"
	}
	return ""
}

func sessionBlocker(s *session.Session, now time.Time) string {
	if s.HasStarted(now) {
		return "session has already started"
	}
	return ""
}

func (s *cancellationService) Preview(ctx context.Context, callerEmail, bookingID string) (*CancellationPreview, error) {
	b, err := s.loadOwnedBooking(ctx, callerEmail, bookingID)
	if err != nil {
		return nil, err
	}
	sess, err := s.loadSession(ctx, b.SessionID)
	if err != nil {
		return nil, err
	}
	policy, err := s.policyFor(sess)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	out := &CancellationPreview{
		BookingID:        b.ID,
		RefundableAmount: b.RefundableBase(),
		Policy:           policy,
	}

	if msg := bookingBlocker(b); msg != "" {
		out.NotAllowedReason = msg
		return out, nil
	}
	if msg := sessionBlocker(sess, now); msg != "" {
		out.NotAllowedReason = msg
		return out, nil
	}

	d, err := refund.Evaluate(out.RefundableAmount, sess.StartDate, now, policy)
	if err != nil {
		return nil, newError(KindConfiguration, "refund policy is misconfigured", err)
	}
	out.Allowed = true
	out.Decision = &d
	return out, nil
}

func (s *cancellationService) Cancel(ctx context.Context, callerEmail, bookingID, reason string) (_ *CancellationResult, err error) {
	ctx, end := obs.Start(ctx, "booking.cancel")
	defer func() { end(&err) }()

	release, err := s.lockBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	b, err := s.loadOwnedBooking(ctx, callerEmail, bookingID)
	if err != nil {
		return nil, err
	}
	if msg := bookingBlocker(b); msg != "" {
		return nil, newError(KindInvalidState, msg, nil)
	}

	sess, err := s.loadSession(ctx, b.SessionID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if msg := sessionBlocker(sess, now); msg != "" {
		return nil, newError(KindInvalidState, msg, nil)
	}

	policy, err := s.policyFor(sess)
	if err != nil {
		return nil, err
	}
	base := b.RefundableBase()
	decision, err := refund.Evaluate(base, sess.StartDate, now, policy)
	if err != nil {
		return nil, newError(KindConfiguration, "refund policy is misconfigured", err)
	}

	refunded := s.issueRefund(ctx, refundAttempt{
		BookingID: b.ID,
		Charges:   b.PaidCharges(),
		Amount:    decision.RefundAmount,
		Context:   ledger.ContextCancellation,
		Reason:    "requested_by_customer",
		Metadata: payment.Metadata{
			Type:      payment.TypeCancellation,
			BookingID: b.ID,
			Reason:    reason,
		},
	})

	paymentStatus := b.PaymentStatus
	percentage := 0
	switch {
	case refunded.Amount > 0 && refunded.Amount == base:
		paymentStatus = PaymentRefunded
		percentage = decision.RefundPercentage
	case refunded.Amount > 0:
		paymentStatus = PaymentPartiallyRefunded
		percentage = decision.RefundPercentage
	}

	err = s.Bookings.CommitCancellation(ctx, Cancellation{
		BookingID:             b.ID,
		SessionID:             b.SessionID,
		ExpectedPaymentStatus: b.PaymentStatus,
		PaymentStatus:         paymentStatus,
		RefundedAmount:        refunded.Amount,
		CancelledAt:           now,
		CancelledBy:           callerEmail,
		Reason:                reason,
		RefundPercentage:      percentage,
		RefundID:              refunded.ID,
		Explanation:           decision.Reason,
		ChargeRefunds:         refunded.Refunds,
	})
	if err != nil {
		if refunded.Amount > 0 {
			// Money has left and the booking still looks active. The ledger
			// entry is the trail for whoever reconciles this.
			logger.Error("refund issued but cancellation not saved",
				"booking_id", b.ID, "refund_id", *refunded.ID, "amount", refunded.Amount, "error", err.Error())
		}
		return nil, commitErr(err)
	}

	metrics.RecordCancellation(paymentStatus)
	logger.Info("booking cancelled",
		"booking_id", b.ID,
		"session_id", b.SessionID,
		"payment_status", paymentStatus,
		"refund_amount", refunded.Amount,
		"refund_pending", refunded.Failed,
	)

	s.notify(ctx, "cancellation", func(ctx context.Context) error {
		return s.Notifier.SendCancellationConfirmation(ctx, email.CancellationNotice{
			To:           b.ContactEmail,
			ParentName:   b.ContactName,
			ChildName:    b.ChildName,
			Reference:    b.Reference,
			SessionName:  sess.Name,
			SessionStart: sess.StartDate,
			RefundAmount: refundShown(decision.RefundAmount, refunded),
			Explanation:  decision.Reason,
			RefundFailed: refunded.Failed,
		})
	}, "booking_id", b.ID)

	s.publish(ctx, events.BookingCancelled, events.BookingCancelledData{
		BookingID:        b.ID,
		Reference:        b.Reference,
		SessionID:        b.SessionID,
		PaymentStatus:    paymentStatus,
		RefundAmount:     refunded.Amount,
		RefundPercentage: percentage,
		RefundPending:    refunded.Failed,
	})

	return &CancellationResult{
		BookingID:        b.ID,
		Status:           StatusCancelled,
		PaymentStatus:    paymentStatus,
		RefundAmount:     refunded.Amount,
		RefundPercentage: percentage,
		RefundID:         refunded.ID,
		Explanation:      decision.Reason,
		RefundPending:    refunded.Failed,
	}, nil
}

// refundShown is the amount the customer email talks about: what was paid
// back, or what is still owed when the gateway failed.
func refundShown(intended int64, o refundOutcome) int64 {
	if o.Failed {
		return intended
	}
	return o.Amount
}
