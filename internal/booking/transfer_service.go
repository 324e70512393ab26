package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/mergimg0/ttnts121-sub002/internal/email"
	"github.com/mergimg0/ttnts121-sub002/internal/ledger"
	"github.com/mergimg0/ttnts121-sub002/internal/logger"
	"github.com/mergimg0/ttnts121-sub002/internal/metrics"
	"github.com/mergimg0/ttnts121-sub002/internal/obs"
	"github.com/mergimg0/ttnts121-sub002/internal/payment"
	"github.com/mergimg0/ttnts121-sub002/internal/session"
)

type TransferService interface {
	Transfer(ctx context.Context, callerEmail, bookingID, targetSessionID string) (*TransferResult, error)
}

type transferService struct {
	core
}

func NewTransferService(d Deps) TransferService {
	return &transferService{core: newCore(d)}
}

func targetBlocker(s *session.Session, now time.Time) string {
	switch {
	case s.IsForceClosed:
		return "the selected session is closed"
	case s.Enrolled >= s.Capacity:
		return "the selected session is full"
	case s.HasStarted(now):
		return "the selected session has already started"
	}
	return ""
}

// Transfer moves a paid booking to another session. A dearer session needs
// the difference paid first, so it only returns a checkout; the move happens
// when that payment confirms. A cheaper one refunds the difference and moves
// straight away, whether or not the refund went through.
func (s *transferService) Transfer(ctx context.Context, callerEmail, bookingID, targetSessionID string) (_ *TransferResult, err error) {
	ctx, end := obs.Start(ctx, "booking.transfer")
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
	switch {
	case b.Status != StatusConfirmed:
		return nil, newError(KindInvalidState, "only confirmed bookings can be transferred", nil)
	case b.PaymentStatus != PaymentPaid:
		return nil, newError(KindInvalidState, "booking must be paid in full before it can be transferred", nil)
	case b.SessionID == targetSessionID:
		return nil, newError(KindInvalidState, "booking is already on that session", nil)
	}

	from, err := s.loadSession(ctx, b.SessionID)
	if err != nil {
		return nil, err
	}
	to, err := s.loadSession(ctx, targetSessionID)
	if err != nil {
		return nil, err
	}
	if msg := targetBlocker(to, s.Now()); msg != "" {
		return nil, newError(KindUnavailable, msg, nil)
	}

	delta := to.Price - from.Price

	if delta > 0 {
		checkout, err := s.Gateway.CreateCheckout(ctx, payment.CheckoutRequest{
			Description: fmt.Sprintf("Move %s from %s to %s", b.Reference, from.Name, to.Name),
			Amount:      delta,
			SuccessURL:  s.SuccessURL,
			CancelURL:   s.CancelURL,
			Metadata: payment.Metadata{
				Type:            payment.TypeTransferUpgrade,
				BookingID:       b.ID,
				OldSessionID:    from.ID,
				NewSessionID:    to.ID,
				PriceDifference: delta,
			},
		})
		if err != nil {
			logger.Error("upgrade checkout failed", "booking_id", b.ID, "amount", delta, "error", err.Error())
			return nil, newError(KindExternalService, "could not start payment for the price difference", err)
		}

		metrics.RecordTransfer("upgrade")
		logger.Info("upgrade checkout created", "booking_id", b.ID, "checkout_id", checkout.ID, "amount", delta)
		return &TransferResult{
			Action:          ActionCheckoutRequired,
			CheckoutURL:     checkout.URL,
			PriceDifference: delta,
		}, nil
	}

	var refunded refundOutcome
	if delta < 0 {
		refunded = s.issueRefund(ctx, refundAttempt{
			BookingID: b.ID,
			Charges:   b.PaidCharges(),
			Amount:    -delta,
			Context:   ledger.ContextTransferDowngrade,
			Reason:    "transfer_price_difference",
			Metadata: payment.Metadata{
				Type:            payment.TypeTransferRefund,
				BookingID:       b.ID,
				OldSessionID:    from.ID,
				NewSessionID:    to.ID,
				PriceDifference: delta,
			},
		})
	}

	if err := s.swap(ctx, b, from, to, delta, to.Price, refunded, nil, false); err != nil {
		if refunded.Amount > 0 {
			logger.Error("downgrade refund issued but transfer not saved",
				"booking_id", b.ID, "refund_id", *refunded.ID, "amount", refunded.Amount, "error", err.Error())
		}
		return nil, commitErr(err)
	}

	res := &TransferResult{
		Action:          ActionTransferComplete,
		PriceDifference: delta,
		Message:         fmt.Sprintf("Booking moved to %s.", to.Name),
	}
	if delta < 0 {
		amount := refunded.Amount
		res.RefundAmount = &amount
		if refunded.Failed {
			res.Message += fmt.Sprintf(" A refund of %s is due and will be processed shortly.", email.FormatMoney(-delta))
		} else {
			res.Message += fmt.Sprintf(" %s has been refunded.", email.FormatMoney(refunded.Amount))
		}
		metrics.RecordTransfer("downgrade")
	} else {
		metrics.RecordTransfer("same_price")
	}
	return res, nil
}
