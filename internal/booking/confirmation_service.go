package booking

import (
	"context"
	"errors"

	"github.com/mergimg0/ttnts121-sub002/internal/events"
	"github.com/mergimg0/ttnts121-sub002/internal/ledger"
	"github.com/mergimg0/ttnts121-sub002/internal/logger"
	"github.com/mergimg0/ttnts121-sub002/internal/metrics"
	"github.com/mergimg0/ttnts121-sub002/internal/obs"
	"github.com/mergimg0/ttnts121-sub002/internal/payment"
)

// ConfirmationService finishes work that waited on a customer payment. The
// provider may deliver the same event more than once, so every path is safe
// to repeat. A nil error tells the caller not to ask for redelivery.
type ConfirmationService interface {
	HandleChargeCompleted(ctx context.Context, ev payment.ChargeEvent) error
}

type confirmationService struct {
	core
}

func NewConfirmationService(d Deps) ConfirmationService {
	return &confirmationService{core: newCore(d)}
}

func (s *confirmationService) HandleChargeCompleted(ctx context.Context, ev payment.ChargeEvent) (err error) {
	ctx, end := obs.Start(ctx, "booking.confirm_payment")
	defer func() { end(&err) }()

	if !ev.Successful {
		logger.Info("ignoring unsuccessful charge", "event_id", ev.EventID, "charge_id", ev.ChargeID)
		return nil
	}

	md, err := payment.ParseMetadata(ev.Metadata)
	if err != nil {
		logger.Warn("charge has no usable booking metadata", "event_id", ev.EventID, "charge_id", ev.ChargeID, "error", err.Error())
		return nil
	}

	switch md.Type {
	case payment.TypeTransferUpgrade:
		return s.completeUpgrade(ctx, md, ev)
	case payment.TypeBalancePayment:
		return s.completeBalance(ctx, md, ev)
	default:
		return nil
	}
}

func (s *confirmationService) completeUpgrade(ctx context.Context, md payment.Metadata, ev payment.ChargeEvent) error {
	release, err := s.lockBooking(ctx, md.BookingID)
	if err != nil {
		return err
	}
	defer release()

	b, err := s.loadBooking(ctx, md.BookingID)
	if KindOf(err) == KindNotFound {
		logger.Error("upgrade paid for unknown booking", "booking_id", md.BookingID, "charge_id", ev.ChargeID)
		s.reverseUpgrade(ctx, md, ev, "booking not found")
		return nil
	}
	if err != nil {
		return err
	}

	if b.PaidWith(ev.ChargeID) {
		logger.Info("upgrade already applied", "booking_id", b.ID, "charge_id", ev.ChargeID)
		return nil
	}
	// A second checkout for the same move lands here too: the booking has
	// already left the old session, so that payment is returned.
	if b.SessionID != md.OldSessionID || b.Status != StatusConfirmed || b.PaymentStatus != PaymentPaid {
		s.reverseUpgrade(ctx, md, ev, "booking changed before the upgrade payment confirmed")
		return nil
	}
	if ev.Amount < md.PriceDifference {
		s.reverseUpgrade(ctx, md, ev, "paid amount is less than the price difference")
		return nil
	}

	from, err := s.loadSession(ctx, md.OldSessionID)
	if err != nil {
		return err
	}
	to, err := s.loadSession(ctx, md.NewSessionID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			s.reverseUpgrade(ctx, md, ev, "target session no longer exists")
			return nil
		}
		return err
	}

	// The customer paid the difference quoted at checkout time, so the new
	// total is built from that and not from today's list price.
	paid := Charge{ChargeID: ev.ChargeID, Kind: ChargeTransferUpgrade, Amount: ev.Amount, CreatedAt: s.Now()}
	err = s.swap(ctx, b, from, to, md.PriceDifference, b.Amount+md.PriceDifference, refundOutcome{}, b.withCharge(paid), true)
	switch {
	case err == nil:
		metrics.RecordTransfer("upgrade_completed")
		s.publish(ctx, events.PaymentConfirmed, events.PaymentConfirmedData{
			BookingID: b.ID,
			Type:      md.Type,
			ChargeID:  ev.ChargeID,
			Amount:    ev.Amount,
		})
		return nil
	case errors.Is(err, ErrSeatUnavailable):
		s.reverseUpgrade(ctx, md, ev, "target session filled before the payment confirmed")
		return nil
	case errors.Is(err, ErrStateChanged):
		return nil
	default:
		return commitErr(err)
	}
}

// reverseUpgrade refunds an upgrade payment that can no longer buy the move.
func (s *confirmationService) reverseUpgrade(ctx context.Context, md payment.Metadata, ev payment.ChargeEvent, why string) {
	if s.alreadyReversed(ctx, md.BookingID, ev.ChargeID) {
		return
	}

	logger.Warn("reversing upgrade payment",
		"booking_id", md.BookingID, "charge_id", ev.ChargeID, "amount", ev.Amount, "reason", why)

	s.issueRefund(ctx, refundAttempt{
		BookingID: md.BookingID,
		Charges:   []Charge{{ChargeID: ev.ChargeID, Kind: ChargeTransferUpgrade, Amount: ev.Amount}},
		Amount:    ev.Amount,
		Context:   ledger.ContextUpgradeReversal,
		Reason:    "transfer_not_possible",
		Metadata: payment.Metadata{
			Type:            payment.TypeTransferRefund,
			BookingID:       md.BookingID,
			OldSessionID:    md.OldSessionID,
			NewSessionID:    md.NewSessionID,
			PriceDifference: md.PriceDifference,
			Reason:          why,
		},
	})
	metrics.RecordTransfer("upgrade_reversed")
}

// alreadyReversed checks the ledger so a redelivered event does not refund
// the same upgrade charge twice.
func (s *confirmationService) alreadyReversed(ctx context.Context, bookingID, chargeID string) bool {
	entries, err := s.Ledger.ListByBooking(ctx, bookingID)
	if err != nil {
		logger.Warn("could not read refund ledger", "booking_id", bookingID, "error", err.Error())
		return false
	}
	for _, e := range entries {
		if e.Context == ledger.ContextUpgradeReversal && e.ChargeID == chargeID && e.Outcome == ledger.OutcomeSucceeded {
			return true
		}
	}
	return false
}

func (s *confirmationService) completeBalance(ctx context.Context, md payment.Metadata, ev payment.ChargeEvent) error {
	b, err := s.loadBooking(ctx, md.BookingID)
	if KindOf(err) == KindNotFound {
		logger.Error("balance paid for unknown booking", "booking_id", md.BookingID, "charge_id", ev.ChargeID)
		return nil
	}
	if err != nil {
		return err
	}
	if b.PaidWith(ev.ChargeID) {
		return nil
	}

	now := s.Now()
	err = s.Bookings.MarkBalancePaid(ctx, BalancePayment{
		BookingID: b.ID,
		At:        now,
		Charges:   b.withCharge(Charge{ChargeID: ev.ChargeID, Kind: ChargeBalance, Amount: ev.Amount, CreatedAt: now}),
	})
	if errors.Is(err, ErrStateChanged) {
		logger.Info("balance already settled", "booking_id", md.BookingID, "charge_id", ev.ChargeID)
		return nil
	}
	if err != nil {
		return commitErr(err)
	}

	logger.Info("balance paid", "booking_id", md.BookingID, "charge_id", ev.ChargeID, "amount", ev.Amount)
	s.publish(ctx, events.PaymentConfirmed, events.PaymentConfirmedData{
		BookingID: md.BookingID,
		Type:      md.Type,
		ChargeID:  ev.ChargeID,
		Amount:    ev.Amount,
	})
	return nil
}
