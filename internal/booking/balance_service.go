package booking

import (
	"context"
	"fmt"

	"github.com/mergimg0/ttnts121-sub002/internal/email"
	"github.com/mergimg0/ttnts121-sub002/internal/events"
	"github.com/mergimg0/ttnts121-sub002/internal/logger"
	"github.com/mergimg0/ttnts121-sub002/internal/metrics"
	"github.com/mergimg0/ttnts121-sub002/internal/obs"
	"github.com/mergimg0/ttnts121-sub002/internal/payment"
)

type BalanceService interface {
	// RequestBalancePayment creates a checkout for what is left to pay on a
	// deposit booking. The booking is only marked paid when the payment
	// confirms.
	RequestBalancePayment(ctx context.Context, callerEmail, bookingID string) (*BalancePaymentResult, error)
}

type balanceService struct {
	core
}

func NewBalanceService(d Deps) BalanceService {
	return &balanceService{core: newCore(d)}
}

func balanceBlocker(b *Booking) string {
	switch {
	case b.Status != StatusConfirmed:
		return "only confirmed bookings have a balance to pay"
	case b.PaymentStatus == PaymentPaid || b.BalancePaidAt != nil:
		return "balance has already been paid"
	case b.Outstanding() <= 0:
		return "nothing is left to pay on this booking"
	case b.PaymentStatus != PaymentDepositPaid:
		return "balance can only be paid once the deposit is paid"
	}
	return ""
}

func (s *balanceService) RequestBalancePayment(ctx context.Context, callerEmail, bookingID string) (_ *BalancePaymentResult, err error) {
	ctx, end := obs.Start(ctx, "booking.balance")
	defer func() { end(&err) }()

	b, err := s.loadOwnedBooking(ctx, callerEmail, bookingID)
	if err != nil {
		return nil, err
	}
	if msg := balanceBlocker(b); msg != "" {
		return nil, newError(KindInvalidState, msg, nil)
	}

	sess, err := s.loadSession(ctx, b.SessionID)
	if err != nil {
		return nil, err
	}

	due := b.Outstanding()
	checkout, err := s.Gateway.CreateCheckout(ctx, payment.CheckoutRequest{
		Description: fmt.Sprintf("Balance for %s (%s)", b.Reference, sess.Name),
		Amount:      due,
		SuccessURL:  s.SuccessURL,
		CancelURL:   s.CancelURL,
		Metadata: payment.Metadata{
			Type:      payment.TypeBalancePayment,
			BookingID: b.ID,
		},
	})
	if err != nil {
		logger.Error("balance checkout failed", "booking_id", b.ID, "amount", due, "error", err.Error())
		return nil, newError(KindExternalService, "could not start the balance payment", err)
	}

	metrics.RecordBalanceRequest()
	logger.Info("balance checkout created", "booking_id", b.ID, "checkout_id", checkout.ID, "amount", due)

	s.notify(ctx, "balance", func(ctx context.Context) error {
		return s.Notifier.SendBalanceRequest(ctx, email.BalanceNotice{
			To:          b.ContactEmail,
			ParentName:  b.ContactName,
			Reference:   b.Reference,
			SessionName: sess.Name,
			Amount:      due,
			CheckoutURL: checkout.URL,
		})
	}, "booking_id", b.ID)

	s.publish(ctx, events.BalanceRequested, events.BalanceRequestedData{
		BookingID:  b.ID,
		Reference:  b.Reference,
		Amount:     due,
		CheckoutID: checkout.ID,
	})

	return &BalancePaymentResult{
		BookingID:   b.ID,
		CheckoutURL: checkout.URL,
		Amount:      due,
	}, nil
}
