package email

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type CancellationNotice struct {
	To           string
	ParentName   string
	ChildName    string
	Reference    string
	SessionName  string
	SessionStart time.Time
	RefundAmount int64
	Explanation  string
	RefundFailed bool
}

type TransferNotice struct {
	To              string
	ParentName      string
	ChildName       string
	Reference       string
	FromSession     string
	FromStart       time.Time
	ToSession       string
	ToStart         time.Time
	PriceDifference int64
	RefundAmount    int64
}

type BalanceNotice struct {
	To          string
	ParentName  string
	Reference   string
	SessionName string
	Amount      int64
	CheckoutURL string
}

// RefundAlert tells the operations inbox that a refund needs doing by hand.
type RefundAlert struct {
	To        string
	BookingID string
	Context   string
	ChargeID  string
	Amount    int64
	Error     string
}

// FormatMoney renders minor units as pounds and pence.
func FormatMoney(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s£%d.%02d", sign, minor/100, minor%100)
}

func (s *Service) SendCancellationConfirmation(ctx context.Context, n CancellationNotice) error {
	subject := "Booking cancelled - " + n.Reference

	var refundLine string
	switch {
	case n.RefundFailed:
		refundLine = fmt.Sprintf("A refund of %s is due. We could not process it automatically, so our team will complete it by hand.", FormatMoney(n.RefundAmount))
	case n.RefundAmount > 0:
		refundLine = fmt.Sprintf("A refund of %s has been issued to your original payment method.", FormatMoney(n.RefundAmount))
	default:
		refundLine = "No refund is due for this cancellation."
	}

	body := fmt.Sprintf(`Hi %s,

The booking for %s has been cancelled.

Reference: %s
Session: %s
Date: %s

%s
%s

- The Bookings Team`, n.ParentName, n.ChildName, n.Reference, n.SessionName,
		n.SessionStart.Format(dateLayout), refundLine, n.Explanation)

	return s.Send(ctx, "cancellation", n.To, n.ParentName, subject, body)
}

func (s *Service) SendTransferConfirmation(ctx context.Context, n TransferNotice) error {
	subject := "Booking moved - " + n.Reference

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", n.ParentName)
	fmt.Fprintf(&b, "%s has been moved to a new session.\n\n", n.ChildName)
	fmt.Fprintf(&b, "Reference: %s\n", n.Reference)
	fmt.Fprintf(&b, "From: %s (%s)\n", n.FromSession, n.FromStart.Format(dateLayout))
	fmt.Fprintf(&b, "To: %s (%s)\n\n", n.ToSession, n.ToStart.Format(dateLayout))

	switch {
	case n.PriceDifference > 0:
		fmt.Fprintf(&b, "Thank you for paying the difference of %s.\n", FormatMoney(n.PriceDifference))
	case n.PriceDifference < 0 && n.RefundAmount > 0:
		fmt.Fprintf(&b, "The new session is cheaper. %s has been refunded.\n", FormatMoney(n.RefundAmount))
	case n.PriceDifference < 0:
		fmt.Fprintf(&b, "The new session is cheaper. A refund of %s will follow shortly.\n", FormatMoney(-n.PriceDifference))
	default:
		b.WriteString("There is no change to the price.\n")
	}
	b.WriteString("\n- The Bookings Team")

	return s.Send(ctx, "transfer", n.To, n.ParentName, subject, b.String())
}

func (s *Service) SendBalanceRequest(ctx context.Context, n BalanceNotice) error {
	subject := "Balance due - " + n.Reference
	body := fmt.Sprintf(`Hi %s,

The remaining balance of %s for %s is ready to pay.

Pay here: %s

- The Bookings Team`, n.ParentName, FormatMoney(n.Amount), n.SessionName, n.CheckoutURL)

	return s.Send(ctx, "balance", n.To, n.ParentName, subject, body)
}

func (s *Service) SendRefundAlert(ctx context.Context, a RefundAlert) error {
	subject := "Refund failed - booking " + a.BookingID
	charge := a.ChargeID
	if charge == "" {
		charge = "(none on file)"
	}
	body := fmt.Sprintf(`A refund could not be issued and is waiting in the reconciliation ledger.

Booking: %s
Reason: %s
Charge: %s
Amount: %s
Error: %s

Resolve it under /api/admin/refunds/failed once it has been refunded by hand.`,
		a.BookingID, a.Context, charge, FormatMoney(a.Amount), a.Error)

	return s.Send(ctx, "refund_alert", a.To, "Operations", subject, body)
}
