package booking

import (
	"strings"
	"time"

	"github.com/mergimg0/ttnts121-sub002/internal/refund"
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusWaitlist  = "waitlist"

	PaymentPending           = "pending"
	PaymentDepositPaid       = "deposit_paid"
	PaymentPaid              = "paid"
	PaymentPartiallyRefunded = "partially_refunded"
	PaymentRefunded          = "refunded"
	PaymentFailed            = "failed"
	PaymentExpired           = "expired"

	ChargeCheckout        = "checkout"
	ChargeTransferUpgrade = "transfer_upgrade"
	ChargeBalance         = "balance_payment"
)

// Booking is one child's place on one session. Money is in minor units.
type Booking struct {
	ID            string `db:"id" json:"id" bson:"_id"`
	Reference     string `db:"reference" json:"reference" bson:"reference"`
	ContactEmail  string `db:"contact_email" json:"contactEmail" bson:"contact_email"`
	ContactName   string `db:"contact_name" json:"contactName" bson:"contact_name"`
	ChildName     string `db:"child_name" json:"childName" bson:"child_name"`
	SessionID     string `db:"session_id" json:"sessionId" bson:"session_id"`
	Status        string `db:"status" json:"status" bson:"status"`
	PaymentStatus string `db:"payment_status" json:"paymentStatus" bson:"payment_status"`

	Amount         int64   `db:"amount" json:"amount" bson:"amount"`
	DepositPaid    int64   `db:"deposit_paid" json:"depositPaid" bson:"deposit_paid"`
	BalanceDue     int64   `db:"balance_due" json:"balanceDue" bson:"balance_due"`
	RefundedAmount int64   `db:"refunded_amount" json:"refundedAmount" bson:"refunded_amount"`
	ChargeID       *string `db:"charge_id" json:"-" bson:"charge_id,omitempty"`

	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty" bson:"cancelled_at,omitempty"`
	CancelledBy        *string    `db:"cancelled_by" json:"cancelledBy,omitempty" bson:"cancelled_by,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellationReason,omitempty" bson:"cancellation_reason,omitempty"`
	RefundAmount       *int64     `db:"refund_amount" json:"refundAmount,omitempty" bson:"refund_amount,omitempty"`
	RefundPercentage   *int       `db:"refund_percentage" json:"refundPercentage,omitempty" bson:"refund_percentage,omitempty"`
	RefundID           *string    `db:"refund_id" json:"refundId,omitempty" bson:"refund_id,omitempty"`
	RefundExplanation  *string    `db:"refund_explanation" json:"refundExplanation,omitempty" bson:"refund_explanation,omitempty"`

	TransferredFrom         *string    `db:"transferred_from" json:"transferredFrom,omitempty" bson:"transferred_from,omitempty"`
	TransferredAt           *time.Time `db:"transferred_at" json:"transferredAt,omitempty" bson:"transferred_at,omitempty"`
	TransferPriceDifference *int64     `db:"transfer_price_difference" json:"transferPriceDifference,omitempty" bson:"transfer_price_difference,omitempty"`
	TransferRefundAmount    *int64     `db:"transfer_refund_amount" json:"transferRefundAmount,omitempty" bson:"transfer_refund_amount,omitempty"`
	TransferRefundID        *string    `db:"transfer_refund_id" json:"transferRefundId,omitempty" bson:"transfer_refund_id,omitempty"`

	BalancePaidAt *time.Time `db:"balance_paid_at" json:"balancePaidAt,omitempty" bson:"balance_paid_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt" bson:"updated_at"`

	// Charges is filled from booking_charges once a second payment joins the
	// booking. Until then ChargeID alone pays for it.
	Charges []Charge `db:"-" json:"-" bson:"charges,omitempty"`
}

// Charge is one gateway payment towards a booking. Amount is what it paid for
// this booking, Refunded what has gone back against it.
type Charge struct {
	ChargeID  string    `db:"charge_id" json:"chargeId" bson:"charge_id"`
	Kind      string    `db:"kind" json:"kind" bson:"kind"`
	Amount    int64     `db:"amount" json:"amount" bson:"amount"`
	Refunded  int64     `db:"refunded" json:"refunded" bson:"refunded"`
	CreatedAt time.Time `db:"created_at" json:"createdAt" bson:"created_at"`
}

func (c Charge) Remaining() int64 {
	return c.Amount - c.Refunded
}

// ChargeRefund is the part of a refund taken from one charge.
type ChargeRefund struct {
	ChargeID string
	Amount   int64
	RefundID string
}

// OwnedBy compares the caller's verified email with the booking contact.
func (b *Booking) OwnedBy(email string) bool {
	return email != "" && strings.EqualFold(strings.TrimSpace(b.ContactEmail), strings.TrimSpace(email))
}

// RefundableBase is what the customer has actually paid and could get back.
func (b *Booking) RefundableBase() int64 {
	switch b.PaymentStatus {
	case PaymentPaid:
		return b.Amount
	case PaymentDepositPaid:
		return b.DepositPaid
	default:
		return 0
	}
}

// Outstanding is the unpaid part of a deposit booking.
func (b *Booking) Outstanding() int64 {
	return b.Amount - b.DepositPaid
}

func (b *Booking) HasCharge() bool {
	return b.ChargeID != nil && *b.ChargeID != ""
}

// PaidCharges lists the charges a refund can be drawn from. A booking with
// only its checkout charge has that charge cover the whole refundable base.
func (b *Booking) PaidCharges() []Charge {
	if len(b.Charges) > 0 {
		return b.Charges
	}
	if !b.HasCharge() {
		return nil
	}
	return []Charge{{ChargeID: *b.ChargeID, Kind: ChargeCheckout, Amount: b.RefundableBase(), CreatedAt: b.CreatedAt}}
}

// PaidWith reports whether chargeID is already recorded against the booking.
func (b *Booking) PaidWith(chargeID string) bool {
	for _, c := range b.Charges {
		if c.ChargeID == chargeID {
			return true
		}
	}
	return false
}

// withCharge returns the charge rows to store when c joins the booking. The
// first extra charge also pins the checkout charge at what it covers today.
func (b *Booking) withCharge(c Charge) []Charge {
	if len(b.Charges) > 0 {
		return []Charge{c}
	}
	return append(b.PaidCharges(), c)
}

// Cancellation is the single write that closes a booking and frees its seat.
// It applies only while the booking still has ExpectedPaymentStatus and is
// confirmed.
type Cancellation struct {
	BookingID             string
	SessionID             string
	ExpectedPaymentStatus string
	PaymentStatus         string
	RefundedAmount        int64
	CancelledAt           time.Time
	CancelledBy           string
	Reason                string
	RefundPercentage      int
	RefundID              *string
	Explanation           string
	ChargeRefunds         []ChargeRefund
}

// Transfer moves a booking's seat from one session to another in one write.
type Transfer struct {
	BookingID       string
	FromSessionID   string
	ToSessionID     string
	NewAmount       int64
	PriceDifference int64
	At              time.Time

	// RefundedAmount and RefundID record a downgrade refund that went through.
	RefundedAmount int64
	RefundID       *string
	ChargeRefunds  []ChargeRefund
	NewCharges     []Charge
}

// BalancePayment settles a deposit booking with the charge that paid the rest.
type BalancePayment struct {
	BookingID string
	At        time.Time
	Charges   []Charge
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type TransferRequest struct {
	TargetSessionID string `json:"targetSessionId" binding:"required"`
}

type CancellationPreview struct {
	BookingID        string           `json:"bookingId"`
	Allowed          bool             `json:"allowed"`
	NotAllowedReason string           `json:"notAllowedReason,omitempty"`
	RefundableAmount int64            `json:"refundableAmount"`
	Decision         *refund.Decision `json:"decision,omitempty"`
	Policy           refund.Policy    `json:"policy"`
}

type CancellationResult struct {
	BookingID        string  `json:"bookingId"`
	Status           string  `json:"status"`
	PaymentStatus    string  `json:"paymentStatus"`
	RefundAmount     int64   `json:"refundAmount"`
	RefundPercentage int     `json:"refundPercentage"`
	RefundID         *string `json:"refundId,omitempty"`
	Explanation      string  `json:"explanation"`
	// RefundPending is set when a refund was due but the gateway did not
	// take it. The amount is in the reconciliation ledger.
	RefundPending bool `json:"refundPending,omitempty"`
}

const (
	ActionCheckoutRequired = "checkout_required"
	ActionTransferComplete = "transfer_complete"
)

type TransferResult struct {
	Action          string `json:"action"`
	CheckoutURL     string `json:"checkoutUrl,omitempty"`
	PriceDifference int64  `json:"priceDifference"`
	RefundAmount    *int64 `json:"refundAmount,omitempty"`
	Message         string `json:"message,omitempty"`
}

type BalancePaymentResult struct {
	BookingID   string `json:"bookingId"`
	CheckoutURL string `json:"checkoutUrl"`
	Amount      int64  `json:"amount"`
}
