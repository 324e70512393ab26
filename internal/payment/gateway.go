package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrInvalidRefund   = errors.New("refund needs a charge reference and a positive amount")
	ErrInvalidCheckout = errors.New("checkout needs a description and a positive amount")
	ErrMissingMetadata = errors.New("payment metadata is missing required keys")
)

// Gateway is the subset of the payment provider the booking core uses.
type Gateway interface {
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
}

type RefundRequest struct {
	ChargeID string
	Amount   int64
	Reason   string
	Metadata Metadata
}

type Refund struct {
	ID     string
	Amount int64
}

type CheckoutRequest struct {
	Description string
	Amount      int64
	SuccessURL  string
	CancelURL   string
	Metadata    Metadata
}

type Checkout struct {
	ID  string
	URL string
}

const (
	TypeCancellation    = "cancellation"
	TypeTransferRefund  = "transfer_refund"
	TypeTransferUpgrade = "transfer_upgrade"
	TypeBalancePayment  = "balance_payment"
)

// Metadata keys. Webhooks read these back to finish deferred work, so they
// are part of the wire contract with the provider.
const (
	keyType            = "type"
	keyBookingID       = "bookingId"
	keyOldSessionID    = "oldSessionId"
	keyNewSessionID    = "newSessionId"
	keyPriceDifference = "priceDifference"
	keyReason          = "reason"
	keyCancelURL       = "cancelUrl"
)

type Metadata struct {
	Type            string
	BookingID       string
	OldSessionID    string
	NewSessionID    string
	PriceDifference int64
	Reason          string
}

func (m Metadata) ToMap() map[string]interface{} {
	out := map[string]interface{}{
		keyType:      m.Type,
		keyBookingID: m.BookingID,
	}
	if m.OldSessionID != "" {
		out[keyOldSessionID] = m.OldSessionID
	}
	if m.NewSessionID != "" {
		out[keyNewSessionID] = m.NewSessionID
	}
	if m.PriceDifference != 0 {
		out[keyPriceDifference] = strconv.FormatInt(m.PriceDifference, 10)
	}
	if m.Reason != "" {
		out[keyReason] = m.Reason
	}
	return out
}

// ParseMetadata reads metadata as returned by the provider. Numbers may come
// back as strings or JSON floats.
func ParseMetadata(raw map[string]interface{}) (Metadata, error) {
	m := Metadata{
		Type:         str(raw[keyType]),
		BookingID:    str(raw[keyBookingID]),
		OldSessionID: str(raw[keyOldSessionID]),
		NewSessionID: str(raw[keyNewSessionID]),
		Reason:       str(raw[keyReason]),
	}
	if m.Type == "" || m.BookingID == "" {
		return Metadata{}, ErrMissingMetadata
	}

	switch v := raw[keyPriceDifference].(type) {
	case nil:
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Metadata{}, fmt.Errorf("parse %s: %w", keyPriceDifference, err)
		}
		m.PriceDifference = n
	case float64:
		m.PriceDifference = int64(v)
	case int64:
		m.PriceDifference = v
	case int:
		m.PriceDifference = int64(v)
	default:
		return Metadata{}, fmt.Errorf("unexpected %s type %T", keyPriceDifference, v)
	}

	if m.Type == TypeTransferUpgrade && (m.OldSessionID == "" || m.NewSessionID == "" || m.PriceDifference <= 0) {
		return Metadata{}, ErrMissingMetadata
	}
	return m, nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
