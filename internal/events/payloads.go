package events

type BookingCancelledData struct {
	BookingID        string `json:"bookingId"`
	Reference        string `json:"reference"`
	SessionID        string `json:"sessionId"`
	PaymentStatus    string `json:"paymentStatus"`
	RefundAmount     int64  `json:"refundAmount"`
	RefundPercentage int    `json:"refundPercentage"`
	RefundPending    bool   `json:"refundPending"`
}

type BookingTransferredData struct {
	BookingID       string `json:"bookingId"`
	Reference       string `json:"reference"`
	FromSessionID   string `json:"fromSessionId"`
	ToSessionID     string `json:"toSessionId"`
	PriceDifference int64  `json:"priceDifference"`
	RefundAmount    int64  `json:"refundAmount"`
	// Deferred is true when the move completed from a payment confirmation.
	Deferred bool `json:"deferred"`
}

type RefundFailedData struct {
	BookingID     string `json:"bookingId"`
	LedgerEntryID string `json:"ledgerEntryId,omitempty"`
	Context       string `json:"context"`
	ChargeID      string `json:"chargeId,omitempty"`
	Amount        int64  `json:"amount"`
	Error         string `json:"error"`
}

type BalanceRequestedData struct {
	BookingID  string `json:"bookingId"`
	Reference  string `json:"reference"`
	Amount     int64  `json:"amount"`
	CheckoutID string `json:"checkoutId"`
}

type PaymentConfirmedData struct {
	BookingID string `json:"bookingId"`
	Type      string `json:"type"`
	ChargeID  string `json:"chargeId"`
	Amount    int64  `json:"amount"`
}
