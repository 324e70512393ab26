package ledger

import "time"

const (
	ContextCancellation      = "cancellation"
	ContextTransferDowngrade = "transfer_downgrade"
	// ContextUpgradeReversal refunds an upgrade payment whose seat could not be
	// allocated when the payment confirmed.
	ContextUpgradeReversal = "transfer_upgrade_reversal"

	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Entry is one gateway refund attempt. Failed entries stay open until an
// operator resolves them by hand.
type Entry struct {
	ID         string     `db:"id" json:"id" bson:"_id"`
	BookingID  string     `db:"booking_id" json:"bookingId" bson:"booking_id"`
	Context    string     `db:"context" json:"context" bson:"context"`
	ChargeID   string     `db:"charge_id" json:"chargeId" bson:"charge_id"`
	Amount     int64      `db:"amount" json:"amount" bson:"amount"`
	Outcome    string     `db:"outcome" json:"outcome" bson:"outcome"`
	GatewayRef *string    `db:"gateway_ref" json:"gatewayRef,omitempty" bson:"gateway_ref,omitempty"`
	Error      *string    `db:"error" json:"error,omitempty" bson:"error,omitempty"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolvedAt,omitempty" bson:"resolved_at,omitempty"`
	ResolvedBy *string    `db:"resolved_by" json:"resolvedBy,omitempty" bson:"resolved_by,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt" bson:"created_at"`
}

type ResolveRequest struct {
	GatewayRef string `json:"gatewayRef" binding:"required"`
}
