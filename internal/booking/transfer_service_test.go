package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mergimg0/ttnts121-sub002/internal/email"
	"github.com/mergimg0/ttnts121-sub002/internal/events"
	"github.com/mergimg0/ttnts121-sub002/internal/ledger"
	"github.com/mergimg0/ttnts121-sub002/internal/payment"
)

func transferEnv(t *testing.T, fromPrice, toPrice int64) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	env.store.putSession(sessionAt("s-old", testNow.Add(days(7)), fromPrice, 10, 6))
	env.store.putSession(sessionAt("s-new", testNow.Add(days(14)), toPrice, 10, 3))
	env.store.putBooking(paidBooking("b-1", "s-old", fromPrice))
	return env
}

func seats(env *testEnv) int {
	return env.store.session("s-old").Enrolled + env.store.session("s-new").Enrolled
}

func TestTransfer_UpgradeReturnsCheckout(t *testing.T) {
	env := transferEnv(t, 2000, 3500)
	before := env.store.booking("b-1")
	env.gateway.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(r payment.CheckoutRequest) bool {
		md := r.Metadata
		return r.Amount == 1500 &&
			md.Type == payment.TypeTransferUpgrade &&
			md.BookingID == "b-1" &&
			md.OldSessionID == "s-old" &&
			md.NewSessionID == "s-new" &&
			md.PriceDifference == 1500
	})).Return(&payment.Checkout{ID: "chrg_up", URL: "https://pay.example.com/chrg_up"}, nil).Once()

	res, err := NewTransferService(env.deps()).Transfer(context.Background(), owner, "b-1", "s-new")

	require.NoError(t, err)
	assert.Equal(t, ActionCheckoutRequired, res.Action)
	assert.Equal(t, "https://pay.example.com/chrg_up", res.CheckoutURL)
	assert.Equal(t, int64(1500), res.PriceDifference)
	assert.Nil(t, res.RefundAmount)

	assert.Equal(t, before, env.store.booking("b-1"))
	assert.Equal(t, 6, env.store.session("s-old").Enrolled)
	assert.Equal(t, 3, env.store.session("s-new").Enrolled)
	assert.Empty(t, env.events.names())
	env.gateway.AssertExpectations(t)
	env.notifier.AssertNotCalled(t, "SendTransferConfirmation", mock.Anything, mock.Anything)
}

func TestTransfer_UpgradeCheckoutFailure(t *testing.T) {
	env := transferEnv(t, 2000, 3500)
	env.gateway.On("CreateCheckout", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

	res, err := NewTransferService(env.deps()).Transfer(context.Background(), owner, "b-1", "s-new")

	assert.Nil(t, res)
	assert.Equal(t, KindExternalService, kindOf(t, err))
	assert.Equal(t, "s-old", env.store.booking("b-1").SessionID)
}

func TestTransfer_DowngradeRefundsDifference(t *testing.T) {
	env := transferEnv(t, 3500, 2000)
	total := seats(env)
	env.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(r payment.RefundRequest) bool {
		return r.ChargeID == "chrg_b-1" && r.Amount == 1500 && r.Metadata.Type == payment.TypeTransferRefund
	})).Return(&payment.Refund{ID: "rfnd_dn", Amount: 1500}, nil).Once()

	res, err := NewTransferService(env.deps()).Transfer(context.Background(), owner, "b-1", "s-new")

	require.NoError(t, err)
	assert.Equal(t, ActionTransferComplete, res.Action)
	assert.Equal(t, int64(-1500), res.PriceDifference)
	require.NotNil(t, res.RefundAmount)
	assert.Equal(t, int64(1500), *res.RefundAmount)
	assert.Contains(t, res.Message, "has been refunded")

	b := env.store.booking("b-1")
	assert.Equal(t, "s-new", b.SessionID)
	assert.Equal(t, "s-old", *b.TransferredFrom)
	assert.Equal(t, int64(-1500), *b.TransferPriceDifference)
	assert.Equal(t, int64(2000), b.Amount)
	assert.Equal(t, testNow, *b.TransferredAt)
	require.NotNil(t, b.TransferRefundAmount)
	assert.Equal(t, int64(1500), *b.TransferRefundAmount)
	assert.Equal(t, "rfnd_dn", *b.TransferRefundID)
	assert.Zero(t, b.RefundedAmount)

	assert.Equal(t, 5, env.store.session("s-old").Enrolled)
	assert.Equal(t, 4, env.store.session("s-new").Enrolled)
	assert.Equal(t, total, seats(env))

	require.Len(t, env.ledger.entries, 1)
	assert.Equal(t, ledger.ContextTransferDowngrade, env.ledger.entries[0].Context)
	assert.Equal(t, []string{events.BookingTransferred}, env.events.names())
	env.notifier.AssertCalled(t, "SendTransferConfirmation", mock.Anything, mock.MatchedBy(func(n email.TransferNotice) bool {
		return n.RefundAmount == 1500 && n.PriceDifference == -1500
	}))
}

func TestTransfer_DowngradeRefundFailureStillMoves(t *testing.T) {
	env := transferEnv(t, 3500, 2000)
	env.gateway.On("Refund", mock.Anything, mock.Anything).Return(nil, errors.New("card expired"))

	res, err := NewTransferService(env.deps()).Transfer(context.Background(), owner, "b-1", "s-new")

	require.NoError(t, err)
	assert.Equal(t, ActionTransferComplete, res.Action)
	require.NotNil(t, res.RefundAmount)
	assert.Zero(t, *res.RefundAmount)
	assert.Contains(t, res.Message, "will be processed shortly")
	b := env.store.booking("b-1")
	assert.Equal(t, "s-new", b.SessionID)
	assert.Nil(t, b.TransferRefundAmount)
	assert.Nil(t, b.TransferRefundID)

	require.Len(t, env.ledger.entries, 1)
	assert.Equal(t, ledger.OutcomeFailed, env.ledger.entries[0].Outcome)
	assert.ElementsMatch(t, []string{events.RefundFailed, events.BookingTransferred}, env.events.names())
}

func TestTransfer_DowngradeAfterUpgradeDrawsOnUpgradeChargeFirst(t *testing.T) {
	env := newTestEnv(t)
	env.store.putSession(sessionAt("s-old", testNow.Add(days(7)), 3500, 10, 6))
	env.store.putSession(sessionAt("s-new", testNow.Add(days(14)), 1000, 10, 3))
	b := paidBooking("b-1", "s-old", 3500)
	b.Charges = []Charge{
		{ChargeID: "chrg_b-1", Kind: ChargeCheckout, Amount: 2000},
		{ChargeID: "chrg_up", Kind: ChargeTransferUpgrade, Amount: 1500},
	}
	env.store.putBooking(b)
	env.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(r payment.RefundRequest) bool {
		return r.ChargeID == "chrg_up" && r.Amount == 1500
	})).Return(&payment.Refund{ID: "rfnd_up", Amount: 1500}, nil).Once()
	env.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(r payment.RefundRequest) bool {
		return r.ChargeID == "chrg_b-1" && r.Amount == 1000
	})).Return(&payment.Refund{ID: "rfnd_co", Amount: 1000}, nil).Once()

	res, err := NewTransferService(env.deps()).Transfer(context.Background(), owner, "b-1", "s-new")

	require.NoError(t, err)
	assert.Equal(t, int64(2500), *res.RefundAmount)
	got := env.store.booking("b-1")
	assert.Equal(t, int64(1000), got.Amount)
	assert.Equal(t, int64(2500), *got.TransferRefundAmount)
	assert.Equal(t, "rfnd_up", *got.TransferRefundID)
	assert.Equal(t, int64(1000), got.Charges[0].Remaining())
	assert.Zero(t, got.Charges[1].Remaining())
	env.gateway.AssertExpectations(t)
}

func TestTransfer_SamePriceMovesWithoutPayment(t *testing.T) {
	env := transferEnv(t, 2000, 2000)
	total := seats(env)

	res, err := NewTransferService(env.deps()).Transfer(context.Background(), owner, "b-1", "s-new")

	require.NoError(t, err)
	assert.Equal(t, ActionTransferComplete, res.Action)
	assert.Zero(t, res.PriceDifference)
	assert.Nil(t, res.RefundAmount)
	assert.Equal(t, "s-new", env.store.booking("b-1").SessionID)
	assert.Equal(t, total, seats(env))
	env.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	env.gateway.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
}

func TestTransfer_Guards(t *testing.T) {
	tests := []struct {
		name   string
		caller string
		target string
		setup  func(*testEnv)
		want   Kind
	}{
		{name: "not the owner", caller: "x@example.com", target: "s-new", want: KindUnauthorized},
		{name: "unknown booking", caller: owner, target: "s-new", setup: func(e *testEnv) { delete(e.store.bookings, "b-1") }, want: KindNotFound},
		{name: "unknown target", caller: owner, target: "s-missing", want: KindNotFound},
		{name: "same session", caller: owner, target: "s-old", want: KindInvalidState},
		{
			name: "deposit only", caller: owner, target: "s-new",
			setup: func(e *testEnv) {
				b := e.store.bookings["b-1"]
				b.PaymentStatus = PaymentDepositPaid
				e.store.putBooking(b)
			},
			want: KindInvalidState,
		},
		{
			name: "cancelled booking", caller: owner, target: "s-new",
			setup: func(e *testEnv) {
				b := e.store.bookings["b-1"]
				b.Status = StatusCancelled
				e.store.putBooking(b)
			},
			want: KindInvalidState,
		},
		{
			name: "target full", caller: owner, target: "s-new",
			setup: func(e *testEnv) {
				s := e.store.sessions["s-new"]
				s.Enrolled = s.Capacity
				e.store.putSession(s)
			},
			want: KindUnavailable,
		},
		{
			name: "target closed", caller: owner, target: "s-new",
			setup: func(e *testEnv) {
				s := e.store.sessions["s-new"]
				s.IsForceClosed = true
				e.store.putSession(s)
			},
			want: KindUnavailable,
		},
		{
			name: "target started", caller: owner, target: "s-new",
			setup: func(e *testEnv) {
				s := e.store.sessions["s-new"]
				s.StartDate = testNow.Add(-days(1))
				e.store.putSession(s)
			},
			want: KindUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := transferEnv(t, 2000, 2000)
			if tt.setup != nil {
				tt.setup(env)
			}

			res, err := NewTransferService(env.deps()).Transfer(context.Background(), tt.caller, "b-1", tt.target)

			assert.Nil(t, res)
			assert.Equal(t, tt.want, kindOf(t, err))
			assert.Empty(t, env.events.names())
		})
	}
}

func TestTransfer_SeatTakenAtCommit(t *testing.T) {
	env := transferEnv(t, 2000, 2000)
	env.store.commitErr = ErrSeatUnavailable

	_, err := NewTransferService(env.deps()).Transfer(context.Background(), owner, "b-1", "s-new")

	assert.Equal(t, KindUnavailable, kindOf(t, err))
	assert.Equal(t, "s-old", env.store.booking("b-1").SessionID)
}
