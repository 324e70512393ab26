package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mergimg0/ttnts121-sub002/internal/email"
	"github.com/mergimg0/ttnts121-sub002/internal/events"
	"github.com/mergimg0/ttnts121-sub002/internal/payment"
)

func depositBooking(id, sessionID string, amount, deposit int64) Booking {
	b := paidBooking(id, sessionID, amount)
	b.PaymentStatus = PaymentDepositPaid
	b.DepositPaid = deposit
	b.BalanceDue = amount - deposit
	return b
}

func TestRequestBalancePayment(t *testing.T) {
	env := newTestEnv(t)
	env.store.putSession(sessionAt("s-1", testNow.Add(days(20)), 10000, 10, 5))
	env.store.putBooking(depositBooking("b-1", "s-1", 10000, 3000))
	env.gateway.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(r payment.CheckoutRequest) bool {
		return r.Amount == 7000 && r.Metadata.Type == payment.TypeBalancePayment && r.Metadata.BookingID == "b-1"
	})).Return(&payment.Checkout{ID: "chrg_bal", URL: "https://pay.example.com/chrg_bal"}, nil).Once()

	res, err := NewBalanceService(env.deps()).RequestBalancePayment(context.Background(), owner, "b-1")

	require.NoError(t, err)
	assert.Equal(t, "b-1", res.BookingID)
	assert.Equal(t, int64(7000), res.Amount)
	assert.Equal(t, "https://pay.example.com/chrg_bal", res.CheckoutURL)

	assert.Equal(t, PaymentDepositPaid, env.store.booking("b-1").PaymentStatus)
	assert.Equal(t, []string{events.BalanceRequested}, env.events.names())
	env.notifier.AssertCalled(t, "SendBalanceRequest", mock.Anything, mock.MatchedBy(func(n email.BalanceNotice) bool {
		return n.Amount == 7000 && n.CheckoutURL == res.CheckoutURL
	}))
}

func TestRequestBalancePayment_Guards(t *testing.T) {
	paidAt := testNow.Add(-time.Hour)
	tests := []struct {
		name    string
		caller  string
		booking Booking
		want    Kind
	}{
		{name: "not the owner", caller: "x@example.com", booking: depositBooking("b-1", "s-1", 10000, 3000), want: KindUnauthorized},
		{name: "already paid", caller: owner, booking: paidBooking("b-1", "s-1", 10000), want: KindInvalidState},
		{
			name:   "balance paid at set",
			caller: owner,
			booking: func() Booking {
				b := depositBooking("b-1", "s-1", 10000, 3000)
				b.BalancePaidAt = &paidAt
				return b
			}(),
			want: KindInvalidState,
		},
		{name: "nothing outstanding", caller: owner, booking: depositBooking("b-1", "s-1", 10000, 10000), want: KindInvalidState},
		{
			name:   "payment pending",
			caller: owner,
			booking: func() Booking {
				b := depositBooking("b-1", "s-1", 10000, 0)
				b.PaymentStatus = PaymentPending
				return b
			}(),
			want: KindInvalidState,
		},
		{
			name:   "cancelled",
			caller: owner,
			booking: func() Booking {
				b := depositBooking("b-1", "s-1", 10000, 3000)
				b.Status = StatusCancelled
				return b
			}(),
			want: KindInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.store.putSession(sessionAt("s-1", testNow.Add(days(20)), 10000, 10, 5))
			env.store.putBooking(tt.booking)

			res, err := NewBalanceService(env.deps()).RequestBalancePayment(context.Background(), tt.caller, "b-1")

			assert.Nil(t, res)
			assert.Equal(t, tt.want, kindOf(t, err))
			env.gateway.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
		})
	}
}

func TestRequestBalancePayment_GatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.putSession(sessionAt("s-1", testNow.Add(days(20)), 10000, 10, 5))
	env.store.putBooking(depositBooking("b-1", "s-1", 10000, 3000))
	env.gateway.On("CreateCheckout", mock.Anything, mock.Anything).Return(nil, errors.New("bad gateway"))

	res, err := NewBalanceService(env.deps()).RequestBalancePayment(context.Background(), owner, "b-1")

	assert.Nil(t, res)
	assert.Equal(t, KindExternalService, kindOf(t, err))
	assert.Empty(t, env.events.names())
	env.notifier.AssertNotCalled(t, "SendBalanceRequest", mock.Anything, mock.Anything)
}
