package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/mergimg0/ttnts121-sub002/internal/email"
	"github.com/mergimg0/ttnts121-sub002/internal/ledger"
	"github.com/mergimg0/ttnts121-sub002/internal/lock"
	"github.com/mergimg0/ttnts121-sub002/internal/payment"
	"github.com/mergimg0/ttnts121-sub002/internal/refund"
	"github.com/mergimg0/ttnts121-sub002/internal/session"
)

type MockGateway struct{ mock.Mock }

func (m *MockGateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.Refund, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Refund), args.Error(1)
}

func (m *MockGateway) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Checkout), args.Error(1)
}

type MockNotifier struct{ mock.Mock }

func (m *MockNotifier) SendCancellationConfirmation(ctx context.Context, n email.CancellationNotice) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotifier) SendTransferConfirmation(ctx context.Context, n email.TransferNotice) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotifier) SendBalanceRequest(ctx context.Context, n email.BalanceNotice) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotifier) SendRefundAlert(ctx context.Context, a email.RefundAlert) error {
	return m.Called(ctx, a).Error(0)
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []ledger.Entry
	err     error
}

func (l *fakeLedger) Record(_ context.Context, e *ledger.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	e.ID = "entry-" + string(rune('a'+len(l.entries)))
	l.entries = append(l.entries, *e)
	return nil
}

func (l *fakeLedger) ListFailed(context.Context, int, int) ([]ledger.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ledger.Entry
	for _, e := range l.entries {
		if e.Outcome == ledger.OutcomeFailed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeLedger) ListByBooking(_ context.Context, bookingID string) ([]ledger.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ledger.Entry
	for _, e := range l.entries {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeLedger) Resolve(context.Context, string, string, string) error { return nil }

type published struct {
	Event string
	Data  interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, event string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{event, data})
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

// fakeStore applies the same conditional writes as the SQL repository.
type fakeStore struct {
	mu        sync.Mutex
	bookings  map[string]Booking
	sessions  map[string]session.Session
	commitErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{bookings: map[string]Booking{}, sessions: map[string]session.Session{}}
}

func (s *fakeStore) putBooking(b Booking)         { s.bookings[b.ID] = b }
func (s *fakeStore) putSession(x session.Session) { s.sessions[x.ID] = x }

func (s *fakeStore) booking(id string) Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookings[id]
}

func (s *fakeStore) session(id string) session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *fakeStore) GetBookingByID(_ context.Context, id string) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	b.Charges = append([]Charge(nil), b.Charges...)
	return &b, nil
}

// applyRefunds mirrors the charge-row update; bookings without rows are left alone.
func applyRefunds(charges []Charge, refunds []ChargeRefund) []Charge {
	out := append([]Charge(nil), charges...)
	for _, cr := range refunds {
		for i := range out {
			if out[i].ChargeID == cr.ChargeID {
				out[i].Refunded += cr.Amount
			}
		}
	}
	return out
}

func addCharges(charges []Charge, added []Charge) []Charge {
	out := append([]Charge(nil), charges...)
	for _, c := range added {
		exists := false
		for _, have := range out {
			exists = exists || have.ChargeID == c.ChargeID
		}
		if !exists {
			out = append(out, c)
		}
	}
	return out
}

func (s *fakeStore) GetSessionByID(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return &x, nil
}

func (s *fakeStore) ListUpcoming(context.Context, time.Time, int) ([]session.Session, error) {
	return nil, nil
}

func (s *fakeStore) CommitCancellation(_ context.Context, c Cancellation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}

	b, ok := s.bookings[c.BookingID]
	if !ok || b.Status != StatusConfirmed || b.PaymentStatus != c.ExpectedPaymentStatus {
		return ErrStateChanged
	}
	x, ok := s.sessions[c.SessionID]
	if !ok {
		return session.ErrSessionNotFound
	}

	at := c.CancelledAt
	by := c.CancelledBy
	expl := c.Explanation
	amount := c.RefundedAmount
	pct := c.RefundPercentage
	b.Status = StatusCancelled
	b.PaymentStatus = c.PaymentStatus
	b.RefundedAmount += c.RefundedAmount
	b.RefundAmount = &amount
	b.RefundPercentage = &pct
	b.RefundID = c.RefundID
	b.RefundExplanation = &expl
	b.CancelledAt = &at
	b.CancelledBy = &by
	if c.Reason != "" {
		r := c.Reason
		b.CancellationReason = &r
	}
	b.Charges = applyRefunds(b.Charges, c.ChargeRefunds)
	if x.Enrolled > 0 {
		x.Enrolled--
	}
	s.bookings[b.ID] = b
	s.sessions[x.ID] = x
	return nil
}

func (s *fakeStore) CommitTransfer(_ context.Context, t Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}

	b, ok := s.bookings[t.BookingID]
	if !ok || b.SessionID != t.FromSessionID || b.Status != StatusConfirmed || b.PaymentStatus != PaymentPaid {
		return ErrStateChanged
	}
	to, ok := s.sessions[t.ToSessionID]
	if !ok || to.Enrolled >= to.Capacity || to.IsForceClosed || !to.StartDate.After(t.At) {
		return ErrSeatUnavailable
	}
	from, ok := s.sessions[t.FromSessionID]
	if !ok {
		return session.ErrSessionNotFound
	}

	at := t.At
	fromID := t.FromSessionID
	delta := t.PriceDifference
	b.SessionID = t.ToSessionID
	b.TransferredFrom = &fromID
	b.TransferredAt = &at
	b.TransferPriceDifference = &delta
	b.Amount = t.NewAmount
	b.TransferRefundAmount = nil
	if t.RefundedAmount != 0 {
		refunded := t.RefundedAmount
		b.TransferRefundAmount = &refunded
	}
	b.TransferRefundID = t.RefundID
	b.Charges = addCharges(applyRefunds(b.Charges, t.ChargeRefunds), t.NewCharges)
	to.Enrolled++
	if from.Enrolled > 0 {
		from.Enrolled--
	}
	s.bookings[b.ID] = b
	s.sessions[to.ID] = to
	s.sessions[from.ID] = from
	return nil
}

func (s *fakeStore) MarkBalancePaid(_ context.Context, p BalancePayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}

	b, ok := s.bookings[p.BookingID]
	if !ok || b.Status != StatusConfirmed || b.PaymentStatus != PaymentDepositPaid || b.BalancePaidAt != nil {
		return ErrStateChanged
	}
	at := p.At
	b.PaymentStatus = PaymentPaid
	b.BalanceDue = 0
	b.BalancePaidAt = &at
	b.Charges = addCharges(b.Charges, p.Charges)
	s.bookings[b.ID] = b
	return nil
}

// failingLocker always reports the lock as held.
type failingLocker struct{ err error }

func (l failingLocker) Acquire(context.Context, string) (func(), error) { return nil, l.err }

const owner = "parent@example.com"

var testNow = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	store    *fakeStore
	gateway  *MockGateway
	notifier *MockNotifier
	ledger   *fakeLedger
	events   *recordingPublisher
	locker   lock.Locker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	n := new(MockNotifier)
	n.On("SendCancellationConfirmation", mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("SendTransferConfirmation", mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("SendBalanceRequest", mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("SendRefundAlert", mock.Anything, mock.Anything).Return(nil).Maybe()

	return &testEnv{
		store:    newFakeStore(),
		gateway:  new(MockGateway),
		notifier: n,
		ledger:   &fakeLedger{},
		events:   &recordingPublisher{},
		locker:   lock.NewLocal(),
	}
}

func (e *testEnv) deps() Deps {
	return Deps{
		Bookings:   e.store,
		Sessions:   e.store,
		Gateway:    e.gateway,
		Ledger:     e.ledger,
		Notifier:   e.notifier,
		Events:     e.events,
		Locker:     e.locker,
		Policy:     refund.DefaultPolicy(),
		OpsEmail:   "ops@example.com",
		SuccessURL: "https://club.example.com/bookings/success",
		CancelURL:  "https://club.example.com/bookings/cancelled",
		Now:        func() time.Time { return testNow },
	}
}

func strPtr(s string) *string { return &s }

func paidBooking(id, sessionID string, amount int64) Booking {
	return Booking{
		ID:            id,
		Reference:     "BK-" + id,
		ContactEmail:  owner,
		ContactName:   "Sam",
		ChildName:     "Ava",
		SessionID:     sessionID,
		Status:        StatusConfirmed,
		PaymentStatus: PaymentPaid,
		Amount:        amount,
		ChargeID:      strPtr("chrg_" + id),
	}
}

func sessionAt(id string, start time.Time, price int64, capacity, enrolled int) session.Session {
	return session.Session{
		ID:        id,
		Name:      "Session " + id,
		Capacity:  capacity,
		Enrolled:  enrolled,
		Price:     price,
		StartDate: start,
	}
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	if err == nil {
		return ""
	}
	return KindOf(err)
}
