package email

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergimg0/ttnts121-sub002/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init()

	code := m.Run()
	os.Exit(code)
}

func newTestService(rdb *redis.Client) *Service {
	s := New(rdb, "noreply@example.com", "Activity Club", "smtp.test.com", "587", "user", "pass")
	s.retryDelay = 0
	return s
}

func TestSend(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectLPush("emails", `.*`).SetVal(1)

	err := newTestService(db).Send(context.Background(), "test", "parent@example.com", "Parent", "Hello", "Body")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectLPush("emails", `.*`).SetErr(assert.AnError)

	err := newTestService(db).Send(context.Background(), "test", "parent@example.com", "Parent", "Hello", "Body")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendCancellationConfirmation(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectLPush("emails", `.*BK-1001.*`).SetVal(1)

	err := newTestService(db).SendCancellationConfirmation(context.Background(), CancellationNotice{
		To:           "parent@example.com",
		ParentName:   "Sam",
		ChildName:    "Ava",
		Reference:    "BK-1001",
		SessionName:  "Saturday Football",
		SessionStart: time.Now().Add(72 * time.Hour),
		RefundAmount: 5000,
		Explanation:  "50% refund",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendTransferConfirmation(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectLPush("emails", `.*BK-2002.*`).SetVal(1)

	err := newTestService(db).SendTransferConfirmation(context.Background(), TransferNotice{
		To:              "parent@example.com",
		ParentName:      "Sam",
		ChildName:       "Ava",
		Reference:       "BK-2002",
		FromSession:     "Tuesday Swim",
		ToSession:       "Thursday Swim",
		PriceDifference: -1500,
		RefundAmount:    1500,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendBalanceRequest(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectLPush("emails", `.*checkout.*`).SetVal(1)

	err := newTestService(db).SendBalanceRequest(context.Background(), BalanceNotice{
		To:          "parent@example.com",
		ParentName:  "Sam",
		Reference:   "BK-3003",
		SessionName: "Holiday Camp",
		Amount:      7500,
		CheckoutURL: "https://pay.example.com/checkout/1",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendRefundAlert(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectLPush("emails", `.*none on file.*`).SetVal(1)

	err := newTestService(db).SendRefundAlert(context.Background(), RefundAlert{
		To:        "ops@example.com",
		BookingID: "b-1",
		Context:   "cancellation",
		Amount:    5000,
		Error:     "booking has no charge reference",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueLength(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectLLen("emails").SetVal(5)

	assert.Equal(t, int64(5), newTestService(db).QueueLength(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNextDelivers(t *testing.T) {
	db, mock := redismock.NewClientMock()
	job, _ := json.Marshal(Job{Type: "test", To: "parent@example.com", Subject: "Hi"})
	mock.ExpectBRPop(2*time.Second, "emails").SetVal([]string{"emails", string(job)})

	svc := newTestService(db)
	var delivered []Job
	svc.send = func(j Job) error {
		delivered = append(delivered, j)
		return nil
	}

	svc.processNext(context.Background())

	require.Len(t, delivered, 1)
	assert.Equal(t, 1, delivered[0].Tries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNextRequeuesThenFails(t *testing.T) {
	db, mock := redismock.NewClientMock()
	job, _ := json.Marshal(Job{Type: "test", To: "parent@example.com", Tries: maxAttempts - 1})
	mock.ExpectBRPop(2*time.Second, "emails").SetVal([]string{"emails", string(job)})
	mock.Regexp().ExpectLPush("emails:failed", `.*`).SetVal(1)

	svc := newTestService(db)
	svc.send = func(Job) error { return errors.New("smtp down") }

	svc.processNext(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "£50.00", FormatMoney(5000))
	assert.Equal(t, "£0.05", FormatMoney(5))
	assert.Equal(t, "-£15.00", FormatMoney(-1500))
}
