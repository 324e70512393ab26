package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookings_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_cancellations_total",
			Help: "Total number of booking cancellations by resulting payment status",
		},
		[]string{"payment_status"},
	)

	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_refunds_total",
			Help: "Gateway refund attempts by context and outcome",
		},
		[]string{"context", "outcome"},
	)

	RefundedMinorUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_refunded_minor_units_total",
			Help: "Sum of successfully refunded amounts in minor currency units",
		},
		[]string{"context"},
	)

	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_transfers_total",
			Help: "Session transfers by price branch",
		},
		[]string{"branch"},
	)

	BalanceRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_balance_requests_total",
			Help: "Balance payment checkouts created",
		},
	)

	SideEffectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_side_effects_total",
			Help: "Best-effort side effects by name and outcome",
		},
		[]string{"effect", "outcome"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookings_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordCancellation(paymentStatus string) {
	CancellationsTotal.WithLabelValues(paymentStatus).Inc()
}

// RecordRefund counts one gateway refund attempt. amount is only added to the
// refunded total when the attempt succeeded.
func RecordRefund(context string, ok bool, amount int64) {
	outcome := "failed"
	if ok {
		outcome = "succeeded"
		RefundedMinorUnits.WithLabelValues(context).Add(float64(amount))
	}
	RefundsTotal.WithLabelValues(context, outcome).Inc()
}

func RecordTransfer(branch string) {
	TransfersTotal.WithLabelValues(branch).Inc()
}

func RecordBalanceRequest() {
	BalanceRequestsTotal.Inc()
}

func RecordSideEffect(effect string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "succeeded"
	}
	SideEffectsTotal.WithLabelValues(effect, outcome).Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
