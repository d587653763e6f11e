package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventmitra_orders_created_total",
			Help: "Checkout attempts by outcome",
		},
		[]string{"outcome"},
	)

	paymentVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventmitra_payment_verifications_total",
			Help: "Payment verifications by outcome",
		},
		[]string{"outcome"},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventmitra_tickets_issued_total",
			Help: "Tickets issued on confirmed payments",
		},
	)

	checkIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventmitra_check_ins_total",
			Help: "Ticket check-ins by outcome",
		},
		[]string{"outcome"},
	)

	refunds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventmitra_refunds_total",
			Help: "Refunds by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	refundedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventmitra_refunded_amount_total",
			Help: "Refunded amount in whole currency units",
		},
	)

	notificationJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventmitra_notification_jobs_total",
			Help: "Processed notification jobs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventmitra_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func OrderCreated(outcome string) {
	ordersCreated.WithLabelValues(outcome).Inc()
}

func PaymentVerified(outcome string) {
	paymentVerifications.WithLabelValues(outcome).Inc()
}

func TicketsIssued(n int) {
	if n > 0 {
		ticketsIssued.Add(float64(n))
	}
}

func CheckIn(outcome string) {
	checkIns.WithLabelValues(outcome).Inc()
}

// Refund records a refund. kind is "customer" or "compensation".
func Refund(kind, outcome string, amount int64) {
	refunds.WithLabelValues(kind, outcome).Inc()
	if outcome == OutcomeOK && amount > 0 {
		refundedAmount.Add(float64(amount))
	}
}

func NotificationJob(kind, outcome string) {
	notificationJobs.WithLabelValues(kind, outcome).Inc()
}

func ObserveHTTP(method, route, status string, d time.Duration) {
	httpDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
