package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topup_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_submissions_total",
			Help: "Total number of payment submissions",
		},
		[]string{"result", "payment_method"},
	)

	ReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_reconciliations_total",
			Help: "Total number of operator reconciliations",
		},
		[]string{"result"},
	)

	WalletCreditsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topup_wallet_credits_total",
			Help: "Total number of wallet credits",
		},
	)

	WalletCreditedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topup_wallet_credited_amount_total",
			Help: "Sum of credited amounts in base currency",
		},
	)

	WalletPurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_wallet_purchases_total",
			Help: "Total number of purchases paid with wallet balance",
		},
		[]string{"result"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"status"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_operator_notifications_total",
			Help: "Total number of operator channel calls",
		},
		[]string{"kind", "status"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// knownPaymentMethods bounds the payment_method label; the value comes from clients
var knownPaymentMethods = map[string]bool{
	"binance":       true,
	"zelle":         true,
	"pago movil":    true,
	"paypal":        true,
	"zinli":         true,
	"transferencia": true,
	"efectivo":      true,
	"saldo":         true,
}

func paymentMethodLabel(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if knownPaymentMethods[method] {
		return method
	}
	return "other"
}

func RecordSubmission(result, paymentMethod string) {
	SubmissionsTotal.WithLabelValues(result, paymentMethodLabel(paymentMethod)).Inc()
}

func RecordReconciliation(result string) {
	ReconciliationsTotal.WithLabelValues(result).Inc()
}

func RecordWalletCredit(amount float64) {
	WalletCreditsTotal.Inc()
	WalletCreditedAmount.Add(amount)
}

func RecordWalletPurchase(result string) {
	WalletPurchasesTotal.WithLabelValues(result).Inc()
}

func RecordEmail(status string) {
	EmailsSentTotal.WithLabelValues(status).Inc()
}

func RecordNotification(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	NotificationsTotal.WithLabelValues(kind, status).Inc()
}
