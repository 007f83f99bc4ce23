package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketpay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpay_purchases_total",
			Help: "Total number of purchase attempts by result",
		},
		[]string{"result"},
	)

	DepositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpay_deposits_total",
			Help: "Total number of deposit webhook outcomes",
		},
		[]string{"provider", "result"},
	)

	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpay_payouts_total",
			Help: "Total number of payout attempts by method and result",
		},
		[]string{"method", "result"},
	)

	// 金额以主币单位记录，仅用于趋势观察，对账以数据库为准
	CommissionCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketpay_commission_collected_total",
			Help: "Cumulative platform commission in major currency units",
		},
	)

	OutboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpay_outbox_published_total",
			Help: "Outbox messages handed to Kafka by result",
		},
		[]string{"result"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordPurchase(result string) {
	PurchasesTotal.WithLabelValues(result).Inc()
}

func RecordCommission(amount float64) {
	if amount > 0 {
		CommissionCollected.Add(amount)
	}
}

func RecordDeposit(provider, result string) {
	DepositsTotal.WithLabelValues(provider, result).Inc()
}

func RecordPayout(method, result string) {
	PayoutsTotal.WithLabelValues(method, result).Inc()
}

func RecordOutbox(result string) {
	OutboxPublishedTotal.WithLabelValues(result).Inc()
}
