package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/masomo-credits/core/credit"
)

// CreditMetrics exposes the ledger activity & HTTP traffic to prometheus.
type CreditMetrics struct {
	registry *prometheus.Registry

	PurchasesTotal      *prometheus.CounterVec // by package, payment method
	CreditsPurchased    *prometheus.CounterVec // by package
	ConsumptionsTotal   *prometheus.CounterVec // by document type, outcome
	CreditsConsumed     *prometheus.CounterVec // by document type
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var _ credit.Metrics = (*CreditMetrics)(nil)

// NewCreditMetrics registers the metrics on their own registry (along with the go & process collectors).
func NewCreditMetrics() *CreditMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &CreditMetrics{
		registry: reg,
		PurchasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masomo_credit_purchases_total",
				Help: "Total number of credit package purchases",
			},
			[]string{"package", "payment_method"},
		),
		CreditsPurchased: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masomo_credits_purchased_total",
				Help: "Total number of credits bought",
			},
			[]string{"package"},
		),
		ConsumptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masomo_credit_consumptions_total",
				Help: "Total number of document generation requests",
			},
			[]string{"document_type", "outcome"}, // outcome: success/insufficient_funds/unknown_document_type
		),
		CreditsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masomo_credits_consumed_total",
				Help: "Total number of credits debited",
			},
			[]string{"document_type"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "masomo_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "masomo_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "path"},
		),
	}
}

func (m *CreditMetrics) ObservePurchase(packageID, paymentMethod string, credits int64) {
	m.PurchasesTotal.WithLabelValues(packageID, paymentMethod).Inc()
	m.CreditsPurchased.WithLabelValues(packageID).Add(float64(credits))
}

func (m *CreditMetrics) ObserveConsumption(documentType, outcome string, debited int64) {
	m.ConsumptionsTotal.WithLabelValues(documentType, outcome).Inc()
	if debited > 0 {
		m.CreditsConsumed.WithLabelValues(documentType).Add(float64(debited))
	}
}

// ObserveRequest records a served HTTP request. `path` must be the route pattern, not the raw URL.
func (m *CreditMetrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *CreditMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registered metrics in the prometheus exposition format.
func (m *CreditMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
