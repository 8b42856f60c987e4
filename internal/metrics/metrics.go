package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the monetization service.
type Metrics struct {
	// Affiliate metrics
	AffiliateClicks      *prometheus.CounterVec
	AffiliateConversions *prometheus.CounterVec
	CommissionCents      *prometheus.CounterVec
	RevenueCents         *prometheus.CounterVec
	AttributionMisses    *prometheus.CounterVec

	// Sponsored placement metrics
	AdImpressions   *prometheus.CounterVec
	AdClicks        *prometheus.CounterVec
	SpendCents      *prometheus.CounterVec
	BudgetExhausted prometheus.Counter
	ChargesSkipped  *prometheus.CounterVec

	// Stats aggregator metrics
	StatsRequests  *prometheus.CounterVec
	StatsCacheHits prometheus.Counter
	StatsLatency   prometheus.Histogram

	// Storage metrics
	StoreErrors *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		AffiliateClicks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "affiliate_clicks_total",
				Help:      "Total affiliate link clicks tracked",
			},
			[]string{"affiliate_type"},
		),
		AffiliateConversions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "affiliate_conversions_total",
				Help:      "Total conversions attributed to clicks",
			},
			[]string{"affiliate_type"},
		),
		CommissionCents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commission_cents_total",
				Help:      "Total commission earned, in cents",
			},
			[]string{"affiliate_type"},
		),
		RevenueCents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revenue_cents_total",
				Help:      "Total attributed sale value, in cents",
			},
			[]string{"affiliate_type"},
		),
		AttributionMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attribution_misses_total",
				Help:      "Partner aggregate updates skipped because no partner matched",
			},
			[]string{"operation"},
		),
		AdImpressions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ad_impressions_total",
				Help:      "Total ad impressions tracked",
			},
			[]string{"content_type"},
		),
		AdClicks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ad_clicks_total",
				Help:      "Total ad clicks tracked",
			},
			[]string{"content_type"},
		),
		SpendCents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sponsor_spend_cents_total",
				Help:      "Total sponsored budget charged, in cents",
			},
			[]string{"event"},
		),
		BudgetExhausted: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_exhausted_total",
				Help:      "Sponsored placements transitioned to completed",
			},
		),
		ChargesSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "charges_skipped_total",
				Help:      "Charges skipped because the placement was missing or inactive",
			},
			[]string{"event"},
		),
		StatsRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stats_requests_total",
				Help:      "Affiliate stats requests",
			},
			[]string{"result"},
		),
		StatsCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stats_cache_hits_total",
				Help:      "Affiliate stats served from the Redis cache",
			},
		),
		StatsLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stats_latency_seconds",
				Help:      "Affiliate stats computation latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		StoreErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Persistence failures by operation",
			},
			[]string{"operation"},
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordClick records an affiliate click.
func (m *Metrics) RecordClick(affiliateType string) {
	m.AffiliateClicks.WithLabelValues(affiliateType).Inc()
}

// RecordConversion records a conversion with its monetary outcome.
func (m *Metrics) RecordConversion(affiliateType string, revenueCents, commissionCents int64) {
	m.AffiliateConversions.WithLabelValues(affiliateType).Inc()
	m.RevenueCents.WithLabelValues(affiliateType).Add(float64(revenueCents))
	m.CommissionCents.WithLabelValues(affiliateType).Add(float64(commissionCents))
}

// RecordStoreError records a persistence failure.
func (m *Metrics) RecordStoreError(operation string) {
	m.StoreErrors.WithLabelValues(operation).Inc()
}
