// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what handlers and middleware report into.
type Recorder interface {
	RecordSubmission(outcome string)
	RecordProcessing(status string)
	RecordPaymentIntent(gateway string, ok bool)
	RecordPaymentConfirmed(gateway, source string)
	RecordReceiptSent()
	RecordHTTPRequest(method, route string, status int, d time.Duration)
}

const (
	OutcomeFree            = "free"
	OutcomePaid            = "paid"
	OutcomePaymentRequired = "payment_required"

	SourceConfirm = "confirm"
	SourceWebhook = "webhook"
)

type Collector struct {
	submissions        *prometheus.CounterVec
	processed          *prometheus.CounterVec
	intents            *prometheus.CounterVec
	confirmed          *prometheus.CounterVec
	receipts           prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "econfere_analysis_submissions_total",
			Help: "Analysis submissions by outcome.",
		}, []string{"outcome"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "econfere_analysis_processed_total",
			Help: "Analyses that reached a terminal status.",
		}, []string{"status"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "econfere_payment_intents_total",
			Help: "Payment intents requested per gateway.",
		}, []string{"gateway", "result"}),
		confirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "econfere_payments_confirmed_total",
			Help: "Payments marked completed, by gateway and confirmation path.",
		}, []string{"gateway", "source"}),
		receipts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "econfere_receipts_sent_total",
			Help: "Payment receipts delivered.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "econfere_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "econfere_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.submissions,
		c.processed,
		c.intents,
		c.confirmed,
		c.receipts,
		c.httpRequests,
		c.httpRequestLatency,
	)

	return c
}

func (c *Collector) RecordSubmission(outcome string) {
	c.submissions.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordProcessing(status string) {
	c.processed.WithLabelValues(status).Inc()
}

func (c *Collector) RecordPaymentIntent(gateway string, ok bool) {
	result := "created"
	if !ok {
		result = "failed"
	}
	c.intents.WithLabelValues(gateway, result).Inc()
}

func (c *Collector) RecordPaymentConfirmed(gateway, source string) {
	c.confirmed.WithLabelValues(gateway, source).Inc()
}

func (c *Collector) RecordReceiptSent() {
	c.receipts.Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// Nop discards everything. Used when metrics are not wired, mostly in tests.
type Nop struct{}

func (Nop) RecordSubmission(string) {}
func (Nop) RecordProcessing(string) {}
func (Nop) RecordPaymentIntent(string, bool) {}
func (Nop) RecordPaymentConfirmed(string, string) {}
func (Nop) RecordReceiptSent() {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
