// Package metrics provides Prometheus instrumentation for the auction house.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BidsAccepted counts accepted bids.
	BidsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auctionhouse_bids_accepted_total",
		Help: "Total number of accepted bids",
	})

	// BidsRejected counts rejected bids, partitioned by rejection reason.
	BidsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auctionhouse_bids_rejected_total",
		Help: "Total number of rejected bids",
	}, []string{"reason"})

	// AuctionsCreated counts auction cycles started.
	AuctionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auctionhouse_auctions_created_total",
		Help: "Total number of auctions created",
	})

	// AuctionsSettled counts completed settlements, partitioned by whether
	// the unit sold or went to the treasury unsold.
	AuctionsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auctionhouse_auctions_settled_total",
		Help: "Total number of auctions settled",
	}, []string{"outcome"})

	// AuctionExtensions counts anti-snipe end-time extensions.
	AuctionExtensions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auctionhouse_auction_extensions_total",
		Help: "Total number of anti-snipe auction extensions",
	})

	// RefundFallbacks counts refunds delivered via the wrapped path.
	RefundFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auctionhouse_refund_fallbacks_total",
		Help: "Refunds delivered as wrapped balance after a direct transfer failed",
	})

	// Paused tracks whether the engine is paused (1) or running (0).
	Paused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auctionhouse_paused",
		Help: "1 when the auction engine is paused",
	})

	// HighBid tracks the current auction's high bid in native base units.
	HighBid = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auctionhouse_high_bid",
		Help: "Current auction high bid in native base units",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auctionhouse_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auctionhouse_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// to keep cardinality in check.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
