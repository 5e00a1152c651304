package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ListingPagesTotal   *prometheus.CounterVec
	DetailFetchesTotal  *prometheus.CounterVec
	ImagesTotal         *prometheus.CounterVec
	PostsPersistedTotal *prometheus.CounterVec
	RunsTotal           *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the crawler metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ListingPagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_listing_pages_total",
			Help: "Listing pages fetched, by section and outcome.",
		}, []string{"section", "status"}), // status: ok, fetch_failed, empty, exhausted
		DetailFetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_detail_fetches_total",
			Help: "Detail page fetches, by outcome.",
		}, []string{"status"}),
		ImagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_images_total",
			Help: "Images materialized, by result.",
		}, []string{"result"}), // downloaded, cached, failed
		PostsPersistedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_posts_persisted_total",
			Help: "Rows submitted to the post store, by write mode.",
		}, []string{"mode"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_runs_total",
			Help: "Crawl runs, by terminal status.",
		}, []string{"status"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_fetch_duration_seconds",
			Help:    "Duration of outbound HTTP fetches.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// NewNop returns metrics registered against a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
