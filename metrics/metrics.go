package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the scraping pipeline
type Metrics struct {
	SlotsExtracted *prometheus.CounterVec
	SlotsAccepted  *prometheus.CounterVec
	SlotsRejected  *prometheus.CounterVec
	FetchFailures  *prometheus.CounterVec
	WriteFailures  prometheus.Counter
	SourcesRunning prometheus.Gauge
	CycleDuration  prometheus.Summary
}

// New registers all pipeline metrics on the default registry
func New() *Metrics {
	m := &Metrics{
		SlotsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking_scraper",
			Name:      "slots_extracted_total",
			Help:      "Candidate slots extracted from source markup",
		}, []string{"source"}),
		SlotsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking_scraper",
			Name:      "slots_accepted_total",
			Help:      "Candidate slots that passed validation",
		}, []string{"source"}),
		SlotsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking_scraper",
			Name:      "slots_rejected_total",
			Help:      "Candidate slots rejected by the normalizer",
		}, []string{"source"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking_scraper",
			Name:      "fetch_failures_total",
			Help:      "Page fetches that failed after retries, by kind",
		}, []string{"kind"}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking_scraper",
			Name:      "store_write_failures_total",
			Help:      "Slot upserts rejected by the store",
		}),
		SourcesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "booking_scraper",
			Name:      "sources_running",
			Help:      "Sources currently mid-cycle",
		}),
		CycleDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace: "booking_scraper",
			Name:      "cycle_duration_seconds",
			Help:      "Time spent on one full source cycle",
		}),
	}
	prometheus.MustRegister(
		m.SlotsExtracted, m.SlotsAccepted, m.SlotsRejected,
		m.FetchFailures, m.WriteFailures, m.SourcesRunning, m.CycleDuration,
	)
	return m
}

// Handler exposes the default registry for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
