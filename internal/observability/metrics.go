package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain collectors for the content gateway, the ledger and the batcher.
// Labels stay bounded: outcome and kind come from fixed taxonomies.
var (
	// StoreAttempts counts submit calls made to the backend, including retries.
	StoreAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "content_store_attempts_total",
		Help: "Total number of blob submit calls issued to the backend.",
	})

	// StoreOutcomes counts completed Store calls by final outcome
	// (remote, existing, local-fallback, or an error kind).
	StoreOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "content_store_outcomes_total",
		Help: "Completed content store operations by outcome.",
	}, []string{"outcome"})

	// StoreLatency observes end-to-end Store duration, retries included.
	StoreLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "content_store_duration_seconds",
		Help:    "Duration of content store operations in seconds.",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})

	// RetrieveOutcomes counts Retrieve calls by outcome.
	RetrieveOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "content_retrieve_outcomes_total",
		Help: "Completed content retrieve operations by outcome.",
	}, []string{"outcome"})

	// LedgerDepth gauges the number of pending interactions.
	LedgerDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_pending_interactions",
		Help: "Interactions waiting for the next batch.",
	})

	// LedgerDropped counts interactions evicted by the overflow policy.
	LedgerDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_dropped_total",
		Help: "Pending interactions dropped because the ledger was full.",
	})

	// BatchesCommitted counts batches created by the batcher.
	BatchesCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batches_committed_total",
		Help: "Total number of committed interaction batches.",
	})

	// BatchSize observes the record count of each committed batch.
	BatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batch_size_records",
		Help:    "Number of interactions per committed batch.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 9), // 1..65536
	})

	// EvidenceUploads counts evidence blob uploads by result (ok, error).
	EvidenceUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_evidence_uploads_total",
		Help: "Evidence blob uploads for committed batches by result.",
	}, []string{"result"})

	// PersistFailures counts batches that could not be written to the database.
	PersistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batch_persist_failures_total",
		Help: "Committed batches whose database write failed.",
	})
)

func init() {
	prometheus.MustRegister(
		StoreAttempts, StoreOutcomes, StoreLatency, RetrieveOutcomes,
		LedgerDepth, LedgerDropped,
		BatchesCommitted, BatchSize, EvidenceUploads, PersistFailures,
	)
}
