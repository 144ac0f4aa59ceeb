package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Ingest groups the counters and timings published by the mail poller.
type Ingest struct {
	PollCycles              prometheus.Counter
	PollFailures            *prometheus.CounterVec
	MessagesProcessed       *prometheus.CounterVec
	MessagesFailed          *prometheus.CounterVec
	MessagesDeduplicated    *prometheus.CounterVec
	ClassificationFallbacks *prometheus.CounterVec
	CycleDuration           prometheus.Histogram
}

// NewIngest registers the ingest metric set on the given registerer.
func NewIngest(reg prometheus.Registerer) *Ingest {
	m := &Ingest{
		PollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deskgo_ingest_poll_cycles_total",
			Help: "Completed poll cycles across all mailboxes.",
		}),
		PollFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskgo_ingest_poll_failures_total",
			Help: "Mailbox polls that ended in an error state.",
		}, []string{"mailbox"}),
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskgo_ingest_messages_processed_total",
			Help: "Inbound messages turned into tickets.",
		}, []string{"mailbox"}),
		MessagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskgo_ingest_messages_failed_total",
			Help: "Inbound messages that failed processing.",
		}, []string{"mailbox"}),
		MessagesDeduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskgo_ingest_messages_deduplicated_total",
			Help: "Inbound messages skipped because they were already processed.",
		}, []string{"mailbox"}),
		ClassificationFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskgo_ingest_classification_fallbacks_total",
			Help: "Messages routed with mailbox defaults after classification failed.",
		}, []string{"mailbox"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deskgo_ingest_cycle_duration_seconds",
			Help:    "Wall time of a full poll cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.PollCycles,
			m.PollFailures,
			m.MessagesProcessed,
			m.MessagesFailed,
			m.MessagesDeduplicated,
			m.ClassificationFallbacks,
			m.CycleDuration,
		)
	}
	return m
}

// NewIngestUnregistered returns the metric set without registration, for tests.
func NewIngestUnregistered() *Ingest {
	return NewIngest(nil)
}
