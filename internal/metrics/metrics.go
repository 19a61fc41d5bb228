package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage counters and histograms for the ingestion path. Feed metrics
// are unlabelled (one logical upstream connection per process).

var (
	// Feed connection
	FeedMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "feed",
		Name:      "messages_received_total",
		Help:      "Total raw frames received from the upstream feed",
	})

	FeedMessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "feed",
		Name:      "messages_processed_total",
		Help:      "Total frames decoded into canonical events",
	})

	FeedDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "feed",
		Name:      "decode_errors_total",
		Help:      "Total frames that failed to decode",
	})

	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "feed",
		Name:      "reconnects_total",
		Help:      "Total reconnection attempts scheduled",
	})

	FeedConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aisight",
		Subsystem: "feed",
		Name:      "connection_state",
		Help:      "Current connection state (0=disconnected, 1=connecting, 2=connected)",
	})

	// Validator
	ValidationRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "pipeline",
		Name:      "validation_rejections_total",
		Help:      "Total events rejected by range validation",
	}, []string{"kind", "rule"})

	// Pipeline
	PipelineEventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "pipeline",
		Name:      "events_processed_total",
		Help:      "Total events accepted by the pipeline",
	}, []string{"kind"})

	PipelineBatchesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "pipeline",
		Name:      "batches_flushed_total",
		Help:      "Total position batches flushed to the durable store",
	})

	PipelineBatchFlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "pipeline",
		Name:      "batch_flush_errors_total",
		Help:      "Total batch flushes that failed (batch discarded)",
	})

	PipelinePositionsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "pipeline",
		Name:      "positions_written_total",
		Help:      "Total position rows durably inserted",
	})

	PipelinePositionsFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "pipeline",
		Name:      "positions_filtered_total",
		Help:      "Total position rows dropped before flush (unknown vessel)",
	})

	PipelineBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aisight",
		Subsystem: "pipeline",
		Name:      "batch_size",
		Help:      "Current number of position events in the in-memory batch",
	})

	PipelineFlushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aisight",
		Subsystem: "pipeline",
		Name:      "flush_duration_seconds",
		Help:      "Batch flush duration (bulk insert + latest-position upsert)",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	// Cache
	CacheWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "cache",
		Name:      "write_errors_total",
		Help:      "Total cache write failures (non-fatal)",
	}, []string{"op"})

	CacheWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "cache",
		Name:      "writes_total",
		Help:      "Total cache writes",
	}, []string{"op"})

	// Broadcast
	BroadcastDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "broadcast",
		Name:      "events_delivered_total",
		Help:      "Total events delivered to subscribers",
	}, []string{"type"})

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "broadcast",
		Name:      "events_dropped_total",
		Help:      "Total events dropped because a subscriber channel was full",
	})

	BroadcastSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aisight",
		Subsystem: "broadcast",
		Name:      "subscribers",
		Help:      "Current number of registered subscribers",
	})

	// Region scheduler
	SchedulerRotations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "scheduler",
		Name:      "rotations_total",
		Help:      "Total region rotations",
	})

	SchedulerCyclesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "scheduler",
		Name:      "cycles_completed_total",
		Help:      "Total complete passes over the region list",
	})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Total alerts sent, by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisight",
		Subsystem: "alerts",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts suppressed by cooldown, by channel and type",
	}, []string{"channel", "type"})
)
