package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kanban_sync_writes_total",
			Help: "Board writes issued by the sync engine",
		},
		[]string{"kind", "result"},
	)

	writeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kanban_sync_write_duration_seconds",
			Help:    "Duration of board writes",
			Buckets: prometheus.DefBuckets,
		},
	)

	writesCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kanban_sync_writes_coalesced_total",
			Help: "Scheduled writes replaced by a newer change before they ran",
		},
	)

	snapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kanban_sync_snapshots_total",
			Help: "Inbound board snapshots by outcome",
		},
		[]string{"outcome"},
	)
)

// Snapshot outcomes.
const (
	outcomeApplied   = "applied"
	outcomeEcho      = "echo"
	outcomeIgnored   = "ignore_window"
	outcomeUnchanged = "unchanged"
	outcomePending   = "pending_local"
	outcomeMissing   = "missing"
)
