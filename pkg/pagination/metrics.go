package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for partition runs.
var (
	pagesCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jira_pages_committed_total",
			Help: "Total number of pages written and checkpointed",
		},
		[]string{"partition"},
	)

	recordsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jira_records_committed_total",
			Help: "Total number of records written and checkpointed",
		},
		[]string{"partition"},
	)

	partitionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jira_partition_outcomes_total",
			Help: "Total number of finished partition runs by terminal state and reason",
		},
		[]string{"state", "reason"},
	)
)
