package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckpointCommits tracks successfully persisted partition commits.
	CheckpointCommits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jira_checkpoint_commits_total",
			Help: "Total number of checkpoint commits persisted",
		},
	)

	// CheckpointErrors tracks checkpoint backend failures.
	CheckpointErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jira_checkpoint_errors_total",
			Help: "Total number of checkpoint operation errors",
		},
		[]string{"operation"}, // "load", "save", "delete"
	)

	// CheckpointResets tracks loads that fell back to an empty checkpoint.
	CheckpointResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jira_checkpoint_resets_total",
			Help: "Total number of times an unreadable checkpoint was replaced by an empty one",
		},
	)
)
