package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roundsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ludoteko_rounds_completed_total",
		Help: "Rounds completed, per game.",
	}, []string{"game"})

	roundsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ludoteko_rounds_failed_total",
		Help: "Rounds failed, per game.",
	}, []string{"game"})

	scoreAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ludoteko_score_awarded_total",
		Help: "Total score points awarded.",
	})

	syncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ludoteko_remote_sync_failures_total",
		Help: "Failed remote record operations, per column.",
	}, []string{"column"})
)
