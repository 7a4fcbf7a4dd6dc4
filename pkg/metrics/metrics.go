package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "promptreq", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "promptreq", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter."},
		[]string{"limiter"},
	)
	RevisionOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "promptreq", Name: "revision_operations_total", Help: "Revision coordinator operations by operation and outcome."},
		[]string{"op", "outcome"},
	)
	BlobCleanups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "promptreq", Name: "blob_cleanup_total", Help: "Best-effort blob deletions by reason and outcome."},
		[]string{"reason", "outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(RevisionOps)
	reg.MustRegister(BlobCleanups)
}
