package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taskboard", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taskboard", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	// AuthChecks counts session checks by outcome: cache_hit, verified, rejected, no_token.
	AuthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taskboard", Name: "auth_checks_total", Help: "Session validity checks by outcome."},
		[]string{"outcome"},
	)
	SessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "taskboard", Name: "sessions_expired_total", Help: "Sessions cleared after the backend rejected the token."},
	)
	// PollRefreshes counts refresh cycles by result: applied, superseded, expired, failed, skipped.
	PollRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taskboard", Name: "poll_refreshes_total", Help: "Task refresh cycles by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(AuthChecks)
	reg.MustRegister(SessionsExpired)
	reg.MustRegister(PollRefreshes)
}
