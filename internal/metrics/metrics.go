package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total HTTP requests on the local surface",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request latency on the local surface",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	OTPChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_otp_challenges_issued_total",
		Help: "OTP challenges issued",
	})

	OTPChallengesVerified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_otp_challenges_verified_total",
		Help: "OTP challenges verified successfully",
	})

	OTPChallengesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_otp_challenges_expired_total",
		Help: "OTP challenges that expired before verification",
	})

	CartMergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_cart_merges_total",
		Help: "Cart merge calls made after login",
	})

	CartMergeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_cart_merge_retries_total",
		Help: "Cart merges re-invoked after a failed verification",
	})

	CartMergeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_cart_merge_failures_total",
		Help: "Cart merges still unverified after the retry",
	})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_events_published_total",
			Help: "Notification bus events published",
		},
		[]string{"event"},
	)
)
