// Package metrics exposes Prometheus counters for the security workflows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensMinted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_minted_total",
			Help: "Tokens minted, by purpose",
		},
		[]string{"purpose"},
	)

	TokensRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_rejected_total",
			Help: "Token verifications that failed, by error code",
		},
		[]string{"reason"},
	)

	PasswordResetRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_password_reset_requests_total",
			Help: "Forgot-password requests, by outcome",
		},
		[]string{"outcome"},
	)

	SweptRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_swept_rows_total",
			Help: "Expired rows removed by the background sweeper, by table",
		},
		[]string{"table"},
	)
)
