package tablesession

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "table_session_validations_total",
			Help: "Session validations by outcome code",
		},
		[]string{"code"},
	)

	devicesRegisteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "table_session_device_registrations_total",
			Help: "Device registrations by result (new or returning)",
		},
		[]string{"result"},
	)

	sessionsFlaggedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "table_session_flagged_total",
			Help: "Sessions flagged as suspicious (auto or manual)",
		},
		[]string{"source"},
	)

	sessionsExpiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "table_session_expired_total",
			Help: "Sessions moved to expired (lazy on access or by sweep)",
		},
		[]string{"path"},
	)
)
