package ports

import "github.com/proctorline/relay/internal/domain"

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)
	SetGauge(name string, v float64)

	// SetNetworkStatus reflects delivery health on the host's status badge.
	SetNetworkStatus(s domain.NetworkStatus)
	// Notify raises a user-visible notification (e.g. session expiry).
	Notify(level domain.AlertLevel, code string)
	// RecordDrop registers a dead-lettered queue entry.
	RecordDrop(queue string, seq uint64, err error)
}

type Field struct {
	Key   string
	Value any
}
