package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics exposes Prometheus collectors for session lifecycle counters.
type SessionMetrics struct {
	Issued                *prometheus.CounterVec
	Validations           *prometheus.CounterVec
	Reaped                prometheus.Counter
	CacheEvictionFailures prometheus.Counter
}

// NewSessionMetrics constructs and registers the session lifecycle collectors.
// Double registration reuses the existing collectors so tests and restarts
// within one process stay safe.
func NewSessionMetrics(reg prometheus.Registerer) (*SessionMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	issued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessions",
		Name:      "issued_total",
		Help:      "Total number of session credentials minted, partitioned by issuance kind.",
	}, []string{"kind"})
	issued, err := registerCounterVec(reg, issued)
	if err != nil {
		return nil, err
	}

	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessions",
		Name:      "validations_total",
		Help:      "Total number of token validations, partitioned by outcome.",
	}, []string{"outcome"})
	validations, err = registerCounterVec(reg, validations)
	if err != nil {
		return nil, err
	}

	reaped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sessions",
		Name:      "reaped_total",
		Help:      "Total number of expired session rows removed by background sweeps.",
	}))
	if err != nil {
		return nil, err
	}

	evictionFailures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sessions",
		Name:      "cache_eviction_failures_total",
		Help:      "Total number of cache evictions that failed during sweeps.",
	}))
	if err != nil {
		return nil, err
	}

	return &SessionMetrics{
		Issued:                issued,
		Validations:           validations,
		Reaped:                reaped,
		CacheEvictionFailures: evictionFailures,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register counter vec: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register counter: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return counter, nil
}
