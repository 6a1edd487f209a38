package shield

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the package. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	logins        *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	invalidations *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg, or on the default registerer
// when reg is nil. Registering twice reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logins, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: "shield",
		Name:      "logins_total",
		Help:      "Login attempts by driver and outcome.",
	}, "driver", "outcome")
	if err != nil {
		return nil, err
	}

	sessions, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: "shield",
		Name:      "session_operations_total",
		Help:      "Logout and refresh operations by driver, operation and outcome.",
	}, "driver", "operation", "outcome")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: "shield",
		Name:      "authz_cache_lookups_total",
		Help:      "Authorization cache lookups by result.",
	}, "result")
	if err != nil {
		return nil, err
	}

	invalidations, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: "shield",
		Name:      "authz_cache_invalidations_total",
		Help:      "Authorization cache invalidations by scope.",
	}, "scope")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		logins:        logins,
		sessions:      sessions,
		cacheLookups:  lookups,
		invalidations: invalidations,
	}, nil
}

func (m *Metrics) login(driver Driver, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(string(driver), outcome).Inc()
}

func (m *Metrics) session(driver Driver, op, outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(string(driver), op, outcome).Inc()
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) invalidation(scope string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(scope).Inc()
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}
