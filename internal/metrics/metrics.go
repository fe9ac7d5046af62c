// Package metrics exposes prometheus collectors for provisioning outcomes.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/peephost/internal/domain"
)

const namespace = "peephost"

// Metrics records lifecycle, remediation and teardown outcomes.
type Metrics struct {
	operations   *prometheus.CounterVec
	remediations *prometheus.CounterVec
	teardown     *prometheus.CounterVec
}

// New registers the collectors with reg. Collectors already registered by an
// earlier call are reused.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Number of project lifecycle operations by outcome",
		}, []string{"op", "outcome"}),
		remediations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remediation_attempts_total",
			Help:      "Number of service restart remediation attempts",
		}, []string{"service", "fix", "outcome"}),
		teardown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardown_steps_total",
			Help:      "Number of teardown steps by outcome",
		}, []string{"step", "outcome"}),
	}
	m.operations = Register(reg, m.operations)
	m.remediations = Register(reg, m.remediations)
	m.teardown = Register(reg, m.teardown)
	return m
}

// Register adds c to reg and returns it, or the collector of the same
// description that an earlier call registered.
func Register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveOperation counts a finished lifecycle operation.
func (m *Metrics) ObserveOperation(op string, err error) {
	m.operations.With(prometheus.Labels{"op": op, "outcome": outcome(err)}).Inc()
}

// ObserveRemediation counts a remediation attempt.
func (m *Metrics) ObserveRemediation(service string, fix domain.FixType, result string) {
	m.remediations.With(prometheus.Labels{"service": service, "fix": string(fix), "outcome": result}).Inc()
}

// ObserveTeardownStep counts a teardown step.
func (m *Metrics) ObserveTeardownStep(step string, err error) {
	m.teardown.With(prometheus.Labels{"step": step, "outcome": outcome(err)}).Inc()
}
