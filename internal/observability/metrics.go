package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Solve outcomes used as the "outcome" label.
const (
	OutcomeConverged    = "converged"
	OutcomeNotConverged = "not_converged"
	OutcomeSolveFailed  = "solve_failed"
	OutcomeInvalid      = "invalid_topology"
)

// SolverCollector bundles the Prometheus metrics of the power-flow solver.
// All methods are safe on a nil receiver so callers can leave metrics off.
type SolverCollector struct {
	gatherer prometheus.Gatherer

	Solves          *prometheus.CounterVec
	Iterations      *prometheus.HistogramVec
	Durations       *prometheus.HistogramVec
	Factorizations  *prometheus.CounterVec
	QLimitSwitches  prometheus.Counter
	NetworkNodes    prometheus.Gauge
	NetworkBranches prometheus.Gauge
}

// NewSolverCollector registers solver metrics against reg, defaulting to the
// global Prometheus registry when nil. Registering twice on the same registry
// returns collectors bound to the existing metrics.
func NewSolverCollector(reg prometheus.Registerer) (*SolverCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	solves, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powerflow_solves_total",
		Help: "Power-flow solves, labeled by backend and outcome.",
	}, []string{"backend", "outcome"}), "powerflow_solves_total")
	if err != nil {
		return nil, err
	}

	iterations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "powerflow_newton_iterations",
		Help:    "Newton iterations per solve.",
		Buckets: prometheus.LinearBuckets(0, 1, 21),
	}, []string{"backend"}), "powerflow_newton_iterations")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "powerflow_solve_duration_seconds",
		Help:    "Wall time of a complete solve in seconds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"backend"}), "powerflow_solve_duration_seconds")
	if err != nil {
		return nil, err
	}

	factorizations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powerflow_factorizations_total",
		Help: "Linear-solver factorizations, labeled by backend and kind (symbolic or numeric).",
	}, []string{"backend", "kind"}), "powerflow_factorizations_total")
	if err != nil {
		return nil, err
	}

	switches, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "powerflow_qlimit_switches_total",
		Help: "PV nodes converted to PQ because of reactive power limits.",
	}), "powerflow_qlimit_switches_total")
	if err != nil {
		return nil, err
	}

	nodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "powerflow_network_nodes",
		Help: "Node count of the most recently solved network.",
	}), "powerflow_network_nodes")
	if err != nil {
		return nil, err
	}
	branches, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "powerflow_network_branches",
		Help: "Branch stamp count of the most recently solved network.",
	}), "powerflow_network_branches")
	if err != nil {
		return nil, err
	}

	return &SolverCollector{
		gatherer:        gatherer,
		Solves:          solves,
		Iterations:      iterations,
		Durations:       durations,
		Factorizations:  factorizations,
		QLimitSwitches:  switches,
		NetworkNodes:    nodes,
		NetworkBranches: branches,
	}, nil
}

// ObserveSolve records one finished solve.
func (c *SolverCollector) ObserveSolve(backend, outcome string, iterations int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Solves.WithLabelValues(backend, outcome).Inc()
	if outcome == OutcomeInvalid {
		return
	}
	c.Iterations.WithLabelValues(backend).Observe(float64(iterations))
	c.Durations.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func (c *SolverCollector) AddFactorizations(backend string, symbolic, numeric int) {
	if c == nil {
		return
	}
	if symbolic > 0 {
		c.Factorizations.WithLabelValues(backend, "symbolic").Add(float64(symbolic))
	}
	if numeric > 0 {
		c.Factorizations.WithLabelValues(backend, "numeric").Add(float64(numeric))
	}
}

func (c *SolverCollector) AddQLimitSwitches(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.QLimitSwitches.Add(float64(n))
}

func (c *SolverCollector) SetNetworkSize(nodes, branches int) {
	if c == nil {
		return
	}
	c.NetworkNodes.Set(float64(nodes))
	c.NetworkBranches.Set(float64(branches))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SolverCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
