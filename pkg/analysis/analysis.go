package analysis

import (
	"context"
	"fmt"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/internal/logging"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

type Analysis interface {
	Setup(sys *System) error
	Execute(ctx context.Context) error
	GetResults() map[string][]float64
}

type State int

const (
	Init State = iota
	Iterating
	Converged
	MaxIterationsExceeded
	SolveFailed
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case MaxIterationsExceeded:
		return "max-iterations-exceeded"
	case SolveFailed:
		return "solve-failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// System is one power-flow problem in permuted [Slack, PV, PQ] order.
type System struct {
	Y *matrix.CSR[complex128]
	S []complex128 // target injection
	V []complex128 // initial voltage

	NSlack int
	NPV    int
	NPQ    int
}

func (s *System) Size() int { return s.NSlack + s.NPV + s.NPQ }

func (s *System) validate() error {
	n := s.Size()
	if s.Y == nil || s.Y.N != n || len(s.S) != n || len(s.V) != n {
		return fmt.Errorf("analysis: inconsistent system dimensions")
	}
	return nil
}

type BaseAnalysis struct {
	results     map[string][]float64 // key: variable name, value: result by iteration
	logger      logging.Logger
	convergence struct {
		maxIter int
		tol     float64
	}
}

func NewBaseAnalysis() *BaseAnalysis {
	ba := &BaseAnalysis{
		results: make(map[string][]float64),
		logger:  logging.Noop(),
	}

	ba.convergence.maxIter = consts.DefaultMaxIterations
	ba.convergence.tol = consts.DefaultTolerance

	return ba
}

// SetConvergence overrides the tolerance on the mismatch infinity-norm and the
// iteration budget. Non-positive values keep the current setting.
func (a *BaseAnalysis) SetConvergence(tol float64, maxIter int) {
	if tol > 0 {
		a.convergence.tol = tol
	}
	if maxIter > 0 {
		a.convergence.maxIter = maxIter
	}
}

func (a *BaseAnalysis) SetLogger(l logging.Logger) {
	a.logger = logging.OrNoop(l)
}

func (a *BaseAnalysis) StoreIterResult(iter int, mismatch float64) {
	a.results["ITER"] = append(a.results["ITER"], float64(iter))
	a.results["MISMATCH"] = append(a.results["MISMATCH"], mismatch)
}

// StoreStepResult appends one step of a parameter sweep: the swept value
// under key and one entry per named quantity.
func (a *BaseAnalysis) StoreStepResult(key string, value float64, solution map[string]float64) {
	a.results[key] = append(a.results[key], value)
	for name, v := range solution {
		a.results[name] = append(a.results[name], v)
	}
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}

func (a *BaseAnalysis) resetResults() {
	a.results = make(map[string][]float64)
}
