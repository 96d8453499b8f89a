package analysis

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"slices"

	"github.com/edp1096/toy-powerflow/internal/logging"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
	"github.com/edp1096/toy-powerflow/pkg/solver"
)

// Result is the outcome of one Newton run. V is in permuted order.
type Result struct {
	V          []complex128
	Iterations int
	Converged  bool
	State      State
	Mismatch   float64   // final infinity-norm of the mismatch
	History    []float64 // mismatch norm before each update, plus the final one
}

var _ Analysis = (*NewtonRaphson)(nil)

// NewtonRaphson solves one System with a caller-owned linear backend. Roles
// are fixed for the whole run.
type NewtonRaphson struct {
	BaseAnalysis
	backend solver.Backend

	sys   *System
	state State
	res   Result
}

func NewNewtonRaphson(backend solver.Backend) *NewtonRaphson {
	return &NewtonRaphson{
		BaseAnalysis: *NewBaseAnalysis(),
		backend:      backend,
	}
}

func (nr *NewtonRaphson) Setup(sys *System) error {
	if err := sys.validate(); err != nil {
		return err
	}
	for k := sys.NSlack; k < sys.Size(); k++ {
		if cmplx.Abs(sys.V[k]) == 0 {
			return pferr.Topology("zero initial voltage magnitude at position %d", k)
		}
	}

	nr.sys = sys
	nr.state = Init
	nr.res = Result{}
	nr.resetResults()
	return nil
}

func (nr *NewtonRaphson) State() State { return nr.state }

func (nr *NewtonRaphson) Result() Result { return nr.res }

// Execute iterates until the mismatch drops below the tolerance or the
// iteration budget is spent. Running out of iterations is reported through
// the result, not as an error. ctx only carries logging values.
func (nr *NewtonRaphson) Execute(ctx context.Context) error {
	if nr.sys == nil {
		return errors.New("analysis: Execute called before Setup")
	}

	sys := nr.sys
	ns, npv, npq := sys.NSlack, sys.NPV, sys.NPQ
	m := npv + npq
	pq := ns + npv

	v := slices.Clone(sys.V)
	vm := make([]float64, len(v))
	va := make([]float64, len(v))
	for k, x := range v {
		vm[k], va[k] = cmplx.Abs(x), cmplx.Phase(x)
	}

	nr.state = Iterating
	iter := 0
	var history []float64

	for {
		s, cur := PowerInjection(sys.Y, v)
		f := Mismatch(s, sys.S, ns, npv, npq)
		norm := maxAbs(f)
		history = append(history, norm)
		nr.StoreIterResult(iter, norm)
		nr.logger.Debug(ctx, "newton iteration", logging.Int("iter", iter), logging.Float("mismatch", norm))

		if norm < nr.convergence.tol {
			nr.state = Converged
			break
		}
		if iter >= nr.convergence.maxIter {
			nr.state = MaxIterationsExceeded
			break
		}

		jac := Jacobian(sys.Y, v, cur, ns, npv, npq)
		rhs := make([]float64, len(f))
		for k := range f {
			rhs[k] = -f[k]
		}

		dx, err := nr.backend.Solve(jac, rhs)
		if err != nil {
			nr.state = SolveFailed
			nr.res = Result{V: v, Iterations: iter, State: nr.state, Mismatch: norm, History: history}
			return solveError(err, iter+1, nr.backend.Name())
		}

		for k := 0; k < m; k++ {
			va[ns+k] += dx[k]
		}
		for k := 0; k < npq; k++ {
			vm[pq+k] += dx[m+k]
		}
		for k := ns; k < len(v); k++ {
			v[k] = cmplx.Rect(vm[k], va[k])
		}
		iter++
	}

	nr.res = Result{
		V:          v,
		Iterations: iter,
		Converged:  nr.state == Converged,
		State:      nr.state,
		Mismatch:   history[len(history)-1],
		History:    history,
	}
	return nil
}

// solveError tags a backend failure with the iteration it happened in.
func solveError(err error, iter int, backend string) error {
	var se *pferr.SolveError
	if errors.As(err, &se) {
		out := *se
		out.Iteration = iter
		if out.Backend == "" {
			out.Backend = backend
		}
		return &out
	}
	return &pferr.SolveError{Iteration: iter, Backend: backend, Err: err}
}

func maxAbs(x []float64) float64 {
	out := 0.0
	for _, v := range x {
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		out = math.Max(out, math.Abs(v))
	}
	return out
}
