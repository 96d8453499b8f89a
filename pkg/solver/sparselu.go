package solver

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/edp1096/sparse"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

var (
	errNotFinite  = errors.New("solution is not finite")
	errSmallPivot = errors.New("matrix is singular or near-singular")
	errResidual   = errors.New("solution residual exceeds tolerance")
)

// residualTol bounds ‖b - A·x‖∞ relative to ‖A‖∞·‖x‖∞ + ‖b‖∞.
var residualTol = math.Sqrt(epsilon)

const epsilon = 0x1p-52

// SparseLU wraps a Markowitz-ordered sparse LU. With reuse enabled, the pivot
// order of the last factorization is kept while the incoming pattern stays
// byte-identical and only a numeric refactorization is done.
type SparseLU struct {
	reuse bool

	mat     *sparse.Matrix
	pattern *matrix.CSR[float64]
	elems   []*sparse.Element // one per stored entry of pattern, in CSR order

	stats Stats
}

func NewSparseLU(reuse bool) *SparseLU {
	return &SparseLU{reuse: reuse}
}

func (s *SparseLU) Name() string {
	if s.reuse {
		return Sparse
	}
	return SparseNoCache
}

func (s *SparseLU) Stats() Stats { return s.stats }

func (s *SparseLU) Reset() {
	if s.mat != nil {
		s.mat.Destroy()
	}
	s.mat = nil
	s.pattern = nil
	s.elems = nil
}

func (s *SparseLU) Solve(a *matrix.CSR[float64], b []float64) ([]float64, error) {
	checkDims(a, b)
	if a.N == 0 {
		return []float64{}, nil
	}

	if err := s.factor(a); err != nil {
		s.Reset()
		return nil, s.fail(err)
	}

	x, err := s.solveChecked(a, b)
	if err == nil {
		return x, nil
	}

	// Diagonal pivoting accepted a pivot that is tiny next to its column.
	// Search the whole matrix once before giving up.
	if err := s.reorder(a); err != nil {
		s.Reset()
		return nil, s.fail(err)
	}
	x, err = s.solveChecked(a, b)
	if err != nil {
		s.Reset()
		return nil, s.fail(err)
	}
	return x, nil
}

// solveChecked runs the triangular solves on the current factors and rejects
// the result when a pivot is negligible or the residual is too large.
func (s *SparseLU) solveChecked(a *matrix.CSR[float64], b []float64) ([]float64, error) {
	if err := s.checkPivots(a); err != nil {
		return nil, err
	}

	rhs := make([]float64, a.N+1) // 1-based
	copy(rhs[1:], b)
	x, err := s.mat.Solve(rhs)
	if err != nil {
		return nil, err
	}
	s.stats.Solves++

	out := make([]float64, a.N)
	copy(out, x[1:a.N+1])
	if !allFinite(out) {
		return nil, errNotFinite
	}
	if relResidual(a, out, b) > residualTol {
		return nil, errResidual
	}
	return out, nil
}

// checkPivots fails when some pivot is below n·eps·max|A|. Diags hold the
// reciprocal of each pivot after factorization.
func (s *SparseLU) checkPivots(a *matrix.CSR[float64]) error {
	limit := float64(a.N) * epsilon * maxAbs(a.Val)
	for i := 1; i <= a.N; i++ {
		d := s.mat.Diags[i]
		if d == nil || d.Real == 0 {
			return errSmallPivot
		}
		if 1/math.Abs(d.Real) <= limit {
			return fmt.Errorf("%w: pivot %.3g at step %d", errSmallPivot, 1/d.Real, i)
		}
	}
	return nil
}

// reorder refactorizes with a pivot search over the entire matrix.
func (s *SparseLU) reorder(a *matrix.CSR[float64]) error {
	s.load(a)
	s.mat.NeedsOrdering = true
	s.stats.Symbolic++
	return s.mat.OrderAndFactor(nil, s.mat.RelThreshold, 0, false)
}

func (s *SparseLU) factor(a *matrix.CSR[float64]) error {
	if !s.reuse || !s.pattern.SamePattern(a) {
		return s.analyze(a)
	}

	s.load(a)
	if err := s.mat.Factor(); err == nil {
		s.stats.Numeric++
		return nil
	}

	// the cached pivot sequence hit a zero pivot for these values
	s.load(a)
	s.mat.NeedsOrdering = true
	s.stats.Symbolic++
	return s.mat.Factor()
}

// analyze rebuilds the element structure for a new pattern and runs a full
// ordering plus factorization.
func (s *SparseLU) analyze(a *matrix.CSR[float64]) error {
	s.Reset()

	config := &sparse.Configuration{
		Real:             true,
		Complex:          false,
		Expandable:       true,
		Translate:        false,
		ModifiedNodal:    true,
		TiesMultiplier:   5,
		DefaultPartition: sparse.AUTO_PARTITION,
		PrinterWidth:     140,
	}
	mat, err := sparse.Create(int64(a.N), config)
	if err != nil {
		return err
	}

	s.mat = mat
	s.elems = make([]*sparse.Element, 0, a.NNZ())
	for i := 0; i < a.N; i++ {
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			el := mat.GetElement(int64(i+1), int64(a.ColIdx[k]+1))
			if el == nil {
				return fmt.Errorf("element (%d,%d) could not be allocated", i, a.ColIdx[k])
			}
			s.elems = append(s.elems, el)
		}
	}
	s.pattern = &matrix.CSR[float64]{N: a.N, RowPtr: slices.Clone(a.RowPtr), ColIdx: slices.Clone(a.ColIdx)}

	s.load(a)
	s.stats.Symbolic++
	return s.mat.Factor()
}

func (s *SparseLU) load(a *matrix.CSR[float64]) {
	s.mat.Clear()
	for k, el := range s.elems {
		el.Real = a.Val[k]
	}
}

func (s *SparseLU) fail(err error) error {
	return &pferr.SolveError{Iteration: -1, Backend: s.Name(), Err: err}
}
