package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

// DenseLU expands the system and factorizes it from scratch on every call.
// It serves as the reference backend for small networks.
type DenseLU struct {
	lu    mat.LU
	stats Stats
}

func NewDenseLU() *DenseLU { return &DenseLU{} }

func (d *DenseLU) Name() string { return Dense }

func (d *DenseLU) Stats() Stats { return d.stats }

func (d *DenseLU) Reset() {}

func (d *DenseLU) Solve(a *matrix.CSR[float64], b []float64) ([]float64, error) {
	checkDims(a, b)
	n := a.N
	if n == 0 {
		return []float64{}, nil
	}

	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			data[i*n+a.ColIdx[k]] += a.Val[k]
		}
	}

	d.lu.Factorize(mat.NewDense(n, n, data))
	d.stats.Symbolic++
	if c := d.lu.Cond(); math.IsInf(c, 1) || math.IsNaN(c) || c > mat.ConditionTolerance {
		return nil, d.fail(mat.Condition(c))
	}

	var x mat.VecDense
	if err := d.lu.SolveVecTo(&x, false, mat.NewVecDense(n, append([]float64(nil), b...))); err != nil {
		return nil, d.fail(err)
	}
	d.stats.Solves++

	out := make([]float64, n)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	if !allFinite(out) {
		return nil, d.fail(errNotFinite)
	}
	return out, nil
}

func (d *DenseLU) fail(err error) error {
	return &pferr.SolveError{Iteration: -1, Backend: Dense, Err: err}
}
