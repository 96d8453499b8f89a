package analysis

import (
	"math/cmplx"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

// Jacobian assembles the real Newton matrix
//
//	| ∂P/∂Va  ∂P/∂Vm |   rows: P for PV+PQ, Q for PQ
//	| ∂Q/∂Va  ∂Q/∂Vm |   cols: Va for PV+PQ, Vm for PQ
//
// from the complex derivatives
//
//	∂S/∂Vm = diag(V)·conj(Y·diag(Vn)) + diag(conj(I))·diag(Vn)
//	∂S/∂Va = j·diag(V)·conj(diag(I) - Y·diag(V))
//
// with Vn = V/|V| and I = Y·V. Entries follow the pattern of Y, including its
// explicit zeros, so the result has the same sparsity pattern for every
// iteration of one system.
func Jacobian(y *matrix.CSR[complex128], v, i []complex128, nSlack, nPV, nPQ int) *matrix.CSR[float64] {
	m := nPV + nPQ
	pq := nSlack + nPV // first PQ position
	t := matrix.NewTriplet[float64](m + nPQ)

	vn := make([]complex128, len(v))
	for k := range v {
		vn[k] = v[k] / complex(cmplx.Abs(v[k]), 0)
	}

	for r := nSlack; r < y.N; r++ {
		for k := y.RowPtr[r]; k < y.RowPtr[r+1]; k++ {
			c := y.ColIdx[k]
			if c < nSlack {
				continue
			}
			yrc := y.Val[k]

			dVm := v[r] * cmplx.Conj(yrc*vn[c])
			dVa := -v[r] * cmplx.Conj(yrc*v[c])
			if r == c {
				dVm += cmplx.Conj(i[r]) * vn[r]
				dVa += v[r] * cmplx.Conj(i[r])
			}
			dVa *= 1i

			t.AddElement(r-nSlack, c-nSlack, real(dVa))
			if c >= pq {
				t.AddElement(r-nSlack, m+c-pq, real(dVm))
			}
			if r >= pq {
				t.AddElement(m+r-pq, c-nSlack, imag(dVa))
				if c >= pq {
					t.AddElement(m+r-pq, m+c-pq, imag(dVm))
				}
			}
		}
	}

	return t.ToCSR()
}
