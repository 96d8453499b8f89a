package matrix

import (
	"fmt"
	"io"
	"math/cmplx"
)

// PrintSystem dumps the nonzero structure of a complex matrix one equation per row.
func PrintSystem(w io.Writer, title string, a *CSR[complex128]) {
	fmt.Fprintf(w, "\n%s (%dx%d, nnz=%d):\n", title, a.N, a.N, a.NNZ())

	for i := 0; i < a.N; i++ {
		fmt.Fprintf(w, "Row %d:", i)
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			v := a.Val[k]
			if imag(v) == 0 {
				fmt.Fprintf(w, "  %+g*x%d", real(v), a.ColIdx[k])
			} else {
				fmt.Fprintf(w, "  (%g %+gj)*x%d", real(v), imag(v), a.ColIdx[k])
			}
		}
		fmt.Fprintln(w)
	}
}

// PrintSummary prints size, density and magnitude range, like a sparse package status dump.
func PrintSummary[T Scalar](w io.Writer, a *CSR[T]) {
	maxMag, minMag := 0.0, 1.79e+308
	for _, v := range a.Val {
		mag := magnitude(v)
		if mag == 0 {
			continue
		}
		maxMag = max(maxMag, mag)
		minMag = min(minMag, mag)
	}
	if a.NNZ() == 0 {
		minMag = 0
	}

	fmt.Fprintln(w, "\nMATRIX SUMMARY")
	fmt.Fprintf(w, "Size of matrix = %d x %d\n", a.N, a.N)
	fmt.Fprintf(w, "Stored elements = %d\n", a.NNZ())
	fmt.Fprintf(w, "Largest element magnitude = %.3g\n", maxMag)
	fmt.Fprintf(w, "Smallest element magnitude = %.3g\n", minMag)
	if a.N > 0 {
		fmt.Fprintf(w, "Density = %.2f%%\n", float64(a.NNZ())*100/float64(a.N*a.N))
	}
}

func magnitude[T Scalar](v T) float64 {
	switch x := any(v).(type) {
	case float64:
		if x < 0 {
			return -x
		}
		return x
	case complex128:
		return cmplx.Abs(x)
	}
	return 0
}
