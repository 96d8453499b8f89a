package matrix

import (
	"fmt"
	"slices"
	"sort"
)

// CSR is a square compressed-sparse-row matrix with sorted column indices.
type CSR[T Scalar] struct {
	N      int
	RowPtr []int
	ColIdx []int
	Val    []T
}

func (a *CSR[T]) NNZ() int { return len(a.Val) }

// At returns the stored value at (i, j), or zero when the position is not in
// the pattern.
func (a *CSR[T]) At(i, j int) T {
	var zero T
	if i < 0 || i >= a.N {
		return zero
	}
	lo, hi := a.RowPtr[i], a.RowPtr[i+1]
	k := lo + sort.SearchInts(a.ColIdx[lo:hi], j)
	if k < hi && a.ColIdx[k] == j {
		return a.Val[k]
	}
	return zero
}

// Has reports whether (i, j) belongs to the sparsity pattern.
func (a *CSR[T]) Has(i, j int) bool {
	lo, hi := a.RowPtr[i], a.RowPtr[i+1]
	k := lo + sort.SearchInts(a.ColIdx[lo:hi], j)
	return k < hi && a.ColIdx[k] == j
}

// MulVec returns A·x.
func (a *CSR[T]) MulVec(x []T) []T {
	if len(x) != a.N {
		panic(fmt.Sprintf("matrix: MulVec dimension mismatch (%d != %d)", len(x), a.N))
	}
	y := make([]T, a.N)
	for i := 0; i < a.N; i++ {
		var sum T
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			sum += a.Val[k] * x[a.ColIdx[k]]
		}
		y[i] = sum
	}
	return y
}

// Permute returns P·A·Pᵗ where forward[i] is the new position of index i.
func (a *CSR[T]) Permute(forward []int) *CSR[T] {
	if len(forward) != a.N {
		panic(fmt.Sprintf("matrix: permutation length %d != size %d", len(forward), a.N))
	}
	t := NewTriplet[T](a.N)
	for i := 0; i < a.N; i++ {
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			t.AddElement(forward[i], forward[a.ColIdx[k]], a.Val[k])
		}
	}
	return t.ToCSR()
}

// SamePattern reports whether both matrices have byte-for-byte identical
// structure (dimension, row pointers and column indices).
func (a *CSR[T]) SamePattern(b *CSR[T]) bool {
	if a == nil || b == nil {
		return false
	}
	return a.N == b.N && slices.Equal(a.RowPtr, b.RowPtr) && slices.Equal(a.ColIdx, b.ColIdx)
}

// Clone deep-copies the matrix.
func (a *CSR[T]) Clone() *CSR[T] {
	return &CSR[T]{
		N:      a.N,
		RowPtr: slices.Clone(a.RowPtr),
		ColIdx: slices.Clone(a.ColIdx),
		Val:    slices.Clone(a.Val),
	}
}

// Dense expands the matrix row-major. Meant for tests and small dumps.
func (a *CSR[T]) Dense() [][]T {
	out := make([][]T, a.N)
	for i := range out {
		out[i] = make([]T, a.N)
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			out[i][a.ColIdx[k]] = a.Val[k]
		}
	}
	return out
}
