package matrix

import (
	"fmt"
	"sort"
)

// Scalar is the element type of the sparse containers.
type Scalar interface {
	~float64 | ~complex128
}

// Triplet is a coordinate-list builder. Duplicate entries are summed when the
// triplet is compressed, so stamping order never matters.
type Triplet[T Scalar] struct {
	n    int
	rows []int
	cols []int
	vals []T
}

func NewTriplet[T Scalar](n int) *Triplet[T] {
	return &Triplet[T]{n: n}
}

func (t *Triplet[T]) Size() int { return t.n }

func (t *Triplet[T]) Len() int { return len(t.vals) }

// AddElement appends an entry. Out of range indices are a programming error.
func (t *Triplet[T]) AddElement(i, j int, value T) {
	if i < 0 || j < 0 || i >= t.n || j >= t.n {
		panic(fmt.Sprintf("matrix: index out of bounds (i=%d, j=%d, size=%d)", i, j, t.n))
	}
	t.rows = append(t.rows, i)
	t.cols = append(t.cols, j)
	t.vals = append(t.vals, value)
}

// ToCSR compresses the triplet. Explicit zeros are kept so the sparsity
// pattern only depends on which positions were touched.
func (t *Triplet[T]) ToCSR() *CSR[T] {
	n := t.n
	order := make([]int, len(t.vals))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if t.rows[ka] != t.rows[kb] {
			return t.rows[ka] < t.rows[kb]
		}
		return t.cols[ka] < t.cols[kb]
	})

	csr := &CSR[T]{
		N:      n,
		RowPtr: make([]int, n+1),
		ColIdx: make([]int, 0, len(order)),
		Val:    make([]T, 0, len(order)),
	}

	lastRow, lastCol := -1, -1
	for _, k := range order {
		r, c := t.rows[k], t.cols[k]
		if r == lastRow && c == lastCol {
			csr.Val[len(csr.Val)-1] += t.vals[k]
			continue
		}
		csr.ColIdx = append(csr.ColIdx, c)
		csr.Val = append(csr.Val, t.vals[k])
		csr.RowPtr[r+1]++
		lastRow, lastCol = r, c
	}
	for i := 0; i < n; i++ {
		csr.RowPtr[i+1] += csr.RowPtr[i]
	}

	return csr
}
