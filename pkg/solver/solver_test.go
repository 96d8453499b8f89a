package solver

import (
	"errors"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

// randomSystem builds a diagonally dominant sparse matrix with a few
// off-diagonal entries per row.
func randomSystem(rng *rand.Rand, n, offDiag int) *matrix.CSR[float64] {
	t := matrix.NewTriplet[float64](n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for k := 0; k < offDiag; k++ {
			j := rng.Intn(n)
			if j == i {
				continue
			}
			v := rng.Float64() - 0.5
			t.AddElement(i, j, v)
			sum += math.Abs(v)
		}
		t.AddElement(i, i, sum+1+rng.Float64())
	}
	return t.ToCSR()
}

func residual(a *matrix.CSR[float64], x, b []float64) float64 {
	ax := a.MulVec(x)
	r := 0.0
	for i := range b {
		r = math.Max(r, math.Abs(ax[i]-b[i]))
	}
	return r
}

func TestRegistry(t *testing.T) {
	want := []string{Dense, Sparse, SparseNoCache}
	if got := Names(); !slices.Equal(got, want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	b, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.Name() != Default {
		t.Fatalf("default backend = %s, want %s", b.Name(), Default)
	}
	if _, err := New("umfpack"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}

	b1, _ := New(Sparse)
	b2, _ := New(Sparse)
	if b1 == b2 {
		t.Fatalf("New returned a shared instance")
	}
}

func TestBackendsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 10; trial++ {
		n := 2 + rng.Intn(30)
		a := randomSystem(rng, n, 3)
		b := make([]float64, n)
		for i := range b {
			b[i] = rng.Float64()*2 - 1
		}

		var ref []float64
		for _, name := range Names() {
			be, err := New(name)
			if err != nil {
				t.Fatalf("New(%s): %v", name, err)
			}
			x, err := be.Solve(a, b)
			if err != nil {
				t.Fatalf("%s: Solve: %v", name, err)
			}
			if r := residual(a, x, b); r > 1e-10 {
				t.Fatalf("%s: residual = %g", name, r)
			}
			if ref == nil {
				ref = x
				continue
			}
			for i := range x {
				if math.Abs(x[i]-ref[i]) > 1e-9 {
					t.Fatalf("%s: x[%d] = %g, want %g", name, i, x[i], ref[i])
				}
			}
		}
	}
}

func TestSparseCacheReuse(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := randomSystem(rng, 12, 3)
	b := make([]float64, 12)
	for i := range b {
		b[i] = float64(i + 1)
	}

	be := NewSparseLU(true)
	if _, err := be.Solve(a, b); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := be.Stats(); got.Symbolic != 1 || got.Numeric != 0 {
		t.Fatalf("after first solve stats = %+v", got)
	}

	// same pattern, new values
	a2 := a.Clone()
	for k := range a2.Val {
		a2.Val[k] *= 1.5
	}
	x, err := be.Solve(a2, b)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := be.Stats(); got.Symbolic != 1 || got.Numeric != 1 || got.Solves != 2 {
		t.Fatalf("after reuse stats = %+v", got)
	}
	if r := residual(a2, x, b); r > 1e-10 {
		t.Fatalf("residual after numeric refactorization = %g", r)
	}

	// different pattern forces a new ordering
	a3 := randomSystem(rng, 12, 4)
	x, err = be.Solve(a3, b)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := be.Stats(); got.Symbolic != 2 {
		t.Fatalf("after pattern change stats = %+v", got)
	}
	if r := residual(a3, x, b); r > 1e-10 {
		t.Fatalf("residual after pattern change = %g", r)
	}
}

func TestSparseNoCacheAlwaysOrders(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	a := randomSystem(rng, 6, 2)
	b := make([]float64, 6)
	be := NewSparseLU(false)
	for i := 0; i < 3; i++ {
		if _, err := be.Solve(a, b); err != nil {
			t.Fatalf("Solve: %v", err)
		}
	}
	if got := be.Stats(); got.Symbolic != 3 || got.Numeric != 0 {
		t.Fatalf("stats = %+v, want 3 symbolic", got)
	}
}

// A value change that zeroes a pivot of the cached order must fall back to a
// fresh ordering instead of failing.
func TestSparseReorderOnZeroPivot(t *testing.T) {
	build := func(d float64) *matrix.CSR[float64] {
		tr := matrix.NewTriplet[float64](2)
		tr.AddElement(0, 0, d)
		tr.AddElement(0, 1, 1)
		tr.AddElement(1, 0, 1)
		tr.AddElement(1, 1, d)
		return tr.ToCSR()
	}
	b := []float64{1, 2}

	be := NewSparseLU(true)
	if _, err := be.Solve(build(4), b); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	x, err := be.Solve(build(0), b)
	if err != nil {
		t.Fatalf("Solve with zero diagonal: %v", err)
	}
	if math.Abs(x[0]-2) > 1e-12 || math.Abs(x[1]-1) > 1e-12 {
		t.Fatalf("x = %v, want [2 1]", x)
	}
}

func dense2(a00, a01, a10, a11 float64) *matrix.CSR[float64] {
	tr := matrix.NewTriplet[float64](2)
	tr.AddElement(0, 0, a00)
	tr.AddElement(0, 1, a01)
	tr.AddElement(1, 0, a10)
	tr.AddElement(1, 1, a11)
	return tr.ToCSR()
}

// A tiny but nonzero diagonal on a well-conditioned matrix must not be taken
// as a pivot.
func TestTinyDiagonalPivot(t *testing.T) {
	a := dense2(1e-17, 1, 1, 1)
	b := []float64{1, 2}

	for _, name := range Names() {
		be, _ := New(name)
		for round := 0; round < 2; round++ {
			x, err := be.Solve(a, b)
			if err != nil {
				t.Fatalf("%s: Solve: %v", name, err)
			}
			if math.Abs(x[0]-1) > 1e-12 || math.Abs(x[1]-1) > 1e-12 {
				t.Fatalf("%s: x = %v, want [1 1]", name, x)
			}
		}
	}
}

func TestNearSingular(t *testing.T) {
	a := dense2(1, 1, 1, 1+2.2e-16)

	for _, name := range Names() {
		be, _ := New(name)
		x, err := be.Solve(a, []float64{1, 2})
		if !errors.Is(err, pferr.ErrSolve) {
			t.Fatalf("%s: x = %v, err = %v, want ErrSolve", name, x, err)
		}
	}
}

func TestSingular(t *testing.T) {
	tr := matrix.NewTriplet[float64](2)
	tr.AddElement(0, 0, 1)
	tr.AddElement(0, 1, 2)
	tr.AddElement(1, 0, 2)
	tr.AddElement(1, 1, 4)
	a := tr.ToCSR()

	for _, name := range Names() {
		be, _ := New(name)
		_, err := be.Solve(a, []float64{1, 1})
		if !errors.Is(err, pferr.ErrSolve) {
			t.Fatalf("%s: err = %v, want ErrSolve", name, err)
		}
		var se *pferr.SolveError
		if !errors.As(err, &se) || se.Backend != name {
			t.Fatalf("%s: err = %#v, want SolveError from %s", name, err, name)
		}
	}
}

func TestSolveLeavesInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := randomSystem(rng, 8, 3)
	orig := a.Clone()
	b := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	origB := slices.Clone(b)

	for _, name := range Names() {
		be, _ := New(name)
		if _, err := be.Solve(a, b); err != nil {
			t.Fatalf("%s: Solve: %v", name, err)
		}
		if !slices.Equal(a.Val, orig.Val) || !a.SamePattern(orig) || !slices.Equal(b, origB) {
			t.Fatalf("%s modified its inputs", name)
		}
	}
}

func TestDimensionMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	a := randomSystem(rand.New(rand.NewSource(1)), 3, 1)
	NewSparseLU(true).Solve(a, []float64{1, 2})
}
