// Package solver provides the linear-solve backends used by the Newton
// engine. Backends own their factorization cache; one instance must never be
// shared between concurrent solves.
package solver

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

// Backend solves A·x = b for a real square sparse A. Implementations must not
// modify a or b. A dimension mismatch between a and b panics.
type Backend interface {
	Name() string
	Solve(a *matrix.CSR[float64], b []float64) ([]float64, error)
	Stats() Stats
	// Reset drops any cached factorization.
	Reset()
}

// Stats counts factorization work since the backend was created.
type Stats struct {
	Symbolic int // ordering + numeric factorizations
	Numeric  int // numeric-only refactorizations on a cached ordering
	Solves   int
}

func (s Stats) Sub(prev Stats) Stats {
	return Stats{
		Symbolic: s.Symbolic - prev.Symbolic,
		Numeric:  s.Numeric - prev.Numeric,
		Solves:   s.Solves - prev.Solves,
	}
}

type Factory func() Backend

const (
	Sparse        = "sparse"
	SparseNoCache = "sparse-nocache"
	Dense         = "dense"

	Default = Sparse
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func init() {
	Register(Sparse, func() Backend { return NewSparseLU(true) })
	Register(SparseNoCache, func() Backend { return NewSparseLU(false) })
	Register(Dense, func() Backend { return NewDenseLU() })
}

// Register makes a backend available by name. Registering a name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("solver: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("solver: Register called twice for backend " + name)
	}
	registry[name] = f
}

// New returns a fresh backend instance. An empty name selects Default.
func New(name string) (Backend, error) {
	if name == "" {
		name = Default
	}
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("solver: unknown backend %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return f(), nil
}

// Names lists the registered backends in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkDims(a *matrix.CSR[float64], b []float64) {
	if len(b) != a.N {
		panic(fmt.Sprintf("solver: rhs length %d does not match matrix size %d", len(b), a.N))
	}
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func maxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// relResidual is ‖b - A·x‖∞ / (‖A‖∞·‖x‖∞ + ‖b‖∞).
func relResidual(a *matrix.CSR[float64], x, b []float64) float64 {
	ax := a.MulVec(x)
	var res, normA float64
	for i := 0; i < a.N; i++ {
		res = math.Max(res, math.Abs(b[i]-ax[i]))
		row := 0.0
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			row += math.Abs(a.Val[k])
		}
		normA = math.Max(normA, row)
	}
	scale := normA*maxAbs(x) + maxAbs(b)
	if scale == 0 {
		return res
	}
	return res / scale
}
