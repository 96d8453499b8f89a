package analysis

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/edp1096/toy-powerflow/pkg/device"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/ordering"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
	"github.com/edp1096/toy-powerflow/pkg/solver"
)

func twoBus(load complex128) *System {
	y, _ := network.BuildAdmittance(2, 1, []device.Branch{device.Series(0, 1, complex(10, -10), 1)})
	return &System{
		Y:      y,
		S:      []complex128{0, load},
		V:      []complex128{1, 1},
		NSlack: 1,
		NPQ:    1,
	}
}

func run(t *testing.T, sys *System, backend string) *NewtonRaphson {
	t.Helper()
	be, err := solver.New(backend)
	if err != nil {
		t.Fatalf("solver.New: %v", err)
	}
	nr := NewNewtonRaphson(be)
	if err := nr.Setup(sys); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := nr.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return nr
}

func TestTwoBusConverges(t *testing.T) {
	for _, backend := range solver.Names() {
		t.Run(backend, func(t *testing.T) {
			nr := run(t, twoBus(-1), backend)
			res := nr.Result()
			if !res.Converged || res.State != Converged {
				t.Fatalf("state = %v, want converged", res.State)
			}
			if res.Iterations != 4 {
				t.Fatalf("Iterations = %d, want 4", res.Iterations)
			}
			if res.Mismatch >= 1e-8 {
				t.Fatalf("Mismatch = %g", res.Mismatch)
			}
			vm, va := cmplx.Abs(res.V[1]), cmplx.Phase(res.V[1])
			if math.Abs(vm-0.945732) > 1e-5 || math.Abs(va+0.05289) > 1e-4 {
				t.Fatalf("V = %.6f∠%.5f, want 0.945732∠-0.05289", vm, va)
			}
			if res.V[0] != 1 {
				t.Fatalf("slack voltage moved to %v", res.V[0])
			}
			if got := len(nr.GetResults()["MISMATCH"]); got != res.Iterations+1 {
				t.Fatalf("stored %d mismatch values, want %d", got, res.Iterations+1)
			}
		})
	}
}

func TestInfeasibleLoadStopsAtBudget(t *testing.T) {
	nr := run(t, twoBus(-10), solver.Sparse)
	res := nr.Result()
	if res.Converged || res.State != MaxIterationsExceeded {
		t.Fatalf("state = %v, want max-iterations-exceeded", res.State)
	}
	if res.Iterations != 10 {
		t.Fatalf("Iterations = %d, want 10", res.Iterations)
	}
	if len(res.History) != 11 {
		t.Fatalf("len(History) = %d, want 11", len(res.History))
	}
}

func TestSetConvergence(t *testing.T) {
	be, _ := solver.New(solver.Dense)
	nr := NewNewtonRaphson(be)
	nr.SetConvergence(0, 2)
	if err := nr.Setup(twoBus(-1)); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := nr.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res := nr.Result(); res.Converged || res.Iterations != 2 {
		t.Fatalf("result = %+v, want 2 iterations without convergence", res)
	}
}

func TestAllSlackConvergesImmediately(t *testing.T) {
	y, _ := network.BuildAdmittance(1, 1, nil)
	nr := run(t, &System{Y: y, S: []complex128{0}, V: []complex128{1}, NSlack: 1}, solver.Sparse)
	if res := nr.Result(); !res.Converged || res.Iterations != 0 {
		t.Fatalf("result = %+v", res)
	}
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }
func (failingBackend) Solve(*matrix.CSR[float64], []float64) ([]float64, error) {
	return nil, errors.New("zero pivot")
}
func (failingBackend) Stats() solver.Stats { return solver.Stats{} }
func (failingBackend) Reset()              {}

func TestSolveFailure(t *testing.T) {
	nr := NewNewtonRaphson(failingBackend{})
	if err := nr.Setup(twoBus(-1)); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	err := nr.Execute(context.Background())
	if !errors.Is(err, pferr.ErrSolve) {
		t.Fatalf("err = %v, want ErrSolve", err)
	}
	var se *pferr.SolveError
	if !errors.As(err, &se) || se.Iteration != 1 || se.Backend != "failing" {
		t.Fatalf("err = %#v", err)
	}
	if nr.State() != SolveFailed {
		t.Fatalf("state = %v, want solve-failed", nr.State())
	}
}

func TestSingularJacobian(t *testing.T) {
	// the PQ node hangs off nothing: its rows are identically zero
	y, _ := network.BuildAdmittance(2, 1, nil)
	sys := &System{Y: y, S: []complex128{0, -0.1}, V: []complex128{1, 1}, NSlack: 1, NPQ: 1}
	be, _ := solver.New(solver.Sparse)
	nr := NewNewtonRaphson(be)
	if err := nr.Setup(sys); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := nr.Execute(context.Background()); !errors.Is(err, pferr.ErrSolve) {
		t.Fatalf("err = %v, want ErrSolve", err)
	}
}

func TestSetupRejectsZeroVoltage(t *testing.T) {
	sys := twoBus(-1)
	sys.V[1] = 0
	be, _ := solver.New(solver.Sparse)
	if err := NewNewtonRaphson(be).Setup(sys); !errors.Is(err, pferr.ErrTopology) {
		t.Fatalf("err = %v, want ErrTopology", err)
	}
}

func TestMismatchLayout(t *testing.T) {
	calc := []complex128{9 + 9i, 1 + 2i, 3 + 4i, 5 + 6i}
	target := []complex128{0, 1, 1i, 1 + 1i}
	// one slack, one PV, two PQ
	f := Mismatch(calc, target, 1, 1, 2)
	want := []float64{0, 3, 4, 3, 5}
	if len(f) != len(want) {
		t.Fatalf("len(F) = %d, want %d", len(f), len(want))
	}
	for k := range want {
		if f[k] != want[k] {
			t.Fatalf("F = %v, want %v", f, want)
		}
	}
}

// The analytic Jacobian must match central differences of the mismatch.
func TestJacobianMatchesFiniteDifferences(t *testing.T) {
	brs := []device.Branch{
		device.Series(0, 1, 1/complex(0.02, 0.1), 1),
		device.Series(1, 2, 1/complex(0.01, 0.08), 1),
		device.Series(2, 3, 1/complex(0.03, 0.12), 1),
		device.Series(0, 3, 1/complex(0.02, 0.09), 1),
		device.Shunt(2, complex(0, 0.04), 1),
	}
	shifted := device.Series(1, 3, 1/complex(0.005, 0.1), 1)
	shifted.Ratio = cmplx.Rect(0.98, -0.05)
	brs = append(brs, shifted)

	y, err := network.BuildAdmittance(4, 1, brs)
	if err != nil {
		t.Fatalf("BuildAdmittance: %v", err)
	}
	v := []complex128{
		cmplx.Rect(1.0, 0),
		cmplx.Rect(1.02, -0.03),
		cmplx.Rect(0.97, -0.06),
		cmplx.Rect(0.99, -0.02),
	}
	const ns, npv, npq = 1, 1, 2
	m := npv + npq

	_, cur := PowerInjection(y, v)
	jac := Jacobian(y, v, cur, ns, npv, npq).Dense()

	target := make([]complex128, 4)
	eval := func(vm, va []float64) []float64 {
		x := make([]complex128, 4)
		for k := range x {
			x[k] = cmplx.Rect(vm[k], va[k])
		}
		s, _ := PowerInjection(y, x)
		return Mismatch(s, target, ns, npv, npq)
	}

	vm := make([]float64, 4)
	va := make([]float64, 4)
	for k := range v {
		vm[k], va[k] = cmplx.Abs(v[k]), cmplx.Phase(v[k])
	}

	const h = 1e-6
	for col := 0; col < m+npq; col++ {
		bump := func(d float64) []float64 {
			vm2 := append([]float64(nil), vm...)
			va2 := append([]float64(nil), va...)
			if col < m {
				va2[ns+col] += d
			} else {
				vm2[ns+npv+col-m] += d
			}
			return eval(vm2, va2)
		}
		fp, fm := bump(h), bump(-h)
		for row := range fp {
			fd := (fp[row] - fm[row]) / (2 * h)
			if math.Abs(fd-jac[row][col]) > 1e-5 {
				t.Fatalf("J[%d][%d] = %g, finite difference %g", row, col, jac[row][col], fd)
			}
		}
	}
}

func TestNewSystemPermutes(t *testing.T) {
	nodes := []network.Node{
		{ID: 0, Role: network.PQ, Vm: 1, S: -0.3 - 0.1i},
		{ID: 1, Role: network.Slack, Vm: 1.02, Va: 0.1},
		{ID: 2, Role: network.PV, Vm: 1.01, S: 0.5 + 0.7i},
	}
	y, _ := network.BuildAdmittance(3, 1, []device.Branch{device.Series(0, 1, 1, 1), device.Series(1, 2, 1, 1)})
	perm, err := ordering.Build([]network.Role{network.PQ, network.Slack, network.PV})
	if err != nil {
		t.Fatalf("ordering.Build: %v", err)
	}
	sys, err := NewSystem(y, nodes, perm, nil)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	if sys.NSlack != 1 || sys.NPV != 1 || sys.NPQ != 1 {
		t.Fatalf("segments = %d/%d/%d", sys.NSlack, sys.NPV, sys.NPQ)
	}
	if sys.V[0] != cmplx.Rect(1.02, 0.1) {
		t.Fatalf("slack voltage = %v", sys.V[0])
	}
	if sys.S[1] != 0.5 || sys.S[2] != -0.3-0.1i {
		t.Fatalf("S = %v", sys.S)
	}
	if cmplx.Abs(sys.V[1]) != 1.01 {
		t.Fatalf("PV magnitude = %g, want 1.01", cmplx.Abs(sys.V[1]))
	}
}
