package analysis

import (
	"math/cmplx"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/ordering"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

// PowerInjection returns S = diag(V)·conj(Y·V) together with I = Y·V.
func PowerInjection(y *matrix.CSR[complex128], v []complex128) (s, i []complex128) {
	i = y.MulVec(v)
	s = make([]complex128, len(v))
	for k := range v {
		s[k] = v[k] * cmplx.Conj(i[k])
	}
	return s, i
}

// Mismatch stacks the unknown-row residuals of S_calc - S_target:
// real parts for PV and PQ rows followed by imaginary parts for PQ rows.
func Mismatch(calc, target []complex128, nSlack, nPV, nPQ int) []float64 {
	m := nPV + nPQ
	f := make([]float64, m+nPQ)
	for k := 0; k < m; k++ {
		d := calc[nSlack+k] - target[nSlack+k]
		f[k] = real(d)
		if k >= nPV {
			f[m+k-nPV] = imag(d)
		}
	}
	return f
}

// TargetInjection lists the scheduled injection per node in original order.
// Only the parts a role fixes are kept: all of S for PQ, P for PV, nothing
// for Slack.
func TargetInjection(nodes []network.Node) []complex128 {
	s := make([]complex128, len(nodes))
	for i, n := range nodes {
		switch n.Role {
		case network.PQ:
			s[i] = n.S
		case network.PV:
			s[i] = complex(real(n.S), 0)
		}
	}
	return s
}

// InitialVoltage builds the starting point in original order. Slack nodes
// take their setpoint. PV nodes keep the setpoint magnitude with the angle of
// the guess. PQ nodes take the guess as is. A nil guess means each node's own
// Vm∠Va.
func InitialVoltage(nodes []network.Node, guess []complex128) ([]complex128, error) {
	if guess != nil && len(guess) != len(nodes) {
		return nil, pferr.Topology("initial voltage has %d entries for %d nodes", len(guess), len(nodes))
	}

	v := make([]complex128, len(nodes))
	for i, n := range nodes {
		g := cmplx.Rect(n.Vm, n.Va)
		if guess != nil {
			g = guess[i]
		}
		switch n.Role {
		case network.Slack:
			v[i] = cmplx.Rect(n.Vm, n.Va)
		case network.PV:
			v[i] = cmplx.Rect(n.Vm, cmplx.Phase(g))
		default:
			v[i] = g
		}
		if cmplx.Abs(v[i]) == 0 || cmplx.IsNaN(v[i]) {
			return nil, &pferr.TopologyError{Node: i, Element: -1, Reason: "initial voltage magnitude must be nonzero"}
		}
	}
	return v, nil
}

// NewSystem moves Y, the target injection and the initial voltage into
// permuted order.
func NewSystem(y *matrix.CSR[complex128], nodes []network.Node, perm *ordering.Permutation, guess []complex128) (*System, error) {
	v, err := InitialVoltage(nodes, guess)
	if err != nil {
		return nil, err
	}
	return &System{
		Y:      ordering.ApplyMatrix(perm, y),
		S:      ordering.Apply(perm, TargetInjection(nodes)),
		V:      ordering.Apply(perm, v),
		NSlack: perm.NSlack,
		NPV:    perm.NPV,
		NPQ:    perm.NPQ,
	}, nil
}
