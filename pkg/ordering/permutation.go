// Package ordering groups nodes by role so the Newton engine can address
// every block of unknowns through contiguous index ranges.
package ordering

import (
	"fmt"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

// Permutation maps original node ids to positions in [Slack, PV, PQ] order.
// Forward[i] is the permuted position of node i; Inverse undoes it.
type Permutation struct {
	Forward []int
	Inverse []int

	NSlack int
	NPV    int
	NPQ    int
}

// Build partitions node ids by role, keeping the original relative order
// inside each group.
func Build(roles []network.Role) (*Permutation, error) {
	n := len(roles)
	p := &Permutation{
		Forward: make([]int, n),
		Inverse: make([]int, 0, n),
	}

	for _, want := range []network.Role{network.Slack, network.PV, network.PQ} {
		for i, r := range roles {
			if r == want {
				p.Inverse = append(p.Inverse, i)
			}
		}
		switch want {
		case network.Slack:
			p.NSlack = len(p.Inverse)
		case network.PV:
			p.NPV = len(p.Inverse) - p.NSlack
		case network.PQ:
			p.NPQ = len(p.Inverse) - p.NSlack - p.NPV
		}
	}

	if len(p.Inverse) != n {
		for i, r := range roles {
			if r != network.Slack && r != network.PV && r != network.PQ {
				return nil, &pferr.TopologyError{Node: i, Element: -1, Reason: fmt.Sprintf("unknown role %v", r)}
			}
		}
	}
	if p.NSlack == 0 {
		return nil, pferr.Topology("no slack node")
	}

	for pos, i := range p.Inverse {
		p.Forward[i] = pos
	}
	return p, nil
}

func (p *Permutation) Size() int { return len(p.Forward) }

// Unknowns is the number of angle unknowns (PV and PQ nodes).
func (p *Permutation) Unknowns() int { return p.NPV + p.NPQ }

// Roles returns the role of every permuted position.
func (p *Permutation) Roles() []network.Role {
	out := make([]network.Role, p.Size())
	for pos := range out {
		switch {
		case pos < p.NSlack:
			out[pos] = network.Slack
		case pos < p.NSlack+p.NPV:
			out[pos] = network.PV
		default:
			out[pos] = network.PQ
		}
	}
	return out
}

// Apply returns x in permuted order. x is not modified.
func Apply[T any](p *Permutation, x []T) []T {
	mustMatch(p, len(x))
	out := make([]T, len(x))
	for i, v := range x {
		out[p.Forward[i]] = v
	}
	return out
}

// Unapply returns x in original node order.
func Unapply[T any](p *Permutation, x []T) []T {
	mustMatch(p, len(x))
	out := make([]T, len(x))
	for pos, v := range x {
		out[p.Inverse[pos]] = v
	}
	return out
}

// ApplyMatrix returns P·A·Pᵗ.
func ApplyMatrix[T matrix.Scalar](p *Permutation, a *matrix.CSR[T]) *matrix.CSR[T] {
	mustMatch(p, a.N)
	return a.Permute(p.Forward)
}

// UnapplyMatrix returns Pᵗ·A·P.
func UnapplyMatrix[T matrix.Scalar](p *Permutation, a *matrix.CSR[T]) *matrix.CSR[T] {
	mustMatch(p, a.N)
	return a.Permute(p.Inverse)
}

func mustMatch(p *Permutation, n int) {
	if n != p.Size() {
		panic(fmt.Sprintf("ordering: length %d does not match permutation size %d", n, p.Size()))
	}
}
