// Package network holds the normalized topology handed to the power-flow core:
// node roles and operating constraints plus the branch stamps that make up the
// admittance matrix.
package network

import (
	"fmt"
	"math"
	"slices"

	"github.com/edp1096/toy-powerflow/pkg/device"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

type Role int

const (
	PQ Role = iota
	PV
	Slack
)

func (r Role) String() string {
	switch r {
	case Slack:
		return "Slack"
	case PV:
		return "PV"
	case PQ:
		return "PQ"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Node carries the operating constraints of one bus. Vm/Va are the voltage
// setpoint for Slack (both) and PV (magnitude) nodes and the initial guess
// otherwise. S is the scheduled injection: fully fixed for PQ, real part only
// for PV, ignored for Slack. QMin/QMax bound the reactive injection of PV nodes.
type Node struct {
	ID   int
	Name string
	Role Role
	Vm   float64
	Va   float64 // radians
	S    complex128
	QMin float64
	QMax float64
}

// Topology is the descriptor consumed by the solver. Node ids are dense in
// [0, n). Node quantities are per-unit on SBaseMVA; branch admittances are
// true values and are brought onto that base during assembly.
type Topology struct {
	SBaseMVA float64
	Nodes    []Node
	Branches []device.Branch
}

func (t *Topology) Size() int { return len(t.Nodes) }

// Roles lists node roles in node-id order.
func (t *Topology) Roles() []Role {
	roles := make([]Role, len(t.Nodes))
	for i, n := range t.Nodes {
		roles[i] = n.Role
	}
	return roles
}

// Clone copies nodes and branches so the result can be modified independently.
func (t *Topology) Clone() *Topology {
	return &Topology{
		SBaseMVA: t.SBaseMVA,
		Nodes:    slices.Clone(t.Nodes),
		Branches: slices.Clone(t.Branches),
	}
}

// WithRole returns a copy of the topology where node id takes a new role and
// scheduled injection. The receiver is left untouched.
func (t *Topology) WithRole(id int, role Role, s complex128) *Topology {
	out := t.Clone()
	out.Nodes[id].Role = role
	out.Nodes[id].S = s
	return out
}

// Validate checks the system base, node numbering, branch references and
// that every island has exactly one Slack node.
func (t *Topology) Validate() error {
	n := len(t.Nodes)
	if n == 0 {
		return pferr.Topology("network has no nodes")
	}
	if err := checkSBase(t.SBaseMVA); err != nil {
		return err
	}
	for i, node := range t.Nodes {
		if node.ID != i {
			return &pferr.TopologyError{Node: node.ID, Element: -1, Reason: fmt.Sprintf("node ids must be dense, found %d at position %d", node.ID, i)}
		}
		if node.Role == Slack || node.Role == PV {
			if node.Vm <= 0 || math.IsNaN(node.Vm) {
				return &pferr.TopologyError{Node: i, Element: -1, Reason: fmt.Sprintf("%s node needs a positive voltage setpoint", node.Role)}
			}
		}
	}
	for k, br := range t.Branches {
		if err := checkBranch(k, br, n); err != nil {
			return err
		}
	}
	return CheckSlacks(t.Roles(), t.Branches)
}

func checkBranch(k int, br device.Branch, n int) error {
	nodes, _ := br.Incidence()
	for _, node := range nodes {
		if node < 0 || node >= n {
			return &pferr.TopologyError{Node: node, Element: k, Reason: fmt.Sprintf("node id out of range [0, %d)", n)}
		}
	}
	return checkBranchBase(k, br)
}

func checkBranchBase(k int, br device.Branch) error {
	if !(br.VBaseKV > 0) || math.IsInf(br.VBaseKV, 0) {
		return &pferr.TopologyError{Node: br.From, Element: k, Reason: fmt.Sprintf("branch base voltage must be positive, got %g kV", br.VBaseKV)}
	}
	return nil
}

func checkSBase(sBaseMVA float64) error {
	if !(sBaseMVA > 0) || math.IsInf(sBaseMVA, 0) {
		return pferr.Topology("system base must be positive, got %g MVA", sBaseMVA)
	}
	return nil
}
