package device

import (
	"fmt"
	"math/cmplx"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

type BranchKind int

const (
	SeriesBranch BranchKind = iota // two-port: From -> To
	ShuntBranch                    // single port: From -> ground
)

func (k BranchKind) String() string {
	switch k {
	case SeriesBranch:
		return "series"
	case ShuntBranch:
		return "shunt"
	default:
		return fmt.Sprintf("BranchKind(%d)", int(k))
	}
}

// Branch is one row of the incidence structure: a true admittance in siemens
// between From and To, with an optional complex ratio k applied on the From
// side. Ratio 0 means 1. To is consts.GND for shunt stamps. VBaseKV is the
// nominal voltage the admittance is seen at; it is only used to bring Y onto
// the system base during assembly.
type Branch struct {
	Kind    BranchKind
	From    int
	To      int
	Y       complex128
	Ratio   complex128
	VBaseKV float64
}

func Series(from, to int, y complex128, vBaseKV float64) Branch {
	return Branch{Kind: SeriesBranch, From: from, To: to, Y: y, VBaseKV: vBaseKV}
}

func Shunt(node int, y complex128, vBaseKV float64) Branch {
	return Branch{Kind: ShuntBranch, From: node, To: consts.GND, Y: y, VBaseKV: vBaseKV}
}

// PerUnit returns a copy whose Y is expressed on the sBaseMVA system base.
func (b Branch) PerUnit(sBaseMVA float64) Branch {
	b.Y *= complex(ZBase(b.VBaseKV, sBaseMVA), 0)
	return b
}

func (b Branch) ratio() complex128 {
	if b.Ratio == 0 {
		return 1
	}
	return b.Ratio
}

// Incidence returns the nonzero entries of this branch's incidence row.
// For a series branch the row is [k at From, -1 at To].
func (b Branch) Incidence() (nodes []int, coeff []complex128) {
	if b.Kind == ShuntBranch || b.To == consts.GND {
		return []int{b.From}, []complex128{1}
	}
	return []int{b.From, b.To}, []complex128{b.ratio(), -1}
}

// Stamp accumulates Dᴴ·y·D for the branch incidence row D:
//
//	Y[f][f] += y·|k|²   Y[f][t] += -y·conj(k)
//	Y[t][f] += -y·k     Y[t][t] += y
func (b Branch) Stamp(m matrix.DeviceMatrix) error {
	nodes, coeff := b.Incidence()
	for _, n := range nodes {
		if err := checkNode(n, m.Size()); err != nil {
			return err
		}
	}
	if len(nodes) == 2 && nodes[0] == nodes[1] {
		return &pferr.TopologyError{Node: nodes[0], Element: -1, Reason: "series branch connects a node to itself"}
	}

	for a, na := range nodes {
		for c, nc := range nodes {
			m.AddElement(na, nc, cmplx.Conj(coeff[a])*b.Y*coeff[c])
		}
	}
	return nil
}

// Flow returns the complex power entering the branch at both ends for the given
// terminal voltages, in the units of Y·V². The To end is ignored for shunt
// branches.
func (b Branch) Flow(vFrom, vTo complex128) (sFrom, sTo complex128) {
	if b.Kind == ShuntBranch || b.To == consts.GND {
		i := b.Y * vFrom
		return vFrom * cmplx.Conj(i), 0
	}
	k := b.ratio()
	iFrom := b.Y * (k*cmplx.Conj(k)*vFrom - cmplx.Conj(k)*vTo)
	iTo := b.Y * (vTo - k*vFrom)
	return vFrom * cmplx.Conj(iFrom), vTo * cmplx.Conj(iTo)
}
