package powerflow

import (
	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

// BranchFlow is the power entering a branch at both terminals. STo is zero
// for shunt branches.
type BranchFlow struct {
	Index int
	From  int
	To    int
	SFrom complex128
	STo   complex128
	Loss  complex128
}

// PostProcess computes node injections and branch flows for a solved voltage
// vector in node order. All powers are per-unit on the topology's base.
func PostProcess(y *matrix.CSR[complex128], topo *network.Topology, v []complex128) ([]complex128, []BranchFlow) {
	injection, _ := analysis.PowerInjection(y, v)

	flows := make([]BranchFlow, len(topo.Branches))
	for k, br := range topo.Branches {
		var vTo complex128
		if br.To >= 0 {
			vTo = v[br.To]
		}
		sFrom, sTo := br.PerUnit(topo.SBaseMVA).Flow(v[br.From], vTo)
		flows[k] = BranchFlow{
			Index: k,
			From:  br.From,
			To:    br.To,
			SFrom: sFrom,
			STo:   sTo,
			Loss:  sFrom + sTo,
		}
	}
	return injection, flows
}
