package powerflow

import (
	"github.com/edp1096/toy-powerflow/pkg/network"
)

// GeneratedQ is the reactive output of the generation at a node: the
// computed injection minus the fixed reactive part of the schedule.
func GeneratedQ(node network.Node, injection complex128) float64 {
	return imag(injection) - imag(node.S)
}

// EnforceQLimits turns every PV node whose generated reactive power lies
// outside [QMin, QMax] into a PQ node held at the violated limit. It returns
// the new topology and the ids of the switched nodes in ascending order; topo
// itself is not modified. With nothing to switch the same topology is
// returned.
func EnforceQLimits(topo *network.Topology, injection []complex128) (*network.Topology, []int) {
	out := topo
	var switched []int
	for id, node := range topo.Nodes {
		if node.Role != network.PV {
			continue
		}

		q := GeneratedQ(node, injection[id])
		var limit float64
		switch {
		case q > node.QMax:
			limit = node.QMax
		case q < node.QMin:
			limit = node.QMin
		default:
			continue
		}

		s := complex(real(node.S), imag(node.S)+limit)
		out = out.WithRole(id, network.PQ, s)
		switched = append(switched, id)
	}
	return out, switched
}
