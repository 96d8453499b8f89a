package network

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/edp1096/toy-powerflow/pkg/device"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

// Islands returns the connected components of the branch graph, each sorted
// by node id, ordered by their smallest node id. Shunt stamps do not connect
// anything.
func Islands(n int, branches []device.Branch) [][]int {
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for _, br := range branches {
		nodes, _ := br.Incidence()
		if len(nodes) != 2 || nodes[0] == nodes[1] {
			continue
		}
		if nodes[0] < 0 || nodes[0] >= n || nodes[1] < 0 || nodes[1] >= n {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(nodes[0]), simple.Node(nodes[1])))
	}

	var out [][]int
	for _, cc := range topo.ConnectedComponents(g) {
		ids := make([]int, len(cc))
		for i, node := range cc {
			ids[i] = int(node.ID())
		}
		sort.Ints(ids)
		out = append(out, ids)
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}

// CheckSlacks requires exactly one Slack node per island.
func CheckSlacks(roles []Role, branches []device.Branch) error {
	slacks := 0
	for _, r := range roles {
		if r == Slack {
			slacks++
		}
	}
	if slacks == 0 {
		return pferr.Topology("no slack node")
	}

	for _, island := range Islands(len(roles), branches) {
		var found []int
		for _, id := range island {
			if roles[id] == Slack {
				found = append(found, id)
			}
		}
		switch {
		case len(found) == 0:
			return &pferr.TopologyError{Node: island[0], Element: -1, Reason: "island without a slack node"}
		case len(found) > 1:
			return &pferr.TopologyError{Node: found[1], Element: -1, Reason: "duplicate slack node in island"}
		}
	}
	return nil
}
