package network

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-powerflow/pkg/device"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

// Merger is implemented by devices that can tie their buses into a single
// node, such as a closed switch without impedance.
type Merger interface {
	Merges() bool
}

// Builder resolves device bus names to dense node ids and collects branch
// stamps and node constraints into a Topology. Injections given in MW and
// Mvar are converted to per-unit on the system base.
type Builder struct {
	sBase   float64
	busMap  map[string]int
	buses   []string
	devices []device.Device
	wiring  [][]int // bus ids of each device, before merging

	busNode []int // bus id -> node id
	nodes   []Node
}

func NewBuilder(sBaseMVA float64) *Builder {
	return &Builder{sBase: sBaseMVA, busMap: make(map[string]int)}
}

// Bus returns the id for a bus name, allocating the next id on first use.
func (b *Builder) Bus(name string) int {
	if id, ok := b.busMap[name]; ok {
		return id
	}
	id := len(b.buses)
	b.busMap[name] = id
	b.buses = append(b.buses, name)
	return id
}

// Add registers devices and their buses in the order they are given.
func (b *Builder) Add(devs ...device.Device) {
	for _, dev := range devs {
		names := dev.GetNodeNames()
		ids := make([]int, len(names))
		for i, name := range names {
			ids[i] = b.Bus(name)
		}
		b.devices = append(b.devices, dev)
		b.wiring = append(b.wiring, ids)
	}
}

// Node returns the node id a bus ended up in after the last Build.
func (b *Builder) Node(bus string) (int, bool) {
	id, ok := b.busMap[bus]
	if !ok || id >= len(b.busNode) {
		return 0, false
	}
	return b.busNode[id], true
}

// Build merges buses tied by closed switches, wires every device to its node
// ids, gathers branches and applies node constraints. The result is validated
// before it is returned.
func (b *Builder) Build() (*Topology, error) {
	if len(b.buses) == 0 {
		return nil, pferr.Topology("network has no nodes")
	}
	if err := checkSBase(b.sBase); err != nil {
		return nil, err
	}

	b.mergeBuses()
	n := 0
	for _, id := range b.busNode {
		n = max(n, id+1)
	}

	b.nodes = make([]Node, n)
	named := make([]bool, n)
	for bus, id := range b.busNode {
		if named[id] {
			continue
		}
		named[id] = true
		b.nodes[id] = Node{
			ID:   id,
			Name: b.buses[bus],
			Role: PQ,
			Vm:   1,
			QMin: math.Inf(-1),
			QMax: math.Inf(1),
		}
	}

	var branches []device.Branch
	for k, dev := range b.devices {
		nodes := make([]int, len(b.wiring[k]))
		for i, bus := range b.wiring[k] {
			nodes[i] = b.busNode[bus]
		}
		dev.SetNodes(nodes)

		brs, err := dev.Branches()
		if err != nil {
			return nil, &pferr.TopologyError{Node: -1, Element: k, Reason: err.Error()}
		}
		branches = append(branches, brs...)
	}

	for k, dev := range b.devices {
		inj, ok := dev.(device.Injector)
		if !ok {
			continue
		}
		if len(dev.GetNodes()) != 1 {
			return nil, &pferr.TopologyError{Node: -1, Element: k, Reason: fmt.Sprintf("%s: injection device needs exactly 1 node", dev.GetName())}
		}
		if err := inj.Inject(b); err != nil {
			return nil, err
		}
	}

	topo := &Topology{SBaseMVA: b.sBase, Nodes: b.nodes, Branches: branches}
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	return topo, nil
}

// mergeBuses groups buses joined by merging devices with a union-find and
// numbers the groups in order of first appearance.
func (b *Builder) mergeBuses() {
	parent := make([]int, len(b.buses))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for k, dev := range b.devices {
		m, ok := dev.(Merger)
		if !ok || !m.Merges() || len(b.wiring[k]) != 2 {
			continue
		}
		ra, rb := find(b.wiring[k][0]), find(b.wiring[k][1])
		if ra == rb {
			continue
		}
		// keep the earlier bus as representative
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	b.busNode = make([]int, len(b.buses))
	ids := make(map[int]int)
	for bus := range b.buses {
		root := find(bus)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		b.busNode[bus] = id
	}
}

func (b *Builder) MarkSlack(node int, vm, vaDeg float64) error {
	nd := &b.nodes[node]
	if nd.Role == Slack {
		return &pferr.TopologyError{Node: node, Element: -1, Reason: "duplicate slack node"}
	}
	nd.Role = Slack
	nd.Vm = vm
	nd.Va = vaDeg * math.Pi / 180
	return nil
}

// MarkPV turns a PQ node into a PV node. Several generators on one node add
// their power and limits; a generator on the slack node only contributes P.
func (b *Builder) MarkPV(node int, p, vm, qMin, qMax float64) error {
	nd := &b.nodes[node]
	p, qMin, qMax = p/b.sBase, qMin/b.sBase, qMax/b.sBase
	switch nd.Role {
	case Slack:
		nd.S += complex(p, 0)
		return nil
	case PV:
		if nd.Vm != vm {
			return &pferr.TopologyError{Node: node, Element: -1, Reason: fmt.Sprintf("conflicting voltage setpoints %g and %g", nd.Vm, vm)}
		}
		nd.QMin += qMin
		nd.QMax += qMax
	default:
		nd.Role = PV
		nd.Vm = vm
		nd.QMin = qMin
		nd.QMax = qMax
	}
	nd.S += complex(p, 0)
	return nil
}

func (b *Builder) AddPower(node int, s complex128) error {
	b.nodes[node].S += s / complex(b.sBase, 0)
	return nil
}
