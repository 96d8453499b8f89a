package device

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

type Device interface {
	GetName() string
	GetType() string
	GetNodeNames() []string
	GetNodes() []int
	SetNodes(nodes []int)
	// Branches checks the device and lists its admittance stamps.
	Branches() ([]Branch, error)
}

// Injector is implemented by devices that fix operating constraints of the
// node they sit on rather than contributing admittance.
type Injector interface {
	Inject(bus BusSetter) error
}

// BusSetter is the view of a node an Injector is allowed to touch.
type BusSetter interface {
	MarkSlack(node int, vm, vaDeg float64) error
	MarkPV(node int, p, vm, qMin, qMax float64) error
	AddPower(node int, s complex128) error
}

type BaseDevice struct {
	Name      string
	Nodes     []int
	NodeNames []string
}

func (d *BaseDevice) GetName() string { return d.Name }

func (d *BaseDevice) GetNodes() []int { return d.Nodes }

func (d *BaseDevice) GetNodeNames() []string { return d.NodeNames }

func (d *BaseDevice) SetNodes(nodes []int) { d.Nodes = nodes }

// Branches is empty for devices that carry no admittance.
func (d *BaseDevice) Branches() ([]Branch, error) { return nil, nil }

func newBaseDevice(name string, nodeNames []string) BaseDevice {
	return BaseDevice{
		Name:      name,
		NodeNames: nodeNames,
		Nodes:     make([]int, len(nodeNames)),
	}
}

func checkNodeCount(d *BaseDevice, kind string, want int) error {
	if len(d.Nodes) != want {
		return fmt.Errorf("%s %s: requires exactly %d node(s)", kind, d.Name, want)
	}
	return nil
}

func checkVoltageLevel(d *BaseDevice, kind string, vnKV float64) error {
	if !(vnKV > 0) || math.IsInf(vnKV, 0) {
		return fmt.Errorf("%s %s: nominal voltage must be positive, got %g kV", kind, d.Name, vnKV)
	}
	return nil
}

func checkNode(node, size int) error {
	if node < 0 || node >= size {
		return &pferr.TopologyError{Node: node, Element: -1, Reason: "node id out of range"}
	}
	return nil
}

// node returns the i-th resolved node or ground when the device is not wired yet.
func (d *BaseDevice) node(i int) int {
	if i >= len(d.Nodes) {
		return consts.GND
	}
	return d.Nodes[i]
}
