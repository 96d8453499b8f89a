package netlist

import (
	"fmt"
	"strings"

	"github.com/edp1096/toy-powerflow/pkg/device"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

// CreateDevice turns a card into a device. Branch cards take their voltage
// level from vn=, falling back to the netlist base.
func CreateDevice(elem Element, base Base) (device.Device, error) {
	base = base.withDefaults()
	vn, err := paramValue(elem, "vn", base.VnKV)
	if err != nil {
		return nil, err
	}

	switch elem.Type {
	case "L":
		g, err := paramValue(elem, "g", 0)
		if err != nil {
			return nil, err
		}
		b, err := paramValue(elem, "b", 0)
		if err != nil {
			return nil, err
		}
		line := device.NewLine(elem.Name, elem.Nodes, elem.Values[0], elem.Values[1], b, vn)
		line.G = g
		return line, nil

	case "T":
		tap, err := paramValue(elem, "ratio", 1)
		if err != nil {
			return nil, err
		}
		shift, err := paramValue(elem, "shift", 0)
		if err != nil {
			return nil, err
		}
		return device.NewTransformer(elem.Name, elem.Nodes, elem.Values[0], elem.Values[1], tap, shift, vn), nil

	case "S":
		return device.NewShunt(elem.Name, elem.Nodes, complex(elem.Values[0], elem.Values[1]), vn), nil

	case "K":
		closed := true
		if state, ok := elem.Params["state"]; ok {
			switch strings.ToLower(state) {
			case "closed":
			case "open":
				closed = false
			default:
				return nil, fmt.Errorf("%s: invalid state %q", elem.Name, state)
			}
		}
		sw := device.NewSwitch(elem.Name, elem.Nodes, closed)
		if sw.ZOhm, err = paramValue(elem, "z", 0); err != nil {
			return nil, err
		}
		sw.VnKV = vn
		return sw, nil

	case "E":
		vm, err := paramValue(elem, "vm", 1)
		if err != nil {
			return nil, err
		}
		va, err := paramValue(elem, "va", 0)
		if err != nil {
			return nil, err
		}
		grid := device.NewExtGrid(elem.Name, elem.Nodes, vm, va)
		grid.VnKV = vn
		return grid, nil

	case "G":
		gen := device.NewGenerator(elem.Name, elem.Nodes, elem.Values[0], elem.Values[1])
		if gen.QMin, err = paramValue(elem, "qmin", gen.QMin); err != nil {
			return nil, err
		}
		if gen.QMax, err = paramValue(elem, "qmax", gen.QMax); err != nil {
			return nil, err
		}
		if gen.QMin > gen.QMax {
			return nil, fmt.Errorf("%s: qmin %g exceeds qmax %g", elem.Name, gen.QMin, gen.QMax)
		}
		return gen, nil

	case "P":
		return device.NewLoad(elem.Name, elem.Nodes, elem.Values[0], elem.Values[1]), nil

	case "W":
		return device.NewStaticGen(elem.Name, elem.Nodes, elem.Values[0], elem.Values[1]), nil
	}
	return nil, fmt.Errorf("unsupported device type: %s", elem.Type)
}

// BuildTopology creates the devices of a parsed netlist and assembles them
// into a validated topology. Node ids follow the order of first appearance;
// buses tied by a closed switch share the node of the first one.
func BuildTopology(data *NetlistData) (*network.Topology, error) {
	base := data.Base.withDefaults()
	b := network.NewBuilder(base.SBaseMVA)
	for _, elem := range data.Elements {
		dev, err := CreateDevice(elem, base)
		if err != nil {
			return nil, err
		}
		b.Add(dev)
	}
	return b.Build()
}

func paramValue(elem Element, key string, def float64) (float64, error) {
	raw, ok := elem.Params[key]
	if !ok {
		return def, nil
	}
	v, err := ParseValue(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid %s: %v", elem.Name, key, err)
	}
	return v, nil
}
