package device

import "fmt"

// Switch ties two buses together. A closed switch without impedance makes
// both buses one electrical node; with ZOhm > 0 it is a series resistance.
// An open switch contributes nothing.
type Switch struct {
	BaseDevice
	Closed bool
	ZOhm   float64
	VnKV   float64
}

func NewSwitch(name string, nodeNames []string, closed bool) *Switch {
	return &Switch{BaseDevice: newBaseDevice(name, nodeNames), Closed: closed}
}

func (s *Switch) GetType() string { return "K" }

// Merges reports whether the two buses collapse into one node.
func (s *Switch) Merges() bool { return s.Closed && s.ZOhm == 0 }

func (s *Switch) Branches() ([]Branch, error) {
	if err := checkNodeCount(&s.BaseDevice, "switch", 2); err != nil {
		return nil, err
	}
	if s.ZOhm < 0 {
		return nil, fmt.Errorf("switch %s: negative impedance %g", s.Name, s.ZOhm)
	}
	if !s.Closed || s.ZOhm == 0 {
		return nil, nil
	}
	if err := checkVoltageLevel(&s.BaseDevice, "switch", s.VnKV); err != nil {
		return nil, err
	}
	return []Branch{Series(s.node(0), s.node(1), complex(1/s.ZOhm, 0), s.VnKV)}, nil
}
