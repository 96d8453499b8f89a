package device

import "fmt"

// ShuntElement is an admittance in siemens from a node to ground, switched in
// Step identical stages.
type ShuntElement struct {
	BaseDevice
	Y    complex128
	Step int
	VnKV float64
}

func NewShunt(name string, nodeNames []string, y complex128, vnKV float64) *ShuntElement {
	return &ShuntElement{
		BaseDevice: newBaseDevice(name, nodeNames),
		Y:          y,
		Step:       1,
		VnKV:       vnKV,
	}
}

// NewShuntFromPower builds a shunt drawing p + jq (MW, Mvar) per step at the
// nominal voltage vnKV. Capacitor banks have negative q.
func NewShuntFromPower(name string, nodeNames []string, pMW, qMvar float64, step int, vnKV float64) *ShuntElement {
	sh := NewShunt(name, nodeNames, complex(pMW, -qMvar)/complex(vnKV*vnKV, 0), vnKV)
	sh.Step = step
	return sh
}

func (s *ShuntElement) GetType() string { return "S" }

func (s *ShuntElement) Branches() ([]Branch, error) {
	if err := checkNodeCount(&s.BaseDevice, "shunt", 1); err != nil {
		return nil, err
	}
	if err := checkVoltageLevel(&s.BaseDevice, "shunt", s.VnKV); err != nil {
		return nil, err
	}
	if s.Step < 0 {
		return nil, fmt.Errorf("shunt %s: negative step %d", s.Name, s.Step)
	}
	if s.Step == 0 {
		return nil, nil
	}
	return []Branch{Shunt(s.node(0), s.Y*complex(float64(s.Step), 0), s.VnKV)}, nil
}
