package device

import "math"

// Generator regulates voltage magnitude (p.u.) while injecting a fixed active
// power in MW. QMin/QMax bound its reactive output in Mvar; use ±Inf when
// unlimited.
type Generator struct {
	BaseDevice
	P    float64
	Vm   float64
	QMin float64
	QMax float64
}

func NewGenerator(name string, nodeNames []string, p, vm float64) *Generator {
	return &Generator{
		BaseDevice: newBaseDevice(name, nodeNames),
		P:          p,
		Vm:         vm,
		QMin:       math.Inf(-1),
		QMax:       math.Inf(1),
	}
}

func (g *Generator) GetType() string { return "G" }

func (g *Generator) Inject(bus BusSetter) error {
	return bus.MarkPV(g.node(0), g.P, g.Vm, g.QMin, g.QMax)
}
