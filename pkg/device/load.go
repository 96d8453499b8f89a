package device

// Load consumes P + jQ in MW and Mvar, consumption positive.
type Load struct {
	BaseDevice
	P float64
	Q float64
}

func NewLoad(name string, nodeNames []string, p, q float64) *Load {
	return &Load{BaseDevice: newBaseDevice(name, nodeNames), P: p, Q: q}
}

func (l *Load) GetType() string { return "P" }

func (l *Load) Inject(bus BusSetter) error {
	return bus.AddPower(l.node(0), complex(-l.P, -l.Q))
}

// StaticGen injects P + jQ (MW, Mvar) regardless of voltage.
type StaticGen struct {
	BaseDevice
	P float64
	Q float64
}

func NewStaticGen(name string, nodeNames []string, p, q float64) *StaticGen {
	return &StaticGen{BaseDevice: newBaseDevice(name, nodeNames), P: p, Q: q}
}

func (g *StaticGen) GetType() string { return "W" }

func (g *StaticGen) Inject(bus BusSetter) error {
	return bus.AddPower(g.node(0), complex(g.P, g.Q))
}
