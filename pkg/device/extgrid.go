package device

// ExtGrid is the slack source. Vm and VaDeg fix the node voltage; a nonzero
// Ysc (siemens at VnKV) is stamped as a self-term on the node.
type ExtGrid struct {
	BaseDevice
	Vm    float64
	VaDeg float64
	Ysc   complex128
	VnKV  float64
}

func NewExtGrid(name string, nodeNames []string, vm, vaDeg float64) *ExtGrid {
	return &ExtGrid{
		BaseDevice: newBaseDevice(name, nodeNames),
		Vm:         vm,
		VaDeg:      vaDeg,
	}
}

func (e *ExtGrid) GetType() string { return "E" }

func (e *ExtGrid) Branches() ([]Branch, error) {
	if err := checkNodeCount(&e.BaseDevice, "ext grid", 1); err != nil {
		return nil, err
	}
	if e.Ysc == 0 {
		return nil, nil
	}
	if err := checkVoltageLevel(&e.BaseDevice, "ext grid", e.VnKV); err != nil {
		return nil, err
	}
	return []Branch{Shunt(e.node(0), e.Ysc, e.VnKV)}, nil
}

func (e *ExtGrid) Inject(bus BusSetter) error {
	return bus.MarkSlack(e.node(0), e.Vm, e.VaDeg)
}
