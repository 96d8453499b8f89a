package device

import (
	"fmt"
)

// Line is a π-model: series r+jx with half of the total charging g+jb at each
// end. R and X are in ohm, G and B in siemens, all at the nominal voltage VnKV.
type Line struct {
	BaseDevice
	R    float64
	X    float64
	G    float64 // total shunt conductance
	B    float64 // total shunt susceptance
	VnKV float64
}

func NewLine(name string, nodeNames []string, r, x, b, vnKV float64) *Line {
	return &Line{
		BaseDevice: newBaseDevice(name, nodeNames),
		R:          r,
		X:          x,
		B:          b,
		VnKV:       vnKV,
	}
}

// LineParams are the physical per-length parameters of an overhead line or cable.
type LineParams struct {
	ROhmPerKm float64
	XOhmPerKm float64
	GUsPerKm  float64
	CNfPerKm  float64
	LengthKm  float64
	Parallel  int
	FreqHz    float64 // 0 means consts.DefaultFreqHz
}

// NewLineFromParams lumps physical line data into a π-model at vnKV.
func NewLineFromParams(name string, nodeNames []string, p LineParams, vnKV float64) (*Line, error) {
	parallel := float64(p.Parallel)
	if p.Parallel <= 0 {
		parallel = 1
	}
	if p.LengthKm <= 0 {
		return nil, fmt.Errorf("line %s: length must be positive, got %g", name, p.LengthKm)
	}

	r := p.ROhmPerKm * p.LengthKm / parallel
	x := p.XOhmPerKm * p.LengthKm / parallel
	g := p.GUsPerKm * 1e-6 * p.LengthKm * parallel
	b := omega(p.FreqHz) * p.CNfPerKm * 1e-9 * p.LengthKm * parallel

	l := NewLine(name, nodeNames, r, x, b, vnKV)
	l.G = g
	return l, nil
}

func (l *Line) GetType() string { return "L" }

func (l *Line) Branches() ([]Branch, error) {
	if err := checkNodeCount(&l.BaseDevice, "line", 2); err != nil {
		return nil, err
	}
	if err := checkVoltageLevel(&l.BaseDevice, "line", l.VnKV); err != nil {
		return nil, err
	}
	if l.R == 0 && l.X == 0 {
		return nil, fmt.Errorf("line %s: zero series impedance", l.Name)
	}

	from, to := l.node(0), l.node(1)
	out := []Branch{Series(from, to, 1/complex(l.R, l.X), l.VnKV)}
	if l.G != 0 || l.B != 0 {
		half := complex(0.5*l.G, 0.5*l.B)
		out = append(out, Shunt(from, half, l.VnKV), Shunt(to, half, l.VnKV))
	}
	return out, nil
}
