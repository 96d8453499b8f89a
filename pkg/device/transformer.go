package device

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Transformer is a series impedance behind an ideal transformer with complex
// ratio on the HV side. R, X (ohm) and the magnetizing admittance Ym (siemens)
// are referred to the LV terminal. Ym is stamped as a shunt on the HV node.
//
// The per-unit ratio combines the tap with the mismatch between the rated
// winding voltages and the nominal voltages of the connected buses. A zero
// bus voltage means the bus is nominal at the rated winding voltage, and a
// zero VnHVKV leaves the HV side at nominal ratio.
type Transformer struct {
	BaseDevice
	R        float64
	X        float64
	Tap      float64 // off-nominal ratio magnitude, 0 means 1
	ShiftDeg float64
	Ym       complex128

	VnHVKV  float64
	VnLVKV  float64
	HVBusKV float64
	LVBusKV float64
}

func NewTransformer(name string, nodeNames []string, r, x, tap, shiftDeg, vnLVKV float64) *Transformer {
	return &Transformer{
		BaseDevice: newBaseDevice(name, nodeNames),
		R:          r,
		X:          x,
		Tap:        tap,
		ShiftDeg:   shiftDeg,
		VnLVKV:     vnLVKV,
	}
}

// TransformerRating is two-winding nameplate data.
type TransformerRating struct {
	SnMVA      float64
	VnHVKV     float64
	VnLVKV     float64
	VkPercent  float64
	VkrPercent float64
	I0Percent  float64
	PfeKW      float64
	ShiftDeg   float64
	TapPos     float64
	TapNeutral float64
	TapStepPct float64
	TapStepDeg float64
	Parallel   int
}

// NewTransformerFromRating converts nameplate data to impedances referred to
// the LV side. hvBusKV and lvBusKV are the nominal voltages of the buses the
// windings connect to.
func NewTransformerFromRating(name string, nodeNames []string, rt TransformerRating, hvBusKV, lvBusKV float64) (*Transformer, error) {
	if rt.SnMVA <= 0 || rt.VnHVKV <= 0 || rt.VnLVKV <= 0 {
		return nil, fmt.Errorf("transformer %s: rated power and voltages must be positive", name)
	}
	if rt.VkPercent <= 0 || rt.VkrPercent > rt.VkPercent {
		return nil, fmt.Errorf("transformer %s: invalid short-circuit voltage vk=%g%% vkr=%g%%", name, rt.VkPercent, rt.VkrPercent)
	}
	parallel := float64(rt.Parallel)
	if rt.Parallel <= 0 {
		parallel = 1
	}

	zRated := ZBase(rt.VnLVKV, rt.SnMVA)
	zk := zRated * rt.VkPercent * 0.01
	rk := zRated * rt.VkrPercent * 0.01
	xk := math.Sqrt(zk*zk - rk*rk)

	steps := rt.TapPos - rt.TapNeutral
	tap := 1 + steps*rt.TapStepPct*0.01
	shift := rt.ShiftDeg + steps*rt.TapStepDeg

	t := NewTransformer(name, nodeNames, rk/parallel, xk/parallel, tap, shift, rt.VnLVKV)
	t.VnHVKV = rt.VnHVKV
	t.HVBusKV = hvBusKV
	t.LVBusKV = lvBusKV

	if rt.I0Percent > 0 {
		zm := zRated / (rt.I0Percent * 0.01)
		rm := zRated * (rt.PfeKW * 0.001) / rt.SnMVA
		xm := math.Sqrt(math.Max(zm*zm-rm*rm, 0))
		t.Ym = complex(parallel, 0) / complex(rm, xm)
	}

	return t, nil
}

func (t *Transformer) GetType() string { return "T" }

func (t *Transformer) lvBase() float64 {
	if t.LVBusKV > 0 {
		return t.LVBusKV
	}
	return t.VnLVKV
}

// nominalRatio is the rated turns ratio relative to the bus voltage ratio.
func (t *Transformer) nominalRatio() float64 {
	ratio := 1.0
	if t.VnHVKV > 0 && t.HVBusKV > 0 {
		ratio *= t.VnHVKV / t.HVBusKV
	}
	if t.LVBusKV > 0 {
		ratio /= t.VnLVKV / t.LVBusKV
	}
	return ratio
}

// Ratio is the per-unit complex turns ratio applied on the HV side.
func (t *Transformer) Ratio() complex128 {
	tap := t.Tap
	if tap == 0 {
		tap = 1
	}
	return cmplx.Rect(tap*t.nominalRatio(), t.ShiftDeg*math.Pi/180)
}

func (t *Transformer) Branches() ([]Branch, error) {
	if err := checkNodeCount(&t.BaseDevice, "transformer", 2); err != nil {
		return nil, err
	}
	if err := checkVoltageLevel(&t.BaseDevice, "transformer", t.VnLVKV); err != nil {
		return nil, err
	}
	if t.R == 0 && t.X == 0 {
		return nil, fmt.Errorf("transformer %s: zero series impedance", t.Name)
	}

	hv, lv := t.node(0), t.node(1)
	k := t.Ratio()
	vb := t.lvBase()
	series := Series(hv, lv, 1/complex(t.R, t.X), vb)
	series.Ratio = 1 / k
	out := []Branch{series}
	if t.Ym != 0 {
		out = append(out, Shunt(hv, t.Ym/complex(real(k*cmplx.Conj(k)), 0), vb))
	}
	return out, nil
}
