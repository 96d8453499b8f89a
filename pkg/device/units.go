package device

import (
	"math"

	"github.com/edp1096/toy-powerflow/internal/consts"
)

// ZBase is the base impedance in ohm of a voltage level.
func ZBase(vBaseKV, sBaseMVA float64) float64 {
	return vBaseKV * vBaseKV / sBaseMVA
}

func omega(freqHz float64) float64 {
	if freqHz == 0 {
		freqHz = consts.DefaultFreqHz
	}
	return 2 * math.Pi * freqHz
}
