package util

import (
	"fmt"
	"math"
	"math/cmplx"
)

func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1e6:
		return fmt.Sprintf("%.3f M%s", value/1e6, unit)
	case absValue >= 1e3:
		return fmt.Sprintf("%.3f k%s", value/1e3, unit)
	case absValue >= 1 || absValue == 0:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	case absValue >= 1e-6:
		return fmt.Sprintf("%.3f u%s", value*1e6, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

// FormatVoltage prints a per-unit phasor as magnitude and angle in degrees.
func FormatVoltage(name string, v complex128) string {
	return FormatMagnitudePhase(name, cmplx.Abs(v), cmplx.Phase(v)*180/math.Pi)
}

func FormatMagnitudePhase(name string, value, phase float64) string {
	return fmt.Sprintf("%s=%s<%sdeg", name, FormatMagnitude(value), FormatPhase(phase))
}

func FormatMagnitude(value float64) string {
	if value >= 1000 || (value < 0.001 && value != 0) {
		return fmt.Sprintf("%8.2e", value) // "1.00e+03" or "5.43e-05"
	}
	return fmt.Sprintf("%8.5f", value) // " 0.99304"
}

func FormatPhase(value float64) string {
	return fmt.Sprintf("%8.3f", value) // "  -2.351"
}

// FormatPower prints a per-unit complex power converted to MW and Mvar on the
// given base.
func FormatPower(s complex128, sBaseMVA float64) string {
	return fmt.Sprintf("P=%s Q=%s",
		FormatValueFactor(real(s)*sBaseMVA*1e6, "W"),
		FormatValueFactor(imag(s)*sBaseMVA*1e6, "var"))
}
