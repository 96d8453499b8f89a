package util

import (
	"bytes"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatValueFactor(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  string
	}{
		{81.322e6, "W", "81.322 MW"},
		{-1.68e6, "var", "-1.680 Mvar"},
		{2500, "W", "2.500 kW"},
		{0, "W", "0.000 W"},
		{0.5, "A", "500.000 mA"},
		{2e-5, "A", "20.000 uA"},
	}
	for _, tt := range tests {
		if got := FormatValueFactor(tt.value, tt.unit); got != tt.want {
			t.Fatalf("FormatValueFactor(%v, %q) = %q, want %q", tt.value, tt.unit, got, tt.want)
		}
	}
}

func TestFormatVoltage(t *testing.T) {
	v := cmplx.Rect(0.993044, -2.3506*math.Pi/180)
	got := FormatVoltage("V(a)", v)
	if want := "V(a)= 0.99304<  -2.351deg"; got != want {
		t.Fatalf("FormatVoltage = %q, want %q", got, want)
	}
}

func TestFormatPower(t *testing.T) {
	got := FormatPower(complex(0.5, -0.1), 100)
	if want := "P=50.000 MW Q=-10.000 Mvar"; got != want {
		t.Fatalf("FormatPower = %q, want %q", got, want)
	}
}

func TestConvergenceChart(t *testing.T) {
	p, err := ConvergenceChart("two bus", []float64{1, 0.1, 1e-4, 1e-9, 0})
	if err != nil {
		t.Fatalf("ConvergenceChart: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteChart(&buf, p, "svg"); err != nil {
		t.Fatalf("WriteChart: %v", err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Fatalf("output is not an SVG document")
	}

	path := filepath.Join(t.TempDir(), "conv.png")
	if err := SaveChart(p, path); err != nil {
		t.Fatalf("SaveChart: %v", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Fatalf("png not written: %v", err)
	}
}

func TestConvergenceChartRejects(t *testing.T) {
	if _, err := ConvergenceChart("empty", nil); err == nil {
		t.Fatalf("empty history accepted")
	}
	if _, err := ConvergenceChart("inf", []float64{1, math.Inf(1)}); err == nil {
		t.Fatalf("infinite mismatch accepted")
	}
}

func TestSweepChart(t *testing.T) {
	results := map[string][]float64{
		"SCALE": {1, 2, 3},
		"VM(a)": {0.99, 0.97, 0.95},
		"VM(b)": {0.98, 0.95, 0.91},
	}
	p, err := SweepChart("nose", results, []string{"b", "a"})
	if err != nil {
		t.Fatalf("SweepChart: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteChart(&buf, p, "svg"); err != nil {
		t.Fatalf("WriteChart: %v", err)
	}

	if _, err := SweepChart("nose", results, []string{"c"}); err == nil {
		t.Fatalf("unknown node accepted")
	}
	if _, err := SweepChart("nose", map[string][]float64{}, nil); err == nil {
		t.Fatalf("empty results accepted")
	}
}
