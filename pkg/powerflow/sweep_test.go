package powerflow

import (
	"context"
	"math"
	"testing"
)

func TestSweepScales(t *testing.T) {
	sw, err := NewSweep(newSolver(t, DefaultConfig()), 0.5, 1.5, 0.1)
	if err != nil {
		t.Fatalf("NewSweep: %v", err)
	}
	scales := sw.Scales()
	if len(scales) != 11 || math.Abs(scales[10]-1.5) > 1e-12 {
		t.Fatalf("Scales = %v, want 11 steps ending at 1.5", scales)
	}
}

func TestNewSweepRejectsBadRange(t *testing.T) {
	s := newSolver(t, DefaultConfig())
	for _, r := range [][3]float64{{1, 2, 0}, {1, 2, -1}, {2, 1, 0.5}, {1, 2, math.NaN()}} {
		if _, err := NewSweep(s, r[0], r[1], r[2]); err == nil {
			t.Fatalf("NewSweep(%v) succeeded", r)
		}
	}
}

func TestSweepReusesFactorization(t *testing.T) {
	s := newSolver(t, DefaultConfig())
	sw, err := NewSweep(s, 1, 3, 0.5)
	if err != nil {
		t.Fatalf("NewSweep: %v", err)
	}
	if err := sw.Run(context.Background(), fiveBus()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := len(sw.Points()); got != 5 {
		t.Fatalf("len(Points) = %d, want 5", got)
	}
	if got := s.Backend().Stats().Symbolic; got != 1 {
		t.Fatalf("Symbolic = %d over the sweep, want 1", got)
	}

	results := sw.GetResults()
	if got := len(results["SCALE"]); got != 5 {
		t.Fatalf("len(SCALE) = %d, want 5", got)
	}
	if got := results["VM(c)"][0]; math.Abs(got-0.986941) > 1e-5 {
		t.Fatalf("VM(c) at scale 1 = %v, want 0.986941", got)
	}
	if got := results["VA(grid)"][2]; got != 0 {
		t.Fatalf("VA(grid) = %v, want 0", got)
	}
	vm := results["VM(c)"]
	for k := 1; k < len(vm); k++ {
		if vm[k] >= vm[k-1] {
			t.Fatalf("VM(c) not decreasing with load: %v", vm)
		}
	}
}

func TestSweepStopsAtNose(t *testing.T) {
	sw, err := NewSweep(newSolver(t, DefaultConfig()), 1, 10, 3)
	if err != nil {
		t.Fatalf("NewSweep: %v", err)
	}
	if err := sw.Run(context.Background(), fiveBus()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	points := sw.Points()
	if len(points) != 3 || points[2].Scale != 7 {
		t.Fatalf("sweep kept %d points, want 3 ending at scale 7", len(points))
	}
	if got := len(sw.GetResults()["ITER"]); got != 3 {
		t.Fatalf("len(ITER) = %d, want 3", got)
	}
}
