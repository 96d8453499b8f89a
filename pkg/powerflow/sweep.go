package powerflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/edp1096/toy-powerflow/internal/logging"
	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

// Sweep scales every scheduled injection (PQ loads and PV real power) by a
// factor stepped from Start to Stop and solves each step warm-started from the
// previous one. The curve ends at the first step that does not converge, so
// Points only holds converged operating points.
//
// Results are keyed SCALE, ITER, VM(name) and VA(name), angles in degrees.
type Sweep struct {
	analysis.BaseAnalysis

	solver            *Solver
	start, stop, step float64
	points            []SweepPoint
}

type SweepPoint struct {
	Scale  float64
	Result *Result
}

func NewSweep(s *Solver, start, stop, step float64) (*Sweep, error) {
	if !(step > 0) {
		return nil, fmt.Errorf("sweep step must be positive, got %g", step)
	}
	if stop < start {
		return nil, fmt.Errorf("sweep stop %g is below start %g", stop, start)
	}
	return &Sweep{
		BaseAnalysis: *analysis.NewBaseAnalysis(),
		solver:       s,
		start:        start,
		stop:         stop,
		step:         step,
	}, nil
}

// Scales lists the sweep factors. They are computed from the step index so
// rounding does not accumulate.
func (sw *Sweep) Scales() []float64 {
	n := int(math.Floor((sw.stop-sw.start)/sw.step+1e-9)) + 1
	scales := make([]float64, n)
	for k := range scales {
		scales[k] = sw.start + float64(k)*sw.step
	}
	return scales
}

func (sw *Sweep) Points() []SweepPoint { return sw.points }

// Run executes the sweep on topo. Topology errors abort it; a step that fails
// to converge or hits a singular Jacobian only ends the curve.
func (sw *Sweep) Run(ctx context.Context, topo *network.Topology) error {
	sw.BaseAnalysis = *analysis.NewBaseAnalysis()
	sw.points = nil
	log := sw.solver.logger

	guess := sw.solver.cfg.InitialVoltage
	for _, scale := range sw.Scales() {
		res, err := sw.solver.solve(ctx, ScaleInjections(topo, scale), guess)
		if errors.Is(err, pferr.ErrTopology) {
			return err
		}
		if err != nil {
			log.Warn(ctx, "sweep stopped on solve failure", logging.Float("scale", scale), logging.Err(err))
			return nil
		}
		if !res.Converged {
			log.Info(ctx, "sweep stopped at first non-converged step", logging.Float("scale", scale))
			return nil
		}

		sw.points = append(sw.points, SweepPoint{Scale: scale, Result: res})
		sw.StoreStepResult("SCALE", scale, sweepSolution(topo, res))
		guess = res.Voltage
	}
	return nil
}

func sweepSolution(topo *network.Topology, res *Result) map[string]float64 {
	solution := map[string]float64{"ITER": float64(res.Iterations)}
	for id, v := range res.Voltage {
		name := topo.Nodes[id].Name
		if name == "" {
			name = fmt.Sprint(id)
		}
		solution[fmt.Sprintf("VM(%s)", name)] = cmplx.Abs(v)
		solution[fmt.Sprintf("VA(%s)", name)] = cmplx.Phase(v) * 180 / math.Pi
	}
	return solution
}

// ScaleInjections returns a copy of topo with the schedule of every PQ and PV
// node multiplied by scale. Slack nodes and voltage setpoints are unchanged.
func ScaleInjections(topo *network.Topology, scale float64) *network.Topology {
	out := topo.Clone()
	for i := range out.Nodes {
		if out.Nodes[i].Role == network.Slack {
			continue
		}
		out.Nodes[i].S *= complex(scale, 0)
	}
	return out
}
