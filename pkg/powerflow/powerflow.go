// Package powerflow runs the complete solve pipeline: admittance assembly,
// role partitioning, the Newton engine and mapping results back to node
// order, with optional reactive-limit enforcement on top.
package powerflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edp1096/toy-powerflow/internal/logging"
	"github.com/edp1096/toy-powerflow/internal/observability"
	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/ordering"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
	"github.com/edp1096/toy-powerflow/pkg/solver"
)

// Result is reported in original node order.
type Result struct {
	Voltage    []complex128
	Iterations int // Newton updates summed over all rounds
	Converged  bool

	// Injection is the complex power injected at every node by the converged
	// voltages, S = V·conj(Y·V). For Slack and PV nodes it resolves the
	// quantities the solve left free.
	Injection []complex128
	Branches  []BranchFlow

	// Roles after reactive-limit enforcement; Switched lists the PV nodes
	// that were turned into PQ nodes.
	Roles    []network.Role
	Switched []int
	Rounds   int

	History []float64 // mismatch norms of every iteration of every round
}

type Option func(*Solver)

func WithLogger(l logging.Logger) Option {
	return func(s *Solver) { s.logger = logging.OrNoop(l) }
}

func WithMetrics(c *observability.SolverCollector) Option {
	return func(s *Solver) { s.metrics = c }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Solver) { s.tracer = observability.Tracer(tp) }
}

// Solver owns one linear backend. Its factorization cache is reused across
// calls, so a Solver must not be used from several goroutines at once.
type Solver struct {
	cfg     Config
	backend solver.Backend

	logger  logging.Logger
	metrics *observability.SolverCollector
	tracer  trace.Tracer
}

func NewSolver(cfg Config, opts ...Option) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("powerflow: invalid config: %w", err)
	}
	backend, err := solver.New(cfg.Backend)
	if err != nil {
		return nil, err
	}

	s := &Solver{
		cfg:     cfg,
		backend: backend,
		logger:  logging.Noop(),
		tracer:  observability.Tracer(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Solver) Config() Config { return s.cfg }

func (s *Solver) Backend() solver.Backend { return s.backend }

// Solve computes the operating point of topo. Non-convergence is reported
// through Result.Converged; errors are either topology problems (ErrTopology)
// or linear-solve failures (ErrSolve).
func (s *Solver) Solve(ctx context.Context, topo *network.Topology) (*Result, error) {
	return s.solve(ctx, topo, s.cfg.InitialVoltage)
}

func (s *Solver) solve(ctx context.Context, topo *network.Topology, guess []complex128) (res *Result, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	before := s.backend.Stats()
	backendName := s.backend.Name()

	ctx, span := s.tracer.Start(ctx, "powerflow.Solve", trace.WithAttributes(
		attribute.Int("powerflow.nodes", topo.Size()),
		attribute.Int("powerflow.branches", len(topo.Branches)),
		attribute.String("powerflow.backend", backendName),
	))
	defer func() {
		stats := s.backend.Stats().Sub(before)
		s.metrics.AddFactorizations(backendName, stats.Symbolic, stats.Numeric)

		outcome := observability.OutcomeConverged
		iterations := 0
		switch {
		case errors.Is(err, pferr.ErrTopology):
			outcome = observability.OutcomeInvalid
		case err != nil:
			outcome = observability.OutcomeSolveFailed
		case !res.Converged:
			outcome = observability.OutcomeNotConverged
		}
		if res != nil {
			iterations = res.Iterations
			span.SetAttributes(
				attribute.Int("powerflow.iterations", res.Iterations),
				attribute.Bool("powerflow.converged", res.Converged),
				attribute.Int("powerflow.qlimit_switches", len(res.Switched)),
			)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.ObserveSolve(backendName, outcome, iterations, time.Since(start))
	}()

	if err := topo.Validate(); err != nil {
		return nil, err
	}
	s.metrics.SetNetworkSize(topo.Size(), len(topo.Branches))

	y, err := s.assemble(ctx, topo)
	if err != nil {
		return nil, err
	}

	res = &Result{}
	cur := topo
	for round := 0; ; round++ {
		v, run, err := s.newton(ctx, y, cur, guess, round)
		res.Iterations += run.Iterations
		res.History = append(res.History, run.History...)
		res.Rounds = round + 1
		if err != nil {
			return nil, fmt.Errorf("powerflow: round %d: %w", round, err)
		}
		res.Voltage = v
		res.Converged = run.Converged
		if !run.Converged || !s.cfg.EnforceQLimits {
			break
		}

		inj, _ := analysis.PowerInjection(y, v)
		next, switched := EnforceQLimits(cur, inj)
		if len(switched) == 0 {
			break
		}
		if round+1 >= s.cfg.MaxQLimitRounds {
			s.logger.Warn(ctx, "reactive limits still violated after the last round",
				logging.Int("rounds", res.Rounds), logging.Any("nodes", switched))
			break
		}
		s.logger.Info(ctx, "PV nodes switched to PQ on reactive limits",
			logging.Int("round", round), logging.Any("nodes", switched))
		s.metrics.AddQLimitSwitches(len(switched))
		res.Switched = append(res.Switched, switched...)
		cur = next
		guess = v
	}

	res.Roles = cur.Roles()
	res.Injection, res.Branches = PostProcess(y, cur, res.Voltage)

	level := s.logger.Info
	if !res.Converged {
		level = s.logger.Warn
	}
	level(ctx, "power flow finished",
		logging.Int("nodes", topo.Size()),
		logging.Int("iterations", res.Iterations),
		logging.Bool("converged", res.Converged),
		logging.String("backend", backendName),
	)
	return res, nil
}

func (s *Solver) assemble(ctx context.Context, topo *network.Topology) (*matrix.CSR[complex128], error) {
	_, span := s.tracer.Start(ctx, "powerflow.assemble")
	defer span.End()

	y, err := network.BuildAdmittance(topo.Size(), topo.SBaseMVA, topo.Branches)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("powerflow.ybus_nnz", y.NNZ()))
	return y, nil
}

// newton runs one Newton solve with fixed roles and returns the voltages in
// original order.
func (s *Solver) newton(ctx context.Context, y *matrix.CSR[complex128], topo *network.Topology, guess []complex128, round int) ([]complex128, analysis.Result, error) {
	ctx, span := s.tracer.Start(ctx, "powerflow.newton", trace.WithAttributes(attribute.Int("powerflow.round", round)))
	defer span.End()

	perm, err := ordering.Build(topo.Roles())
	if err != nil {
		return nil, analysis.Result{}, err
	}
	s.logger.Debug(ctx, "node partition",
		logging.Int("slack", perm.NSlack), logging.Int("pv", perm.NPV), logging.Int("pq", perm.NPQ))

	sys, err := analysis.NewSystem(y, topo.Nodes, perm, guess)
	if err != nil {
		return nil, analysis.Result{}, err
	}

	nr := analysis.NewNewtonRaphson(s.backend)
	nr.SetConvergence(s.cfg.Tolerance, s.cfg.MaxIterations)
	nr.SetLogger(s.logger)
	if err := nr.Setup(sys); err != nil {
		return nil, analysis.Result{}, err
	}
	err = nr.Execute(ctx)
	run := nr.Result()
	span.SetAttributes(
		attribute.Int("powerflow.iterations", run.Iterations),
		attribute.String("powerflow.state", run.State.String()),
	)
	if err != nil {
		span.RecordError(err)
		return nil, run, err
	}
	return ordering.Unapply(perm, run.V), run, nil
}
