package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/internal/logging"
	"github.com/edp1096/toy-powerflow/internal/observability"
	"github.com/edp1096/toy-powerflow/pkg/netlist"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/powerflow"
	"github.com/edp1096/toy-powerflow/pkg/solver"
	"github.com/edp1096/toy-powerflow/pkg/util"
)

type options struct {
	backend     string
	tol         float64
	maxIter     int
	qlim        bool
	plot        string
	metricsAddr string
	verbose     bool

	set map[string]bool // flags given on the command line
}

func parseFlags(args []string) (*options, []string, error) {
	fs := flag.NewFlagSet("powerflow", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.backend, "backend", solver.Default, "linear solver backend ("+strings.Join(solver.Names(), ", ")+")")
	fs.Float64Var(&opts.tol, "tol", consts.DefaultTolerance, "mismatch tolerance (p.u.)")
	fs.IntVar(&opts.maxIter, "maxiter", consts.DefaultMaxIterations, "Newton iterations per round")
	fs.BoolVar(&opts.qlim, "qlim", false, "enforce generator reactive limits")
	fs.StringVar(&opts.plot, "plot", "", "write a convergence (or sweep) chart to this file")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address and wait for a signal")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, fs.Args(), nil
}

// config layers the environment, the netlist .pf card and explicit flags, in
// that order.
func (o *options) config(data *netlist.NetlistData) (powerflow.Config, error) {
	cfg, err := powerflow.ConfigFromEnv()
	if err != nil {
		return cfg, err
	}

	pf := data.PFParam
	if pf.Tolerance > 0 {
		cfg.Tolerance = pf.Tolerance
	}
	if pf.MaxIter > 0 {
		cfg.MaxIterations = pf.MaxIter
	}
	if pf.QLim {
		cfg.EnforceQLimits = true
	}
	if pf.Backend != "" {
		cfg.Backend = pf.Backend
	}

	if o.set["tol"] {
		cfg.Tolerance = o.tol
	}
	if o.set["maxiter"] {
		cfg.MaxIterations = o.maxIter
	}
	if o.set["qlim"] {
		cfg.EnforceQLimits = o.qlim
	}
	if o.set["backend"] {
		cfg.Backend = o.backend
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, rest, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return errors.New("usage: powerflow [flags] <netlist_file>")
	}

	log := logging.NewFromEnv()
	if opts.verbose {
		log = logging.New(logging.Config{Level: "debug", Format: os.Getenv("LOG_FORMAT")})
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	// 1. Open and read netlist
	content, err := os.ReadFile(rest[0])
	if err != nil {
		return fmt.Errorf("reading netlist file: %w", err)
	}

	// 2. Parse netlist
	data, err := netlist.Parse(string(content))
	if err != nil {
		return fmt.Errorf("parsing netlist: %w", err)
	}

	// 3. Build network
	topo, err := netlist.BuildTopology(data)
	if err != nil {
		return fmt.Errorf("building network: %w", err)
	}

	// 4. Setup solver
	cfg, err := opts.config(data)
	if err != nil {
		return err
	}
	solverOpts := []powerflow.Option{powerflow.WithLogger(log)}

	var metricsSrv *http.Server
	if opts.metricsAddr != "" {
		metrics, err := observability.NewSolverCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		solverOpts = append(solverOpts, powerflow.WithMetrics(metrics))
		metricsSrv = serveMetrics(ctx, opts.metricsAddr, metrics.Handler(), log)
	}

	s, err := powerflow.NewSolver(cfg, solverOpts...)
	if err != nil {
		return err
	}

	// 5. Run analysis and print results
	switch data.Analysis {
	case netlist.AnalysisSweep:
		err = runSweep(ctx, s, data, topo, opts.plot, stdout)
	default:
		err = runPowerFlow(ctx, s, data, topo, opts.plot, stdout)
	}
	if err != nil {
		return err
	}

	if metricsSrv != nil {
		log.Info(ctx, "serving metrics until interrupted", logging.String("addr", opts.metricsAddr))
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server failed", logging.Err(err))
		}
	}()
	return srv
}

func runPowerFlow(ctx context.Context, s *powerflow.Solver, data *netlist.NetlistData, topo *network.Topology, plotPath string, w io.Writer) error {
	res, err := s.Solve(ctx, topo)
	if err != nil {
		return err
	}
	printResults(w, data.Title, topo, res)

	if plotPath != "" {
		p, err := util.ConvergenceChart(data.Title, res.History)
		if err != nil {
			return err
		}
		if err := util.SaveChart(p, plotPath); err != nil {
			return fmt.Errorf("writing chart: %w", err)
		}
	}
	if !res.Converged {
		return fmt.Errorf("power flow did not converge in %d iterations", res.Iterations)
	}
	return nil
}

func runSweep(ctx context.Context, s *powerflow.Solver, data *netlist.NetlistData, topo *network.Topology, plotPath string, w io.Writer) error {
	param := data.SweepParam
	sw, err := powerflow.NewSweep(s, param.Start, param.Stop, param.Step)
	if err != nil {
		return err
	}
	if err := sw.Run(ctx, topo); err != nil {
		return err
	}
	results := sw.GetResults()
	printSweep(w, topo, results, len(sw.Scales()))

	if plotPath != "" {
		var names []string
		for _, n := range topo.Nodes {
			if n.Role == network.PQ {
				names = append(names, n.Name)
			}
		}
		p, err := util.SweepChart(data.Title, results, names)
		if err != nil {
			return err
		}
		if err := util.SaveChart(p, plotPath); err != nil {
			return fmt.Errorf("writing chart: %w", err)
		}
	}
	return nil
}

func printResults(w io.Writer, title string, topo *network.Topology, res *powerflow.Result) {
	fmt.Fprintf(w, "\nPower Flow Results: %s\n", title)
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "converged=%v iterations=%d rounds=%d\n", res.Converged, res.Iterations, res.Rounds)

	fmt.Fprintln(w, "\nNode Voltages:")
	for i, node := range topo.Nodes {
		fmt.Fprintf(w, "%-6s %-12s %s  %s\n",
			res.Roles[i], node.Name,
			util.FormatVoltage("V("+node.Name+")", res.Voltage[i]),
			util.FormatPower(res.Injection[i], topo.SBaseMVA))
	}

	if len(res.Switched) > 0 {
		names := make([]string, len(res.Switched))
		for i, id := range res.Switched {
			names[i] = topo.Nodes[id].Name
		}
		fmt.Fprintf(w, "\nReactive limits hit at: %s\n", strings.Join(names, ", "))
	}

	fmt.Fprintln(w, "\nBranch Flows:")
	var loss complex128
	for _, f := range res.Branches {
		to := "gnd"
		if f.To >= 0 {
			to = topo.Nodes[f.To].Name
		}
		fmt.Fprintf(w, "%3d %s -> %s  %s  loss %s\n", f.Index, topo.Nodes[f.From].Name, to,
			util.FormatPower(f.SFrom, topo.SBaseMVA),
			util.FormatPower(f.Loss, topo.SBaseMVA))
		loss += f.Loss
	}
	fmt.Fprintf(w, "\nTotal losses: %s\n", util.FormatPower(loss, topo.SBaseMVA))
}

func printSweep(w io.Writer, topo *network.Topology, results map[string][]float64, planned int) {
	scales := results["SCALE"]
	fmt.Fprintf(w, "\nLoad Sweep Results (%d of %d points):\n", len(scales), planned)
	fmt.Fprintln(w, "Scale     Iter  Node Voltages")
	fmt.Fprintln(w, "------------------------------------------------")

	var names []string
	for _, n := range topo.Nodes {
		names = append(names, n.Name)
	}
	sort.Strings(names)

	for i, scale := range scales {
		fmt.Fprintf(w, "%-9.4g %4.0f  ", scale, results["ITER"][i])
		for _, name := range names {
			fmt.Fprintf(w, "%s=%s  ", name, util.FormatMagnitude(results["VM("+name+")"][i]))
		}
		fmt.Fprintln(w)
	}
	if len(scales) < planned {
		fmt.Fprintln(w, "sweep ended early: no converged operating point beyond the last scale")
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(os.Args[0]), err)
		os.Exit(1)
	}
}
