package powerflow

import (
	"context"
	"runtime"
	"sync"

	"github.com/edp1096/toy-powerflow/internal/logging"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

// BatchResult is the outcome of one scenario of a batch. Exactly one of
// Result and Err is set.
type BatchResult struct {
	Index  int
	RunID  string
	Result *Result
	Err    error
}

// SolveBatch solves independent scenarios on a pool of workers. Every worker
// owns its Solver, so factorization caches are never shared between
// goroutines. Scenarios not yet started when ctx is done report ctx.Err().
// workers <= 0 means one per CPU.
func SolveBatch(ctx context.Context, cfg Config, topos []*network.Topology, workers int, opts ...Option) ([]BatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(topos))

	solvers := make([]*Solver, workers)
	for w := range solvers {
		s, err := NewSolver(cfg, opts...)
		if err != nil {
			return nil, err
		}
		solvers[w] = s
	}

	results := make([]BatchResult, len(topos))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for _, s := range solvers {
		wg.Add(1)
		go func(s *Solver) {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = s.runScenario(ctx, idx, topos[idx])
			}
		}(s)
	}

	for idx := range topos {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	return results, ctx.Err()
}

func (s *Solver) runScenario(ctx context.Context, idx int, topo *network.Topology) BatchResult {
	if err := ctx.Err(); err != nil {
		return BatchResult{Index: idx, Err: err}
	}

	runCtx, log := logging.WithRunLogger(ctx, s.logger.With(logging.Int("scenario", idx)))
	scoped := *s
	scoped.logger = log

	res, err := scoped.Solve(runCtx, topo)
	if err != nil {
		log.Error(runCtx, "scenario failed", logging.Err(err))
	}
	return BatchResult{Index: idx, RunID: logging.RunID(runCtx), Result: res, Err: err}
}
