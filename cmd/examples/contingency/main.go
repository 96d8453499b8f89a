package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/cmplx"
	"os"
	"slices"

	"github.com/edp1096/toy-powerflow/internal/logging"
	"github.com/edp1096/toy-powerflow/pkg/netlist"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
	"github.com/edp1096/toy-powerflow/pkg/powerflow"
)

// N-1 screening: every series branch is taken out in turn and the resulting
// scenarios are solved in parallel.
func main() {
	workers := flag.Int("workers", 0, "parallel solvers (0 = one per CPU)")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("Usage: contingency [-workers n] <netlist_file>")
	}

	content, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Error reading netlist file: %v", err)
	}
	data, err := netlist.Parse(string(content))
	if err != nil {
		log.Fatalf("Error parsing netlist: %v", err)
	}
	base, err := netlist.BuildTopology(data)
	if err != nil {
		log.Fatalf("Error building network: %v", err)
	}

	var outages []int
	var scenarios []*network.Topology
	for k, br := range base.Branches {
		if br.To < 0 {
			continue
		}
		topo := base.Clone()
		topo.Branches = slices.Delete(topo.Branches, k, k+1)
		outages = append(outages, k)
		scenarios = append(scenarios, topo)
	}

	results, err := powerflow.SolveBatch(context.Background(), powerflow.DefaultConfig(), scenarios, *workers,
		powerflow.WithLogger(logging.NewFromEnv()))
	if err != nil {
		log.Fatalf("Error solving scenarios: %v", err)
	}

	fmt.Printf("%-8s %-10s %-8s %s\n", "outage", "status", "min |V|", "at")
	for i, r := range results {
		br := base.Branches[outages[i]]
		label := fmt.Sprintf("%s-%s", base.Nodes[br.From].Name, base.Nodes[br.To].Name)
		switch {
		case errors.Is(r.Err, pferr.ErrTopology):
			fmt.Printf("%-8s %-10s\n", label, "islanded")
		case r.Err != nil:
			fmt.Printf("%-8s %-10s %v\n", label, "failed", r.Err)
		case !r.Result.Converged:
			fmt.Printf("%-8s %-10s\n", label, "diverged")
		default:
			minV, at := 2.0, 0
			for id, v := range r.Result.Voltage {
				if m := cmplx.Abs(v); m < minV {
					minV, at = m, id
				}
			}
			fmt.Printf("%-8s %-10s %-8.4f %s\n", label, "ok", minV, base.Nodes[at].Name)
		}
	}
}
