package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/edp1096/toy-powerflow/pkg/netlist"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/powerflow"
	"github.com/edp1096/toy-powerflow/pkg/util"
)

// Traces the PV (nose) curve of a netlist by scaling all loads until the
// power flow stops converging, then plots it.
func main() {
	stop := flag.Float64("stop", 10, "largest load scale")
	step := flag.Float64("step", 0.25, "load scale increment")
	out := flag.String("o", "nose.png", "chart file")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("Usage: nose [-stop s] [-step d] [-o file] <netlist_file>")
	}

	content, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Error reading netlist file: %v", err)
	}
	data, err := netlist.Parse(string(content))
	if err != nil {
		log.Fatalf("Error parsing netlist: %v", err)
	}
	topo, err := netlist.BuildTopology(data)
	if err != nil {
		log.Fatalf("Error building network: %v", err)
	}

	s, err := powerflow.NewSolver(powerflow.DefaultConfig())
	if err != nil {
		log.Fatalf("Error creating solver: %v", err)
	}
	sw, err := powerflow.NewSweep(s, 1, *stop, *step)
	if err != nil {
		log.Fatalf("Error creating sweep: %v", err)
	}
	if err := sw.Run(context.Background(), topo); err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	points := sw.Points()
	if len(points) == 0 {
		log.Fatal("base case does not converge")
	}
	last := points[len(points)-1]
	fmt.Printf("Loadability limit between scale %.3f and %.3f\n", last.Scale, last.Scale+*step)

	var names []string
	for _, node := range topo.Nodes {
		if node.Role == network.PQ {
			names = append(names, node.Name)
		}
	}
	p, err := util.SweepChart(data.Title, sw.GetResults(), names)
	if err != nil {
		log.Fatalf("Error plotting: %v", err)
	}
	if err := util.SaveChart(p, *out); err != nil {
		log.Fatalf("Error writing chart: %v", err)
	}
	fmt.Printf("Chart written to %s\n", *out)
	fmt.Printf("Factorizations: %+v\n", s.Backend().Stats())
}
