package netlist

import (
	"errors"
	"math"
	"math/cmplx"
	"strings"
	"testing"

	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/pferr"
)

const fiveBus = `* five bus test network
Egrid grid vm=1.0 va=0
La grid a 0.01 0.05 b=0.02
Lb a b 0.02 0.08
+ b=0.02
Lc gen b 0.01 0.06
Ld a c 0.02 0.1     * no charging
Tgc gen c 5m 0.1 ratio=0.98 shift=-3
Scap b 0 0.05
Ggen gen 0.5 1.02 qmin=-0.2 qmax=0.3
Pa a 0.3 0.1
Pb b 0.6 0.2
Pc c 0.4 0.1
Wpv c 0.05 0

.pf tol=1e-10 maxiter=20 qlim backend=dense
`

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1", 1},
		{"-0.25", -0.25},
		{"5m", 5e-3},
		{"2.2k", 2200},
		{"1meg", 1e6},
		{"3u", 3e-6},
		{"1e-3", 1e-3},
		{".5", 0.5},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.in)
		if err != nil {
			t.Fatalf("ParseValue(%q): %v", tt.in, err)
		}
		if math.Abs(got-tt.want) > 1e-12*math.Max(1, math.Abs(tt.want)) {
			t.Fatalf("ParseValue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	// M is not a suffix: mega is meg.
	for _, bad := range []string{"", "abc", "1x", "1.2.3", "10M"} {
		if _, err := ParseValue(bad); err == nil {
			t.Fatalf("ParseValue(%q) succeeded", bad)
		}
	}
}

func TestParse(t *testing.T) {
	data, err := Parse(fiveBus)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if data.Title != "five bus test network" {
		t.Fatalf("Title = %q", data.Title)
	}
	if len(data.Elements) != 12 {
		t.Fatalf("len(Elements) = %d, want 12", len(data.Elements))
	}

	wantNodes := map[string]int{"grid": 0, "a": 1, "b": 2, "gen": 3, "c": 4}
	for name, id := range wantNodes {
		if data.Nodes[name] != id {
			t.Fatalf("Nodes[%q] = %d, want %d", name, data.Nodes[name], id)
		}
	}

	lb := data.Elements[2]
	if lb.Name != "Lb" || lb.Params["b"] != "0.02" || len(lb.Values) != 2 {
		t.Fatalf("continued card = %+v", lb)
	}
	if tr := data.Elements[5]; math.Abs(tr.Values[0]-5e-3) > 1e-15 || tr.Params["shift"] != "-3" {
		t.Fatalf("transformer card = %+v", tr)
	}

	pf := data.PFParam
	if data.Analysis != AnalysisPF || pf.Tolerance != 1e-10 || pf.MaxIter != 20 || !pf.QLim || pf.Backend != "dense" {
		t.Fatalf("PFParam = %+v", pf)
	}
}

func TestParseSweep(t *testing.T) {
	data, err := Parse("sweep\nEg a\nPl a 1 0\n.sweep 0.5 2 0.25\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sp := data.SweepParam
	if data.Analysis != AnalysisSweep || sp.Start != 0.5 || sp.Stop != 2 || sp.Step != 0.25 {
		t.Fatalf("SweepParam = %+v", sp)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown card", "t\nRx a b 1\n", "unsupported element type"},
		{"missing value", "t\nLx a b 0.1\n", "expected 2 values"},
		{"bad value", "t\nLx a b 0.1 zz\n", "invalid value format"},
		{"positional after param", "t\nLx a b 0.1 b=1 0.2\n", "after parameters"},
		{"dangling continuation", "t\n+ b=1\n", "continuation"},
		{"unknown directive", "t\n.tran 1 2\n", "unsupported analysis type"},
		{"unknown option", "t\n.pf fast\n", "unknown .pf option"},
		{"bad backend", "t\n.pf backend=qr\n", "qr"},
		{"short sweep", "t\n.sweep 1 2\n", "insufficient sweep"},
		{"unknown base option", "t\n.base freq=50\n", "unknown .base option"},
		{"zero base", "t\n.base sbase=0\n", "must be positive"},
		{"bad base value", "t\n.base vn=x\n", "invalid vn"},
		{"switch with values", "t\nKx a b 1\n", "expected 0 values"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestBuildTopology(t *testing.T) {
	data, err := Parse(fiveBus)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	topo, err := BuildTopology(data)
	if err != nil {
		t.Fatalf("BuildTopology: %v", err)
	}

	roles := []network.Role{network.Slack, network.PQ, network.PQ, network.PV, network.PQ}
	for i, r := range roles {
		if topo.Nodes[i].Role != r {
			t.Fatalf("node %d role = %v, want %v", i, topo.Nodes[i].Role, r)
		}
	}

	gen := topo.Nodes[3]
	if gen.Name != "gen" || gen.Vm != 1.02 || gen.QMin != -0.2 || gen.QMax != 0.3 || real(gen.S) != 0.5 {
		t.Fatalf("generator node = %+v", gen)
	}
	if got := topo.Nodes[4].S; cmplx.Abs(got-complex(-0.35, -0.1)) > 1e-12 {
		t.Fatalf("S[c] = %v, want -0.35-0.1i", got)
	}

	// 4 lines (two with charging at both ends), one transformer, one capacitor.
	if len(topo.Branches) != 4+4+1+1 {
		t.Fatalf("len(Branches) = %d, want 10", len(topo.Branches))
	}
}

func TestBuildTopologyErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no slack", "t\nLx a b 0.1 0.2\nPl b 1 0\n"},
		{"two slacks", "t\nE1 a\nE2 a\n"},
		{"island without slack", "t\nEg a\nLx a b 0.1 0.2\nLy c d 0.1 0.2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if _, err := BuildTopology(data); !errors.Is(err, pferr.ErrTopology) {
				t.Fatalf("err = %v, want topology error", err)
			}
		})
	}
}

func TestCreateDeviceBadParams(t *testing.T) {
	tests := []Element{
		{Type: "G", Name: "Gx", Nodes: []string{"a"}, Values: []float64{1, 1}, Params: map[string]string{"qmin": "1", "qmax": "0"}},
		{Type: "E", Name: "Ex", Nodes: []string{"a"}, Params: map[string]string{"vm": "one"}},
		{Type: "T", Name: "Tx", Nodes: []string{"a", "b"}, Values: []float64{0, 0.1}, Params: map[string]string{"shift": "x"}},
		{Type: "K", Name: "Kx", Nodes: []string{"a", "b"}, Params: map[string]string{"state": "ajar"}},
		{Type: "L", Name: "Lx", Nodes: []string{"a", "b"}, Values: []float64{0, 0.1}, Params: map[string]string{"vn": "high"}},
	}
	for _, elem := range tests {
		if _, err := CreateDevice(elem, Base{}); err == nil {
			t.Fatalf("CreateDevice(%s) succeeded", elem.Name)
		}
	}
}

func TestBuildTopologyBase(t *testing.T) {
	data, err := Parse(`* two levels
.base sbase=100 vn=110
Eg hv
Lhv hv mid 12.1 60.5
Tx mid lv 0.4 2 vn=20
Pl lv 40 10
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if data.Base != (Base{SBaseMVA: 100, VnKV: 110}) {
		t.Fatalf("Base = %+v", data.Base)
	}

	topo, err := BuildTopology(data)
	if err != nil {
		t.Fatalf("BuildTopology: %v", err)
	}
	if topo.SBaseMVA != 100 {
		t.Fatalf("SBaseMVA = %v, want 100", topo.SBaseMVA)
	}
	if got := topo.Nodes[2].S; cmplx.Abs(got-complex(-0.4, -0.1)) > 1e-12 {
		t.Fatalf("S[lv] = %v, want -0.4-0.1i", got)
	}

	wantBase := []float64{110, 20}
	if len(topo.Branches) != len(wantBase) {
		t.Fatalf("len(Branches) = %d, want %d", len(topo.Branches), len(wantBase))
	}
	for k, vb := range wantBase {
		if topo.Branches[k].VBaseKV != vb {
			t.Fatalf("branch %d VBaseKV = %v, want %v", k, topo.Branches[k].VBaseKV, vb)
		}
	}

	y, err := network.BuildAdmittance(topo.Size(), topo.SBaseMVA, topo.Branches)
	if err != nil {
		t.Fatalf("BuildAdmittance: %v", err)
	}
	// Both elements are 0.1+0.5j pu on their own level.
	want := 1 / complex(0.1, 0.5)
	if got := y.At(1, 0); cmplx.Abs(got+want) > 1e-9 {
		t.Fatalf("Y[1,0] = %v, want %v", got, -want)
	}
	if got := y.At(2, 1); cmplx.Abs(got+want) > 1e-9 {
		t.Fatalf("Y[2,1] = %v, want %v", got, -want)
	}
}

func TestBuildTopologySwitches(t *testing.T) {
	const net = `* bus coupler
Eg a
La a b 0.01 0.05
Lc a c 0.01 0.05
Kbc b c %s
Pb b 0.2 0.05
Pc c 0.1 0
`
	tests := []struct {
		name     string
		card     string
		size     int
		branches int
	}{
		{"closed", "", 2, 2},
		{"closed explicit", "state=closed", 2, 2},
		{"impedance", "z=0.5", 3, 3},
		{"open", "state=open", 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Parse(strings.Replace(net, "%s", tt.card, 1))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			topo, err := BuildTopology(data)
			if err != nil {
				t.Fatalf("BuildTopology: %v", err)
			}
			if topo.Size() != tt.size || len(topo.Branches) != tt.branches {
				t.Fatalf("size %d with %d branches, want %d with %d", topo.Size(), len(topo.Branches), tt.size, tt.branches)
			}
		})
	}

	// Merged loads add up on the node named after the first bus.
	data, err := Parse(strings.Replace(net, "%s", "", 1))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	topo, err := BuildTopology(data)
	if err != nil {
		t.Fatalf("BuildTopology: %v", err)
	}
	if n := topo.Nodes[1]; n.Name != "b" || cmplx.Abs(n.S-complex(-0.3, -0.05)) > 1e-12 {
		t.Fatalf("merged node = %+v", n)
	}
}
