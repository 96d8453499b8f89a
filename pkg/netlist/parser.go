package netlist

import (
	"bufio"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/edp1096/toy-powerflow/pkg/solver"
)

type AnalysisType int

const (
	AnalysisPF AnalysisType = iota
	AnalysisSweep
)

type NetlistData struct {
	Elements []Element      // Network elements
	Nodes    map[string]int // Node name and index, in order of appearance
	Analysis AnalysisType   // Analysis type
	PFParam  struct {
		Tolerance float64 // 0 keeps the default
		MaxIter   int     // 0 keeps the default
		QLim      bool    // Enforce generator reactive limits
		Backend   string  // Linear solver backend
	}
	SweepParam struct {
		Start float64
		Stop  float64
		Step  float64
	}
	Base  Base   // System base, .base card
	Title string // Network title
}

// Base holds the system power base and the default voltage level of the
// branch cards. Zero fields fall back to 1 MVA and 1 kV, where ohm and
// siemens values read as per-unit.
type Base struct {
	SBaseMVA float64
	VnKV     float64
}

func (b Base) withDefaults() Base {
	if b.SBaseMVA == 0 {
		b.SBaseMVA = 1
	}
	if b.VnKV == 0 {
		b.VnKV = 1
	}
	return b
}

type Element struct {
	Type   string            // Part type (L, T, S, E, G, P, W, K)
	Name   string            // Part name
	Nodes  []string          // Node names
	Values []float64         // Positional values
	Params map[string]string // name=value parameters
}

var unitMap = map[string]float64{
	"T":   1e12,  // tera
	"G":   1e9,   // giga
	"meg": 1e6,   // mega
	"K":   1e3,   // kilo
	"k":   1e3,   // kilo
	"m":   1e-3,  // milli
	"u":   1e-6,  // micro
	"n":   1e-9,  // nano
	"p":   1e-12, // pico
	"f":   1e-15, // femto
}

var (
	valueRe = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(meg|[TGKkmunpf])?s?$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Element layout: node count and required positional values per card type.
var layout = map[string]struct{ nodes, values int }{
	"L": {2, 2}, // r x
	"T": {2, 2}, // r x
	"S": {1, 2}, // g b
	"E": {1, 0},
	"G": {1, 2}, // p vm
	"P": {1, 2}, // p q
	"W": {1, 2}, // p q
	"K": {2, 0},
}

func Parse(input string) (*NetlistData, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	netlistData := &NetlistData{
		Nodes: make(map[string]int),
	}

	// Title or comment
	if scanner.Scan() {
		netlistData.Title = strings.TrimPrefix(scanner.Text(), "*")
		netlistData.Title = strings.TrimSpace(netlistData.Title)
	}

	var currentLine string
	lineNo := 1
	startNo := 0
	flush := func() error {
		if currentLine == "" {
			return nil
		}
		if err := parseLine(netlistData, currentLine); err != nil {
			return fmt.Errorf("line %d: %w", startNo, err)
		}
		currentLine = ""
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Inline comment
		if idx := strings.Index(line, "*"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if len(line) == 0 {
			continue
		}

		// Line continue
		if strings.HasPrefix(line, "+") {
			if currentLine == "" {
				return nil, fmt.Errorf("line %d: continuation without a preceding card", lineNo)
			}
			currentLine += " " + strings.TrimSpace(line[1:])
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		currentLine = line
		startNo = lineNo
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return netlistData, nil
}

func parseLine(netlistData *NetlistData, line string) error {
	line = spaceRe.ReplaceAllString(line, " ")

	if strings.HasPrefix(line, ".") {
		return parseDotOperator(netlistData, line)
	}

	element, err := parseElement(line)
	if err != nil {
		return err
	}

	netlistData.Elements = append(netlistData.Elements, *element)
	for _, node := range element.Nodes {
		if _, exists := netlistData.Nodes[node]; !exists {
			netlistData.Nodes[node] = len(netlistData.Nodes)
		}
	}
	return nil
}

// Parse .pf, .sweep, .base
func parseDotOperator(netlistData *NetlistData, line string) error {
	var err error

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ".pf":
		netlistData.Analysis = AnalysisPF
		for _, field := range fields[1:] {
			name, value, hasValue := strings.Cut(field, "=")
			switch strings.ToLower(name) {
			case "qlim":
				netlistData.PFParam.QLim = true
			case "tol":
				netlistData.PFParam.Tolerance, err = ParseValue(value)
				if err != nil {
					return fmt.Errorf("invalid tol: %v", err)
				}
			case "maxiter":
				netlistData.PFParam.MaxIter, err = strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("invalid maxiter: %v", err)
				}
			case "backend":
				if !hasValue || value == "" {
					return fmt.Errorf("missing backend name")
				}
				netlistData.PFParam.Backend = strings.ToLower(value)
				if !slices.Contains(solver.Names(), netlistData.PFParam.Backend) {
					return fmt.Errorf("unknown backend %q", value)
				}
			default:
				return fmt.Errorf("unknown .pf option: %s", field)
			}
		}

	case ".sweep":
		netlistData.Analysis = AnalysisSweep
		if len(fields) < 4 {
			return fmt.Errorf("insufficient sweep parameters, need start, stop and step")
		}
		netlistData.SweepParam.Start, err = ParseValue(fields[1])
		if err != nil {
			return fmt.Errorf("invalid start value: %v", err)
		}
		netlistData.SweepParam.Stop, err = ParseValue(fields[2])
		if err != nil {
			return fmt.Errorf("invalid stop value: %v", err)
		}
		netlistData.SweepParam.Step, err = ParseValue(fields[3])
		if err != nil {
			return fmt.Errorf("invalid step value: %v", err)
		}

	case ".base":
		for _, field := range fields[1:] {
			name, value, _ := strings.Cut(field, "=")
			var target *float64
			switch strings.ToLower(name) {
			case "sbase":
				target = &netlistData.Base.SBaseMVA
			case "vn":
				target = &netlistData.Base.VnKV
			default:
				return fmt.Errorf("unknown .base option: %s", field)
			}
			if *target, err = ParseValue(value); err != nil {
				return fmt.Errorf("invalid %s: %v", name, err)
			}
			if *target <= 0 {
				return fmt.Errorf("%s must be positive, got %g", name, *target)
			}
		}

	default:
		return fmt.Errorf("unsupported analysis type: %s", fields[0])
	}

	return nil
}

// Parse network element
func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(fields[0][:1]),
		Params: make(map[string]string),
	}

	lay, ok := layout[elem.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported element type: %s", elem.Name)
	}
	if len(fields) < 1+lay.nodes {
		return nil, fmt.Errorf("invalid element format: %s", line)
	}
	elem.Nodes = fields[1 : 1+lay.nodes]

	for _, field := range fields[1+lay.nodes:] {
		if name, value, ok := strings.Cut(field, "="); ok {
			elem.Params[strings.ToLower(name)] = value
			continue
		}
		if len(elem.Params) > 0 {
			return nil, fmt.Errorf("%s: positional value %s after parameters", elem.Name, field)
		}
		value, err := ParseValue(field)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", elem.Name, err)
		}
		elem.Values = append(elem.Values, value)
	}

	if len(elem.Values) != lay.values {
		return nil, fmt.Errorf("%s: expected %d values, got %d", elem.Name, lay.values, len(elem.Values))
	}
	return elem, nil
}

// ParseValue - Parse value and factor. 1k -> 1000
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %s", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	// factor
	if multiplier, ok := unitMap[matches[2]]; ok {
		num *= multiplier
	}

	return num, nil
}
