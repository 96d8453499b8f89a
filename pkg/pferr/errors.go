// Package pferr holds the error taxonomy shared by the power-flow packages.
//
// Setup problems (bad node references, missing or duplicate slack nodes) wrap
// ErrTopology. Linear-solve failures inside a Newton iteration wrap ErrSolve.
// Non-convergence is not an error; it is reported through the result.
package pferr

import (
	"errors"
	"fmt"
)

var (
	// ErrTopology marks an invalid network description. Never retried.
	ErrTopology = errors.New("pferr: invalid topology")

	// ErrSolve marks a singular or ill-conditioned linear system.
	ErrSolve = errors.New("pferr: linear solve failed")
)

// TopologyError describes which part of the network description is invalid.
// Node and Element are -1 when not applicable.
type TopologyError struct {
	Node    int
	Element int
	Reason  string
}

func (e *TopologyError) Error() string {
	switch {
	case e.Element >= 0 && e.Node >= 0:
		return fmt.Sprintf("topology: element %d, node %d: %s", e.Element, e.Node, e.Reason)
	case e.Element >= 0:
		return fmt.Sprintf("topology: element %d: %s", e.Element, e.Reason)
	case e.Node >= 0:
		return fmt.Sprintf("topology: node %d: %s", e.Node, e.Reason)
	default:
		return "topology: " + e.Reason
	}
}

func (e *TopologyError) Unwrap() error { return ErrTopology }

// Topology builds a TopologyError that is not tied to a node or element.
func Topology(format string, args ...any) error {
	return &TopologyError{Node: -1, Element: -1, Reason: fmt.Sprintf(format, args...)}
}

// SolveError reports a backend failure during a Newton iteration.
type SolveError struct {
	Iteration int
	Backend   string
	Err       error
}

func (e *SolveError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("solve failed at iteration %d: %v", e.Iteration, e.Err)
	}
	return fmt.Sprintf("solve failed at iteration %d (%s): %v", e.Iteration, e.Backend, e.Err)
}

func (e *SolveError) Unwrap() []error { return []error{ErrSolve, e.Err} }
