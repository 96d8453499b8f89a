package powerflow

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/solver"
)

type Config struct {
	Tolerance     float64 // infinity-norm of the per-unit mismatch
	MaxIterations int     // Newton updates per round

	// InitialVoltage is the starting guess in node order. Nil means each
	// node's own setpoint or flat start.
	InitialVoltage []complex128

	Backend string

	EnforceQLimits  bool
	MaxQLimitRounds int
}

func DefaultConfig() Config {
	return Config{
		Tolerance:       consts.DefaultTolerance,
		MaxIterations:   consts.DefaultMaxIterations,
		Backend:         solver.Default,
		MaxQLimitRounds: consts.DefaultQLimitRounds,
	}
}

// ConfigFromEnv starts from DefaultConfig and applies PF_TOLERANCE,
// PF_MAX_ITERATIONS, PF_BACKEND and PF_ENFORCE_QLIM.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if raw := os.Getenv("PF_TOLERANCE"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return cfg, fmt.Errorf("PF_TOLERANCE: %w", err)
		}
		cfg.Tolerance = v
	}
	if raw := os.Getenv("PF_MAX_ITERATIONS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, fmt.Errorf("PF_MAX_ITERATIONS: %w", err)
		}
		cfg.MaxIterations = v
	}
	if raw := os.Getenv("PF_BACKEND"); raw != "" {
		cfg.Backend = strings.ToLower(raw)
	}
	if raw := os.Getenv("PF_ENFORCE_QLIM"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("PF_ENFORCE_QLIM: %w", err)
		}
		cfg.EnforceQLimits = v
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if !(c.Tolerance > 0) {
		errs = append(errs, fmt.Errorf("tolerance must be positive, got %g", c.Tolerance))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations))
	}
	if c.EnforceQLimits && c.MaxQLimitRounds <= 0 {
		errs = append(errs, fmt.Errorf("max Q-limit rounds must be positive, got %d", c.MaxQLimitRounds))
	}
	name := c.Backend
	if name == "" {
		name = solver.Default
	}
	if !slices.Contains(solver.Names(), name) {
		errs = append(errs, fmt.Errorf("unknown backend %q (available: %s)", c.Backend, strings.Join(solver.Names(), ", ")))
	}
	return errors.Join(errs...)
}
