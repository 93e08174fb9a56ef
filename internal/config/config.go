// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config reads the YAML configuration of the matfree command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vladimir-ch/matfree"
	"github.com/vladimir-ch/matfree/internal/testproblem"
	"github.com/vladimir-ch/matfree/kkt"
)

// ErrInvalid is returned by Validate for inconsistent settings.
var ErrInvalid = errors.New("config: invalid")

// machEps is the smallest relative tolerance accepted by matfree.LinearSolve.
const machEps = 1.0 / (1 << 53)

// Preconditioners of the KKT system.
const (
	PrecondNone  = "none"
	PrecondLBFGS = "lbfgs"
)

// Config is the configuration of a reduced-space optimization run.
type Config struct {
	Problem     Problem     `yaml:"problem"`
	Krylov      Krylov      `yaml:"krylov"`
	KKT         KKT         `yaml:"kkt"`
	QuasiNewton QuasiNewton `yaml:"quasi_newton"`
	Precond     string      `yaml:"precond"`
	Outer       Outer       `yaml:"outer"`
	LogLevel    string      `yaml:"log_level"`
}

// Problem configures the test problem.
type Problem struct {
	Nodes     int     `yaml:"nodes"`
	Kappa     float64 `yaml:"kappa"`
	Beta      float64 `yaml:"beta"`
	C0        float64 `yaml:"c0"`
	Solver    string  `yaml:"solver"`
	MaxNewton int     `yaml:"max_newton"`
}

// Krylov configures the FGMRES solve of the KKT system.
type Krylov struct {
	MaxIter     int     `yaml:"max_iter"`
	RelTol      float64 `yaml:"rel_tol"`
	AbsTol      float64 `yaml:"abs_tol"`
	CheckRes    bool    `yaml:"check_res"`
	CheckLSGrad bool    `yaml:"check_lsgrad"`
}

// KKT configures the KKT operator.
type KKT struct {
	ProductFac float64 `yaml:"product_fac"`
	GradScale  float64 `yaml:"grad_scale"`
	CeqScale   float64 `yaml:"ceq_scale"`
	DynamicTol bool    `yaml:"dynamic_tol"`
	InnerTol   float64 `yaml:"inner_tol"`
}

// QuasiNewton configures the L-BFGS preconditioner.
type QuasiNewton struct {
	MaxStored int     `yaml:"max_stored"`
	Lambda0   float64 `yaml:"lambda0"`
}

// Outer configures the outer Newton iteration.
type Outer struct {
	MaxIter int     `yaml:"max_iter"`
	OptTol  float64 `yaml:"opt_tol"`
}

// Default returns the default configuration.
func Default() Config {
	p := testproblem.DefaultOptions()
	k := kkt.DefaultOptions()
	return Config{
		Problem: Problem{
			Nodes:     32,
			Kappa:     p.Kappa,
			Beta:      p.Beta,
			C0:        p.C0,
			Solver:    p.Solver,
			MaxNewton: p.MaxNewton,
		},
		Krylov: Krylov{
			MaxIter: 40,
			RelTol:  1e-6,
			AbsTol:  1e-12,
		},
		KKT: KKT{
			ProductFac: k.ProductFactor,
			GradScale:  k.GradScale,
			CeqScale:   k.ConstraintScale,
			InnerTol:   k.InnerTolerance,
		},
		QuasiNewton: QuasiNewton{
			MaxStored: 10,
		},
		Precond: PrecondNone,
		Outer: Outer{
			MaxIter: 20,
			OptTol:  1e-6,
		},
		LogLevel: "info",
	}
}

// Load reads the configuration from the YAML file at path. Missing keys keep
// their default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse reads a YAML configuration from r on top of the defaults and
// validates it. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: failed to parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch {
	case c.Problem.Nodes <= 0:
		return fmt.Errorf("%w: problem.nodes must be positive, got %d", ErrInvalid, c.Problem.Nodes)
	case c.Problem.Kappa < 0:
		return fmt.Errorf("%w: problem.kappa must be non-negative, got %v", ErrInvalid, c.Problem.Kappa)
	case c.Problem.Solver != "cg" && c.Problem.Solver != "bicgstab":
		return fmt.Errorf("%w: problem.solver must be cg or bicgstab, got %q", ErrInvalid, c.Problem.Solver)
	case c.Krylov.MaxIter <= 0:
		return fmt.Errorf("%w: krylov.max_iter must be positive, got %d", ErrInvalid, c.Krylov.MaxIter)
	case c.Krylov.RelTol < machEps || c.Krylov.RelTol >= 1:
		return fmt.Errorf("%w: krylov.rel_tol must lie in [%v, 1), got %v", ErrInvalid, machEps, c.Krylov.RelTol)
	case c.Krylov.AbsTol < 0:
		return fmt.Errorf("%w: krylov.abs_tol must be non-negative, got %v", ErrInvalid, c.Krylov.AbsTol)
	case c.KKT.ProductFac <= 0:
		return fmt.Errorf("%w: kkt.product_fac must be positive, got %v", ErrInvalid, c.KKT.ProductFac)
	case c.KKT.GradScale <= 0 || c.KKT.CeqScale <= 0:
		return fmt.Errorf("%w: kkt.grad_scale and kkt.ceq_scale must be positive, got %v and %v", ErrInvalid, c.KKT.GradScale, c.KKT.CeqScale)
	case c.KKT.InnerTol <= 0 || c.KKT.InnerTol >= 1:
		return fmt.Errorf("%w: kkt.inner_tol must lie in (0, 1), got %v", ErrInvalid, c.KKT.InnerTol)
	case c.QuasiNewton.MaxStored <= 0:
		return fmt.Errorf("%w: quasi_newton.max_stored must be positive, got %d", ErrInvalid, c.QuasiNewton.MaxStored)
	case c.QuasiNewton.Lambda0 < 0:
		return fmt.Errorf("%w: quasi_newton.lambda0 must be non-negative, got %v", ErrInvalid, c.QuasiNewton.Lambda0)
	case c.Precond != PrecondNone && c.Precond != PrecondLBFGS:
		return fmt.Errorf("%w: precond must be %s or %s, got %q", ErrInvalid, PrecondNone, PrecondLBFGS, c.Precond)
	case c.Outer.MaxIter <= 0:
		return fmt.Errorf("%w: outer.max_iter must be positive, got %d", ErrInvalid, c.Outer.MaxIter)
	case c.Outer.OptTol <= 0:
		return fmt.Errorf("%w: outer.opt_tol must be positive, got %v", ErrInvalid, c.Outer.OptTol)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	return l, nil
}

// ProblemOptions returns the test problem options.
func (c Config) ProblemOptions(log *slog.Logger) testproblem.Options {
	opts := testproblem.DefaultOptions()
	opts.Kappa = c.Problem.Kappa
	opts.Beta = c.Problem.Beta
	opts.C0 = c.Problem.C0
	opts.Solver = c.Problem.Solver
	opts.MaxNewton = c.Problem.MaxNewton
	opts.Logger = log
	return opts
}

// KKTOptions returns the KKT operator options.
func (c Config) KKTOptions(log *slog.Logger) kkt.Options {
	opts := kkt.DefaultOptions()
	opts.ProductFactor = c.KKT.ProductFac
	opts.GradScale = c.KKT.GradScale
	opts.ConstraintScale = c.KKT.CeqScale
	opts.DynamicTol = c.KKT.DynamicTol
	opts.InnerTolerance = c.KKT.InnerTol
	opts.Logger = log
	return opts
}

// KrylovSettings returns the settings of the KKT solve.
func (c Config) KrylovSettings(log *slog.Logger) matfree.Settings {
	return matfree.Settings{
		Tolerance:     c.Krylov.RelTol,
		AbsTolerance:  c.Krylov.AbsTol,
		MaxIterations: c.Krylov.MaxIter,
		CheckResidual: c.Krylov.CheckRes,
		Logger:        log,
	}
}
