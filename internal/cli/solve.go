// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/vladimir-ch/matfree"
	"github.com/vladimir-ch/matfree/internal/config"
	"github.com/vladimir-ch/matfree/internal/testproblem"
	"github.com/vladimir-ch/matfree/kkt"
	"github.com/vladimir-ch/matfree/lbfgs"
	"github.com/vladimir-ch/matfree/vector"
)

// SolveResult summarizes an optimization run.
type SolveResult struct {
	Iterations  int
	Converged   bool
	KKTNorm     float64
	Objective   float64
	Constraint  float64
	KrylovIters int
	Skipped     int
	Runtime     time.Duration
}

// NewSolveCommand creates the solve command.
func NewSolveCommand(rootOpts *RootOptions) *cobra.Command {
	var precond string

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Optimize the test problem by reduced-space Newton-Krylov",
		Long: `Optimize the nonlinear Poisson design problem. Every outer iteration
solves the state and adjoint equations, linearizes the KKT operator and
solves the KKT system with FGMRES for a full Newton step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			if precond != "" {
				cfg.Precond = precond
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			log, err := newLogger(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}
			res, err := Solve(cfg, log)
			if err != nil {
				return err
			}
			return printSolveResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&precond, "precond", "", "KKT preconditioner (none|lbfgs), overrides the configuration")

	return cmd
}

// Solve runs the reduced-space Newton-Krylov method configured by cfg. A nil
// log discards all output.
func Solve(cfg config.Config, log *slog.Logger) (SolveResult, error) {
	start := time.Now()
	if log == nil {
		log = discard()
	}
	p, err := testproblem.New(cfg.Problem.Nodes, cfg.ProblemOptions(log))
	if err != nil {
		return SolveResult{}, err
	}

	op := kkt.NewOperator(p, cfg.KKTOptions(log))
	op.SetKrylov(&matfree.FGMRES{CheckLSGrad: cfg.Krylov.CheckLSGrad})
	settings := cfg.KrylovSettings(log)

	qn := lbfgs.New(cfg.QuasiNewton.MaxStored)
	qn.Lambda0 = cfg.QuasiNewton.Lambda0
	qn.Logger = log

	x := p.InitialDesign()
	dual := p.NewDual()
	xPrev := p.NewDesign()
	gPrev := p.NewDesign()
	s := p.NewDesign()
	y := p.NewDesign()

	rhs := vector.NewKKT(p.NewDesign(), p.NewDual())
	step := vector.NewKKT(p.NewDesign(), p.NewDual())

	var res SolveResult
	for iter := 0; ; iter++ {
		grad, state, adjoint, err := p.Gradient(x, dual)
		if err != nil {
			return res, fmt.Errorf("outer iteration %d: %w", iter, err)
		}
		c := p.Constraint(x, state)
		gnorm := grad.Norm()
		kktNorm := math.Hypot(gnorm, c)

		res.Iterations = iter
		res.KKTNorm = kktNorm
		res.Objective = p.Objective(x, state)
		res.Constraint = c
		log.Info("outer iteration",
			"iter", iter,
			"kkt", kktNorm,
			"gradient", gnorm,
			"constraint", c,
			"objective", res.Objective,
			"stored", qn.Len(),
		)
		if kktNorm < cfg.Outer.OptTol {
			res.Converged = true
			break
		}
		if iter == cfg.Outer.MaxIter {
			break
		}

		if iter > 0 {
			s.Axpby(1, x, -1, xPrev)
			y.Axpby(1, grad, -1, gPrev)
			if !qn.AddCorrection(s, y) {
				res.Skipped++
			}
		}
		xPrev.CopyFrom(x)
		gPrev.CopyFrom(grad)

		if err := op.Linearize(x, state, dual, adjoint); err != nil {
			return res, fmt.Errorf("outer iteration %d: %w", iter, err)
		}
		op.SetProductTolerance(kktNorm)

		// The operator scales its primal and dual rows, so the
		// right-hand side must be scaled alike.
		rhs.Primal.CopyFrom(grad)
		rhs.Primal.Scale(-cfg.KKT.GradScale)
		rhs.Dual.(*vector.Dense).SetAt(0, -cfg.KKT.CeqScale*c)
		step.Fill(0)

		stats, err := op.Solve(rhs, step, preconditioner(cfg.Precond, qn), settings)
		if err != nil {
			return res, fmt.Errorf("outer iteration %d: %w", iter, err)
		}
		res.KrylovIters += stats.Iterations
		log.Debug("kkt solve",
			"iterations", stats.Iterations,
			"residual", stats.ResidualNorm,
			"converged", stats.Converged,
		)

		x.Add(step.Primal)
		dual.Add(step.Dual)
	}
	res.Runtime = time.Since(start)
	return res, nil
}

// preconditioner returns the KKT preconditioner selected for one solve.
func preconditioner(name string, qn *lbfgs.LBFGS) matfree.LinearMap {
	if name == config.PrecondLBFGS {
		return kkt.BlockPreconditioner{Primal: qn}
	}
	return matfree.Identity{}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func printSolveResult(w io.Writer, res SolveResult) error {
	_, err := fmt.Fprintf(w, "converged: %v\niterations: %d\nkkt norm: %.6e\nobjective: %.6e\nconstraint: %.6e\nkrylov iterations: %d\nskipped corrections: %d\n",
		res.Converged, res.Iterations, res.KKTNorm, res.Objective, res.Constraint, res.KrylovIters, res.Skipped)
	return err
}
