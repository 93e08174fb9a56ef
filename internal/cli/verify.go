// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cli

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/vladimir-ch/matfree/internal/config"
	"github.com/vladimir-ch/matfree/internal/testproblem"
	"github.com/vladimir-ch/matfree/kkt"
	"github.com/vladimir-ch/matfree/vector"
)

// VerifyOptions holds the flags of the verify command.
type VerifyOptions struct {
	Dual      float64
	Delta     float64
	Tolerance float64
	Seed      int64
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the KKT product against finite differences",
		Long: `Compare the matrix-free KKT product at the initial design with central
differences of the reduced Lagrangian gradient and of the reduced constraint
along a random direction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			log, err := newLogger(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}
			relErr, err := Verify(cfg, *opts, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "relative error: %.3e\n", relErr)
			if relErr > opts.Tolerance {
				return fmt.Errorf("relative error %.3e exceeds tolerance %.3e", relErr, opts.Tolerance)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&opts.Dual, "dual", 0.5, "constraint multiplier at the linearization point")
	cmd.Flags().Float64Var(&opts.Delta, "delta", 1e-4, "central difference step")
	cmd.Flags().Float64Var(&opts.Tolerance, "tol", 1e-4, "largest accepted relative error")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 1, "seed of the random direction")

	return cmd
}

// Verify returns the relative difference between the KKT product and its
// central difference approximation.
func Verify(cfg config.Config, opts VerifyOptions, log *slog.Logger) (float64, error) {
	if log == nil {
		log = discard()
	}
	p, err := testproblem.New(cfg.Problem.Nodes, cfg.ProblemOptions(log))
	if err != nil {
		return 0, err
	}
	x := p.InitialDesign()
	dual := p.NewDual()
	dual.SetAt(0, opts.Dual)

	_, state, adjoint, err := p.Gradient(x, dual)
	if err != nil {
		return 0, err
	}
	op := kkt.NewOperator(p, cfg.KKTOptions(log))
	if err := op.Linearize(x, state, dual, adjoint); err != nil {
		return 0, err
	}

	rnd := rand.New(rand.NewSource(opts.Seed))
	v := p.NewDesign()
	for i := range v.RawData() {
		v.SetAt(i, rnd.NormFloat64())
	}
	vector.Divide(v, v.Norm())
	mu := p.NewDual()
	mu.SetAt(0, rnd.NormFloat64())
	dir := vector.NewKKT(v, mu)

	got := vector.NewKKT(p.NewDesign(), p.NewDual())
	if err := op.Product(dir, got); err != nil {
		return 0, err
	}
	want, err := p.CentralDifference(x, dual, dir, opts.Delta)
	if err != nil {
		return 0, err
	}
	// The product is scaled, the finite difference is not.
	got.Primal.Scale(1 / cfg.KKT.GradScale)
	got.Dual.Scale(1 / cfg.KKT.CeqScale)

	diff := got.Clone()
	diff.Sub(want)
	log.Debug("kkt verification",
		"product", got.Norm(),
		"finite_difference", want.Norm(),
		"difference", diff.Norm(),
	)
	return diff.Norm() / want.Norm(), nil
}
