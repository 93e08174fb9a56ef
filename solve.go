// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package matfree

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/vladimir-ch/matfree/vector"
)

// Settings holds various settings for
// solving a linear system.
type Settings struct {
	// Tolerance specifies the relative
	// error tolerance for the final
	// approximate solution produced by
	// the iterative method.
	// Tolerance must be smaller than one
	// and greater than the machine
	// epsilon.
	//
	// The stopping criterion is
	//  |r_i| <= Tolerance * |b|  or  |r_i| < AbsTolerance.
	Tolerance float64

	// AbsTolerance is the absolute
	// tolerance on the residual norm.
	AbsTolerance float64

	// MaxIterations is the limit on the
	// number of iterations. For FGMRES
	// it is also the dimension of the
	// Krylov subspace.
	// If it is zero, it will be set to
	// 10.
	MaxIterations int

	// Precond is the preconditioner M
	// whose action approximates A^{-1}.
	// If it is nil, no preconditioning
	// will be used (M is the
	// identity).
	Precond LinearMap

	// CheckResidual requests that the
	// true residual b - A*x is computed
	// after the method terminates and
	// compared with the estimate.
	CheckResidual bool

	// Logger receives the residual
	// history and diagnostics. If it is
	// nil, nothing is logged.
	Logger *slog.Logger
}

// DefaultSettings returns the default solver settings.
func DefaultSettings() Settings {
	return Settings{
		Tolerance:     1e-6,
		AbsTolerance:  1e-12,
		MaxIterations: 10,
	}
}

func defaultSettings(s *Settings) {
	if s.Tolerance == 0 {
		s.Tolerance = 1e-6
	}
	if s.AbsTolerance == 0 {
		s.AbsTolerance = 1e-12
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = 10
	}
	if s.Logger == nil {
		s.Logger = discardLogger()
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Stats holds statistics about an iterative solve.
type Stats struct {
	// Iterations is the number of
	// iterations done by Method.
	Iterations int
	// MatVec is the number of MatVec
	// operations, including residual
	// computations.
	MatVec int
	// PSolve is the number of PSolve
	// operations.
	PSolve int
	// ResidualNorm is the final norm of
	// the residual. It is the true norm
	// if Settings.CheckResidual is set,
	// otherwise the estimate of Method.
	ResidualNorm float64
	// Converged reports whether the
	// stopping criterion was satisfied.
	Converged bool
	// StartTime is an approximate time
	// when the solve was started.
	StartTime time.Time
	// Runtime is an approximate duration
	// of the solve.
	Runtime time.Duration
}

// LinearSolve solves the system of linear equations
//  A*x = b,
// where the operator A is represented by its action a.
//
// On entry x holds the initial guess, on return the approximate solution. The
// number of iterations and the final residual norm are returned in Stats.
// Reaching Settings.MaxIterations without convergence is not an error and is
// reported by Stats.Converged. Errors from a and from the preconditioner are
// returned wrapped.
//
// method is an iterative method used for finding an approximate solution of the
// linear system. It must not be nil.
//
// settings provide means for adjusting the iterative process. Zero values of
// the fields mean default values.
func LinearSolve(a LinearMap, b, x vector.Vector, method Method, settings Settings) (Stats, error) {
	stats := Stats{StartTime: time.Now()}

	switch {
	case a == nil:
		panic("matfree: nil linear operator")
	case method == nil:
		panic("matfree: nil method")
	case b == nil || x == nil:
		panic("matfree: nil vector")
	}

	defaultSettings(&settings)
	if settings.Tolerance < dlamchE || 1 <= settings.Tolerance {
		panic("matfree: invalid tolerance")
	}
	if settings.MaxIterations < 0 {
		panic("matfree: negative iteration limit")
	}

	ctx := &Context{
		X:        x,
		Residual: vector.Zero(x),
	}
	err := computeResidual(a, b, ctx, &stats) // r = b - Ax
	if err != nil {
		stats.Runtime = time.Since(stats.StartTime)
		return stats, err
	}
	ctx.ResidualNorm = ctx.Residual.Norm()
	stats.ResidualNorm = ctx.ResidualNorm

	bnorm := b.Norm()
	log := settings.Logger
	if converged(ctx.ResidualNorm, bnorm, settings) {
		log.Debug("system solved by initial guess", "residual", ctx.ResidualNorm)
		stats.Converged = true
		stats.Runtime = time.Since(stats.StartTime)
		return stats, nil
	}

	log.Debug("krylov solve", "tolerance", settings.Tolerance, "residual0", ctx.ResidualNorm)
	err = iterate(a, b, ctx, settings, method, &stats)
	stats.Converged = ctx.Converged
	if err == nil && settings.CheckResidual {
		err = checkResidual(a, b, ctx, settings, &stats)
	}

	stats.Runtime = time.Since(stats.StartTime)
	return stats, err
}

func converged(rnorm, bnorm float64, s Settings) bool {
	return rnorm <= s.Tolerance*bnorm || rnorm < s.AbsTolerance
}

func computeResidual(a LinearMap, b vector.Vector, ctx *Context, stats *Stats) error {
	if err := a.Apply(ctx.Residual, ctx.X); err != nil {
		return fmt.Errorf("matfree: matrix-vector product: %w", err)
	}
	stats.MatVec++
	ctx.Residual.Axpby(1, b, -1, ctx.Residual)
	return nil
}

func iterate(a LinearMap, b vector.Vector, ctx *Context, settings Settings, method Method, stats *Stats) error {
	bnorm := b.Norm()
	if bnorm == 0 {
		bnorm = 1
	}
	log := settings.Logger

	method.Init(ctx.X, settings.MaxIterations)

	for {
		op, err := method.Iterate(ctx)
		if err != nil {
			return err
		}

		switch op {
		case NoOperation:

		case MatVec:
			if err := a.Apply(ctx.Dst, ctx.Src); err != nil {
				return fmt.Errorf("matfree: matrix-vector product: %w", err)
			}
			stats.MatVec++

		case PSolve:
			if settings.Precond == nil {
				ctx.Dst.CopyFrom(ctx.Src)
				continue
			}
			if err := settings.Precond.Apply(ctx.Dst, ctx.Src); err != nil {
				return fmt.Errorf("matfree: preconditioner: %w", err)
			}
			stats.PSolve++

		case CheckResidualNorm:
			ctx.Converged = converged(ctx.ResidualNorm, bnorm, settings)

		case EndIteration:
			stats.Iterations++
			stats.ResidualNorm = ctx.ResidualNorm
			log.Debug("krylov iteration",
				"iter", stats.Iterations,
				"residual", ctx.ResidualNorm,
				"relative", ctx.ResidualNorm/bnorm,
			)
			if ctx.Converged {
				return nil
			}
			if stats.Iterations == settings.MaxIterations {
				return nil
			}

		default:
			panic("matfree: invalid operation")
		}
	}
}

// checkResidual recomputes the residual explicitly and compares it with the
// estimate of the method, which may have drifted through accumulated round-off.
func checkResidual(a LinearMap, b vector.Vector, ctx *Context, settings Settings, stats *Stats) error {
	estimate := ctx.ResidualNorm
	if err := computeResidual(a, b, ctx, stats); err != nil {
		return err
	}
	res := ctx.Residual.Norm()
	bnorm := b.Norm()
	if bnorm == 0 {
		bnorm = 1
	}
	log := settings.Logger
	log.Debug("krylov final true residual", "relative", res/bnorm)
	if math.Abs(res-estimate) > 0.01*settings.Tolerance*bnorm {
		log.Warn("true and estimated residual norms do not agree",
			"true", res,
			"estimate", estimate,
			"difference", (res-estimate)/bnorm,
		)
	}
	stats.ResidualNorm = res
	return nil
}
