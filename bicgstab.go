// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package matfree

import (
	"math"

	"github.com/vladimir-ch/matfree/vector"
)

// BiCGSTAB implements the BiConjugate Gradient STABilized iterative method with
// preconditioning for solving the system of linear equations
//  Ax = b,
// where A is a non-symmetric operator. For symmetric positive definite systems
// use CG.
//
// BiCGSTAB needs MatVec and PSolve operations.
type BiCGSTAB struct {
	first  bool
	resume int

	rho, rhoPrev float64
	alpha        float64
	omega        float64

	rt   vector.Vector
	p    vector.Vector
	v    vector.Vector
	t    vector.Vector
	phat vector.Vector
	s    vector.Vector
	shat vector.Vector
}

// Init implements the Method interface.
func (b *BiCGSTAB) Init(x vector.Vector, maxIter int) {
	b.rt = vector.Zero(x)
	b.p = vector.Zero(x)
	b.v = vector.Zero(x)
	b.t = vector.Zero(x)
	b.phat = vector.Zero(x)
	b.s = vector.Zero(x)
	b.shat = vector.Zero(x)
	b.first = true
	b.resume = 1
}

// Iterate implements the Method interface.
func (b *BiCGSTAB) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch b.resume {
	case 1:
		if b.first {
			b.rt.CopyFrom(r)
		}
		b.rho = b.rt.Dot(r)
		if math.Abs(b.rho) < dlamchE*dlamchE {
			b.resume = 0 // Calling Iterate again without Init will panic.
			return NoOperation, ErrRhoBreakdown
		}
		if b.first {
			b.p.CopyFrom(r)
		} else {
			beta := (b.rho / b.rhoPrev) * (b.alpha / b.omega)
			b.p.Axpby(1, b.p, -b.omega, b.v) // p_i -= ω * v_i
			b.p.Axpby(beta, b.p, 1, r)       // p_i = β p_i + r_i
		}
		ctx.Src = b.p
		ctx.Dst = b.phat
		b.resume = 2
		return PSolve, nil
		// Solve M p^_i = p_i.
	case 2:
		ctx.Src = b.phat
		ctx.Dst = b.v
		b.resume = 3
		return MatVec, nil
		// Compute Ap^_i -> v_i.
	case 3:
		b.alpha = b.rho / b.rt.Dot(b.v)
		// Early check for tolerance.
		r.Axpby(1, r, -b.alpha, b.v)
		b.s.CopyFrom(r)
		ctx.Src = nil
		ctx.Dst = nil
		ctx.ResidualNorm = r.Norm()
		ctx.Converged = false
		b.resume = 4
		return CheckResidualNorm, nil
	case 4:
		if ctx.Converged {
			ctx.X.Axpby(1, ctx.X, b.alpha, b.phat)
			b.resume = 0 // Calling Iterate again without Init will panic.
			return EndIteration, nil
		}
		ctx.Src = r
		ctx.Dst = b.shat
		b.resume = 5
		return PSolve, nil
		// Solve M s^_i = r_i.
	case 5:
		ctx.Src = b.shat
		ctx.Dst = b.t
		b.resume = 6
		return MatVec, nil
		// Compute As^_i -> t_i.
	case 6:
		b.omega = b.t.Dot(b.s) / b.t.Dot(b.t)
		ctx.X.Axpby(1, ctx.X, b.alpha, b.phat)
		ctx.X.Axpby(1, ctx.X, b.omega, b.shat)
		r.Axpby(1, r, -b.omega, b.t)
		ctx.Src = nil
		ctx.Dst = nil
		ctx.ResidualNorm = r.Norm()
		ctx.Converged = false
		b.resume = 7
		return CheckResidualNorm, nil
	case 7:
		if ctx.Converged {
			b.resume = 0 // Calling Iterate again without Init will panic.
			return EndIteration, nil
		}
		if math.Abs(b.omega) < dlamchE*dlamchE {
			b.resume = 0
			return NoOperation, ErrOmegaBreakdown
		}
		b.rhoPrev = b.rho
		b.first = false
		b.resume = 1
		return EndIteration, nil

	default:
		panic("matfree: BiCGSTAB.Init not called")
	}
}
