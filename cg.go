// Copyright ©2016 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package matfree

import "github.com/vladimir-ch/matfree/vector"

// CG implements the Conjugate Gradient iterative method with preconditioning
// for solving systems of linear equations
//  Ax = b,
// where A is a symmetric positive definite operator.
//
// CG needs MatVec and PSolve operations.
type CG struct {
	first        bool
	rho, rhoPrev float64
	resume       int

	z, p, ap vector.Vector
}

// Init implements the Method interface.
func (cg *CG) Init(x vector.Vector, maxIter int) {
	cg.z = vector.Zero(x)
	cg.p = vector.Zero(x)
	cg.ap = vector.Zero(x)
	cg.first = true
	cg.resume = 1
}

// Iterate implements the Method interface.
func (cg *CG) Iterate(ctx *Context) (Operation, error) {
	r := ctx.Residual
	switch cg.resume {
	case 1:
		ctx.Src = r
		ctx.Dst = cg.z
		cg.resume = 2
		return PSolve, nil
		// Solve M z = r_{i-1}
	case 2:
		cg.rho = r.Dot(cg.z) // ρ_i = r_{i-1} · z
		if !cg.first {
			beta := cg.rho / cg.rhoPrev     // β = ρ_i / ρ_{i-1}
			cg.z.Axpby(1, cg.z, beta, cg.p) // z = z + β p_{i-1}
		}
		cg.p.CopyFrom(cg.z) // p_i = z

		ctx.Src = cg.p
		ctx.Dst = cg.ap
		cg.resume = 3
		return MatVec, nil
		// Compute Ap_i
	case 3:
		alpha := cg.rho / cg.p.Dot(cg.ap)  // α = ρ_i / (p_i · Ap_i)
		r.Axpby(1, r, -alpha, cg.ap)       // r_i = r_{i-1} - α Ap_i
		ctx.X.Axpby(1, ctx.X, alpha, cg.p) // x_i = x_{i-1} + α p_i

		ctx.ResidualNorm = r.Norm()
		ctx.Src = nil
		ctx.Dst = nil
		ctx.Converged = false
		cg.resume = 4
		return CheckResidualNorm, nil
	case 4:
		if ctx.Converged {
			cg.resume = 0
			return EndIteration, nil
		}
		cg.rhoPrev = cg.rho
		cg.first = false
		cg.resume = 1
		return EndIteration, nil

	default:
		panic("matfree: CG.Init not called")
	}
}
