// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testproblem

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/matfree"
	"github.com/vladimir-ch/matfree/vector"
)

// residualDesign is ∂R/∂x = -I.
type residualDesign struct{}

func (residualDesign) Product(dst, v vector.Vector) error {
	dst.CopyFrom(v)
	dst.Scale(-1)
	return nil
}

func (r residualDesign) TransProduct(dst, v vector.Vector) error {
	return r.Product(dst, v)
}

// stateJacobian is ∂R/∂u = K + diag(3κu²). It is symmetric positive definite.
type stateJacobian struct {
	p    *Problem
	d    []float64 // 3κu²
	diag []float64 // Diagonal of the Jacobian.
}

func (p *Problem) stateJacobian(u []float64) *stateJacobian {
	d := make([]float64, p.n)
	diag := make([]float64, p.n)
	for i, ui := range u {
		d[i] = 3 * p.opts.Kappa * ui * ui
		diag[i] = p.kdiag[i] + d[i]
	}
	return &stateJacobian{p: p, d: d, diag: diag}
}

func (j *stateJacobian) Product(dst, v vector.Vector) error {
	d, x := raw(dst), raw(v)
	j.p.k.MulVec(d, x)
	for i := range d {
		d[i] += j.d[i] * x[i]
	}
	return nil
}

func (j *stateJacobian) TransProduct(dst, v vector.Vector) error {
	return j.Product(dst, v)
}

// Apply implements matfree.LinearMap.
func (j *stateJacobian) Apply(dst, src vector.Vector) error {
	return j.Product(dst, src)
}

func (j *stateJacobian) Solve(dst, rhs vector.Vector, relTol float64) error {
	stats, err := matfree.LinearSolve(j, rhs, dst, j.p.method(), matfree.Settings{
		Tolerance:     relTol,
		MaxIterations: 20 * j.p.n,
		Precond:       matfree.LinearMapFunc(j.Precond),
		Logger:        j.p.log,
	})
	if err != nil {
		return err
	}
	if !stats.Converged {
		return fmt.Errorf("%w: relative residual %v after %d iterations",
			ErrNotConverged, stats.ResidualNorm/rhs.Norm(), stats.Iterations)
	}
	return nil
}

func (j *stateJacobian) TransSolve(dst, rhs vector.Vector, relTol float64) error {
	return j.Solve(dst, rhs, relTol)
}

// Precond applies the inverse of the diagonal.
func (j *stateJacobian) Precond(dst, rhs vector.Vector) error {
	floats.DivTo(raw(dst), raw(rhs), j.diag)
	return nil
}

func (j *stateJacobian) TransPrecond(dst, rhs vector.Vector) error {
	return j.Precond(dst, rhs)
}

// constraintDesign is ∂C/∂x = h·1ᵀ.
type constraintDesign struct {
	h float64
}

func (c constraintDesign) Product(dst, v vector.Vector) error {
	raw(dst)[0] = c.h * floats.Sum(raw(v))
	return nil
}

func (c constraintDesign) TransProduct(dst, v vector.Vector) error {
	dst.Fill(c.h * raw(v)[0])
	return nil
}

// constraintState is ∂C/∂u = h·uᵀ.
type constraintState struct {
	h float64
	u []float64
}

func (c constraintState) Product(dst, v vector.Vector) error {
	raw(dst)[0] = c.h * floats.Dot(c.u, raw(v))
	return nil
}

func (c constraintState) TransProduct(dst, v vector.Vector) error {
	floats.ScaleTo(raw(dst), c.h*raw(v)[0], c.u)
	return nil
}
