// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kkt provides a matrix-free operator for the reduced KKT system of
// an equality-constrained optimization problem with state equations. Products
// with the Hessian of the Lagrangian are approximated by finite differences of
// the first-order adjoint equations, so no second derivatives are needed.
package kkt

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/vladimir-ch/matfree"
	"github.com/vladimir-ch/matfree/vector"
)

const (
	eps = 1.0 / (1 << 52)

	minInnerTol = 1e-12
	maxInnerTol = 0.1
)

// Options holds the settings of an Operator.
type Options struct {
	// ProductFactor multiplies the product tolerance when DynamicTol is
	// set.
	ProductFactor float64
	// GradScale scales the primal part of the product.
	GradScale float64
	// ConstraintScale scales the dual part of the product.
	ConstraintScale float64
	// DynamicTol selects the inner solve tolerance from the product
	// tolerance and the norm of the right-hand side instead of using
	// InnerTolerance.
	DynamicTol bool
	// InnerTolerance is the relative tolerance of the state and adjoint
	// sensitivity solves.
	InnerTolerance float64
	// Approximate replaces the sensitivity solves by the preconditioner of
	// the state Jacobian. The state Jacobian must then implement
	// Preconditioned.
	Approximate bool

	Logger *slog.Logger
}

// DefaultOptions returns the default operator options.
func DefaultOptions() Options {
	return Options{
		ProductFactor:   0.001,
		GradScale:       1,
		ConstraintScale: 1,
		InnerTolerance:  1e-8,
	}
}

// Operator is the reduced KKT matrix
//  [ W  Aᵀ ]
//  [ A  0  ]
// where W is the reduced Hessian of the Lagrangian and A is the total
// derivative of the constraints with respect to the design. It acts on
// *vector.KKT vectors and implements matfree.LinearMap.
//
// Operator is not safe for concurrent use.
type Operator struct {
	model  Model
	opts   Options
	log    *slog.Logger
	krylov matfree.Method

	productTol float64

	linearized bool
	allocated  bool

	design, state, dual, adjoint vector.Vector
	primalNorm, stateNorm        float64

	// Adjoint residual and reduced gradient at the linearization point.
	adjointRes vector.Vector
	gradient   vector.Vector

	w, lambdaAdj vector.Vector
	stateWork    [3]vector.Vector
	pertDesign   vector.Vector
	primalWork   vector.Vector
	dualWork     vector.Vector
}

// NewOperator returns a KKT operator for the model m.
func NewOperator(m Model, opts Options) *Operator {
	if m == nil {
		panic("kkt: nil model")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Operator{
		model:      m,
		opts:       opts,
		log:        log,
		productTol: 1,
	}
}

// SetKrylov sets the method used by Solve.
func (o *Operator) SetKrylov(m matfree.Method) {
	o.krylov = m
}

// SetProductTolerance sets the tolerance from which the inner tolerance is
// derived when Options.DynamicTol is set. A driver typically tightens it as
// the outer iteration converges.
func (o *Operator) SetProductTolerance(tol float64) {
	if tol <= 0 {
		panic("kkt: product tolerance not positive")
	}
	o.productTol = tol
}

// Gradient returns the gradient of the Lagrangian with respect to the design
// at the linearization point. The returned vector is owned by o.
func (o *Operator) Gradient() vector.Vector {
	return o.gradient
}

// Linearize stores the point about which the products are taken. state must
// solve the governing equations at design and adjoint must solve the adjoint
// equations at (design, state, dual).
func (o *Operator) Linearize(design, state, dual, adjoint vector.Vector) error {
	if !o.allocated {
		o.design = design.Clone()
		o.state = state.Clone()
		o.dual = dual.Clone()
		o.adjoint = adjoint.Clone()

		o.adjointRes = vector.Zero(state)
		o.w = vector.Zero(state)
		o.lambdaAdj = vector.Zero(state)
		for i := range o.stateWork {
			o.stateWork[i] = vector.Zero(state)
		}
		o.gradient = vector.Zero(design)
		o.pertDesign = vector.Zero(design)
		o.primalWork = vector.Zero(design)
		o.dualWork = vector.Zero(dual)
		o.allocated = true
	} else {
		o.design.CopyFrom(design)
		o.state.CopyFrom(state)
		o.dual.CopyFrom(dual)
		o.adjoint.CopyFrom(adjoint)
	}
	o.linearized = false
	o.primalNorm = design.Norm()
	o.stateNorm = state.Norm()

	// Adjoint residual ∂F/∂u + ∂R/∂uᵀψ + ∂C/∂uᵀλ.
	err := o.adjointResidual(o.adjointRes, o.design, o.state, o.stateWork[0])
	if err != nil {
		return err
	}
	// Reduced gradient ∂F/∂x + ∂R/∂xᵀψ + ∂C/∂xᵀλ.
	err = o.lagrangianGradient(o.gradient, o.design, o.state, o.adjoint)
	if err != nil {
		return err
	}

	o.linearized = true
	o.log.Debug("kkt linearized",
		"design", o.primalNorm,
		"state", o.stateNorm,
		"adjoint_residual", o.adjointRes.Norm(),
		"gradient", o.gradient.Norm(),
	)
	return nil
}

// adjointResidual stores ∂F/∂u + ∂R/∂uᵀψ + ∂C/∂uᵀλ at (design, state) into dst.
func (o *Operator) adjointResidual(dst, design, state, work vector.Vector) error {
	if err := o.model.ObjectivePartialState(dst, design, state); err != nil {
		return fmt.Errorf("kkt: objective partial: %w", err)
	}
	dRdU, err := o.model.ResidualState(design, state)
	if err != nil {
		return fmt.Errorf("kkt: residual jacobian: %w", err)
	}
	if err := dRdU.TransProduct(work, o.adjoint); err != nil {
		return fmt.Errorf("kkt: residual jacobian: %w", err)
	}
	dst.Add(work)
	dCdU, err := o.model.ConstraintState(design, state)
	if err != nil {
		return fmt.Errorf("kkt: constraint jacobian: %w", err)
	}
	if err := dCdU.TransProduct(work, o.dual); err != nil {
		return fmt.Errorf("kkt: constraint jacobian: %w", err)
	}
	dst.Add(work)
	return nil
}

// lagrangianGradient stores ∂F/∂x + ∂R/∂xᵀadjoint + ∂C/∂xᵀλ at (design, state)
// into dst.
func (o *Operator) lagrangianGradient(dst, design, state, adjoint vector.Vector) error {
	if err := o.model.ObjectivePartialDesign(dst, design, state); err != nil {
		return fmt.Errorf("kkt: objective partial: %w", err)
	}
	dRdX, err := o.model.ResidualDesign(design, state)
	if err != nil {
		return fmt.Errorf("kkt: residual jacobian: %w", err)
	}
	if err := dRdX.TransProduct(o.primalWork, adjoint); err != nil {
		return fmt.Errorf("kkt: residual jacobian: %w", err)
	}
	dst.Add(o.primalWork)
	dCdX, err := o.model.ConstraintDesign(design, state)
	if err != nil {
		return fmt.Errorf("kkt: constraint jacobian: %w", err)
	}
	if err := dCdX.TransProduct(o.primalWork, o.dual); err != nil {
		return fmt.Errorf("kkt: constraint jacobian: %w", err)
	}
	dst.Add(o.primalWork)
	return nil
}

// Apply implements matfree.LinearMap.
func (o *Operator) Apply(dst, src vector.Vector) error {
	return o.Product(src, dst)
}

// Product stores the action of the KKT matrix on in into out. Both must be
// *vector.KKT with the design in Primal and the constraint multipliers in
// Dual.
func (o *Operator) Product(in, out vector.Vector) error {
	kin, ok := in.(*vector.KKT)
	if !ok {
		return fmt.Errorf("%w: multiplying vector is %T", ErrNotKKT, in)
	}
	kout, ok := out.(*vector.KKT)
	if !ok {
		return fmt.Errorf("%w: result vector is %T", ErrNotKKT, out)
	}
	if !o.linearized {
		return ErrNotLinearized
	}
	v, mu := kin.Primal, kin.Dual
	sw := o.stateWork

	epsFD := Epsilon(o.primalNorm, v.Norm())

	// Linearized state equation ∂R/∂u w = -∂R/∂x v.
	dRdX, err := o.model.ResidualDesign(o.design, o.state)
	if err != nil {
		return fmt.Errorf("kkt: residual jacobian: %w", err)
	}
	if err := dRdX.Product(sw[0], v); err != nil {
		return fmt.Errorf("kkt: residual jacobian: %w", err)
	}
	sw[0].Scale(-1)
	dRdU, err := o.model.ResidualState(o.design, o.state)
	if err != nil {
		return fmt.Errorf("kkt: residual jacobian: %w", err)
	}
	if err := o.linearSolve(dRdU, o.w, sw[0], false); err != nil {
		return fmt.Errorf("kkt: state sensitivity solve: %w", err)
	}

	// Perturbed point.
	o.pertDesign.Axpby(1, o.design, epsFD, v)
	pertState := sw[2]
	pertState.Axpby(1, o.state, epsFD, o.w)

	// Finite difference of the adjoint residual moved to the right-hand side.
	if err := o.adjointResidual(sw[0], o.pertDesign, pertState, sw[1]); err != nil {
		return err
	}
	sw[0].Sub(o.adjointRes)
	vector.Divide(sw[0], epsFD)
	sw[0].Scale(-1)

	// Dual perturbation ∂C/∂uᵀμ.
	dCdU, err := o.model.ConstraintState(o.design, o.state)
	if err != nil {
		return fmt.Errorf("kkt: constraint jacobian: %w", err)
	}
	if err := dCdU.TransProduct(sw[1], mu); err != nil {
		return fmt.Errorf("kkt: constraint jacobian: %w", err)
	}
	sw[0].Sub(sw[1])

	// Adjoint sensitivity ∂R/∂uᵀλ' = rhs.
	if err := o.linearSolve(dRdU, o.lambdaAdj, sw[0], true); err != nil {
		return fmt.Errorf("kkt: adjoint sensitivity solve: %w", err)
	}

	// First-order optimality at the perturbed design, state and adjoint.
	pertAdjoint := sw[1]
	pertAdjoint.Axpby(1, o.adjoint, epsFD, o.lambdaAdj)
	outP := kout.Primal
	if err := o.lagrangianGradient(outP, o.pertDesign, pertState, pertAdjoint); err != nil {
		return err
	}
	dCdX, err := o.model.ConstraintDesign(o.design, o.state)
	if err != nil {
		return fmt.Errorf("kkt: constraint jacobian: %w", err)
	}
	if err := dCdX.TransProduct(o.primalWork, mu); err != nil {
		return fmt.Errorf("kkt: constraint jacobian: %w", err)
	}
	outP.Axpby(1, outP, epsFD, o.primalWork)
	outP.Sub(o.gradient)
	vector.Divide(outP, epsFD)
	outP.Scale(o.opts.GradScale)

	// Constraint linearization ∂C/∂x v + ∂C/∂u w.
	outD := kout.Dual
	if err := dCdX.Product(outD, v); err != nil {
		return fmt.Errorf("kkt: constraint jacobian: %w", err)
	}
	if err := dCdU.Product(o.dualWork, o.w); err != nil {
		return fmt.Errorf("kkt: constraint jacobian: %w", err)
	}
	outD.Add(o.dualWork)
	outD.Scale(o.opts.ConstraintScale)

	o.log.Debug("kkt product", "epsilon", epsFD, "state_sensitivity", o.w.Norm())
	return nil
}

// linearSolve solves the state Jacobian system, or its transpose, for dst.
func (o *Operator) linearSolve(j StateJacobian, dst, rhs vector.Vector, trans bool) error {
	if o.opts.Approximate {
		p, ok := j.(Preconditioned)
		if !ok {
			return fmt.Errorf("%w: state jacobian %T has no preconditioner", ErrNoPreconditioner, j)
		}
		if trans {
			return p.TransPrecond(dst, rhs)
		}
		return p.Precond(dst, rhs)
	}

	rnorm := rhs.Norm()
	if rnorm == 0 {
		dst.Fill(0)
		return nil
	}
	tol := o.innerTolerance(rnorm)
	dst.Fill(0)
	if trans {
		return j.TransSolve(dst, rhs, tol)
	}
	return j.Solve(dst, rhs, tol)
}

func (o *Operator) innerTolerance(rhsNorm float64) float64 {
	if !o.opts.DynamicTol {
		return o.opts.InnerTolerance
	}
	tol := o.productTol * o.opts.ProductFactor / rhsNorm
	return math.Max(minInnerTol, math.Min(tol, maxInnerTol))
}

// Solve solves the KKT system K*x = rhs with the Krylov method set by SetKrylov
// and the preconditioner precond, which overrides settings.Precond. x holds the
// initial guess on entry. Pass matfree.Identity{} for no preconditioning.
func (o *Operator) Solve(rhs, x vector.Vector, precond matfree.LinearMap, settings matfree.Settings) (matfree.Stats, error) {
	if o.krylov == nil {
		return matfree.Stats{}, ErrNoKrylov
	}
	if precond == nil {
		return matfree.Stats{}, ErrNoPreconditioner
	}
	if _, ok := rhs.(*vector.KKT); !ok {
		return matfree.Stats{}, fmt.Errorf("%w: right-hand side is %T", ErrNotKKT, rhs)
	}
	if settings.Logger == nil {
		settings.Logger = o.log
	}
	settings.Precond = precond
	return matfree.LinearSolve(o, rhs, x, o.krylov, settings)
}

// Epsilon returns the finite-difference step for perturbing a point of norm
// evalAtNorm in a direction of norm multByNorm.
func Epsilon(evalAtNorm, multByNorm float64) float64 {
	switch {
	case multByNorm < eps*evalAtNorm || multByNorm < eps:
		// Multiplying by zero.
		return 1
	case evalAtNorm < eps*multByNorm:
		// Evaluating at zero.
		return math.Sqrt(eps) / multByNorm
	default:
		return math.Sqrt(eps) * evalAtNorm / multByNorm
	}
}
