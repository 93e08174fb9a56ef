// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import "github.com/vladimir-ch/matfree/vector"

// Jacobian is a Jacobian block linearized at a fixed point.
type Jacobian interface {
	// Product stores J*v into dst.
	Product(dst, v vector.Vector) error
	// TransProduct stores Jᵀ*v into dst.
	TransProduct(dst, v vector.Vector) error
}

// StateJacobian is the Jacobian of the governing equations with respect to
// the state. It must be invertible.
type StateJacobian interface {
	Jacobian

	// Solve stores in dst the solution of J*dst = rhs computed to the
	// relative tolerance relTol.
	Solve(dst, rhs vector.Vector, relTol float64) error
	// TransSolve stores in dst the solution of Jᵀ*dst = rhs computed to
	// the relative tolerance relTol.
	TransSolve(dst, rhs vector.Vector, relTol float64) error
}

// Preconditioned is implemented by a StateJacobian that can cheaply
// approximate its inverse. An Operator with Options.Approximate set uses it in
// place of the linear solves.
type Preconditioned interface {
	Precond(dst, rhs vector.Vector) error
	TransPrecond(dst, rhs vector.Vector) error
}

// Model provides the partial derivatives of an equality-constrained problem
//  minimize F(x, u)  subject to  R(x, u) = 0,  C(x, u) = 0,
// where x is the design, u is the state and R are the governing equations.
//
// The Jacobian accessors return blocks linearized at (design, state). A
// returned block must stay valid after later calls.
type Model interface {
	// ObjectivePartialDesign stores ∂F/∂x into dst.
	ObjectivePartialDesign(dst, design, state vector.Vector) error
	// ObjectivePartialState stores ∂F/∂u into dst.
	ObjectivePartialState(dst, design, state vector.Vector) error

	// ResidualDesign returns ∂R/∂x.
	ResidualDesign(design, state vector.Vector) (Jacobian, error)
	// ResidualState returns ∂R/∂u.
	ResidualState(design, state vector.Vector) (StateJacobian, error)
	// ConstraintDesign returns ∂C/∂x.
	ConstraintDesign(design, state vector.Vector) (Jacobian, error)
	// ConstraintState returns ∂C/∂u.
	ConstraintState(design, state vector.Vector) (Jacobian, error)
}
