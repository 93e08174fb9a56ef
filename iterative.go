// Copyright ©2016 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package matfree provides matrix-free iterative algorithms for solving linear
// systems whose matrix is only available through its action on abstract
// vectors.
package matfree

import "github.com/vladimir-ch/matfree/vector"

// LinearMap is a linear operator known only by its action on a vector. The
// operator of a linear system, its preconditioners and quasi-Newton
// approximations all satisfy it.
type LinearMap interface {
	// Apply stores the action of the operator on src into dst. dst and
	// src must not alias.
	Apply(dst, src vector.Vector) error
}

// LinearMapFunc is an adapter to allow the use of ordinary functions as
// LinearMaps.
type LinearMapFunc func(dst, src vector.Vector) error

// Apply calls f(dst, src).
func (f LinearMapFunc) Apply(dst, src vector.Vector) error {
	return f(dst, src)
}

// Identity is the identity operator.
type Identity struct{}

// Apply copies src into dst.
func (Identity) Apply(dst, src vector.Vector) error {
	dst.CopyFrom(src)
	return nil
}

// Operation specifies the type of operation.
type Operation uint64

// Operations commanded by Method.Iterate.
const (
	NoOperation Operation = 0

	// Multiply A*x where x is stored
	// in Context.Src and the result will
	// be stored in Context.Dst.
	MatVec Operation = 1 << (iota - 1)

	// Do the preconditioner solve
	//  M z = r,
	// where r is stored in Context.Src,
	// and store the solution z in
	// Context.Dst.
	PSolve

	// Check convergence using the
	// current approximation in Context.X
	// and the residual in Context.ResidualNorm.
	// If convergence is detected,
	// Context.Converged must be set to
	// true before calling Method.Iterate
	// again.
	CheckResidualNorm

	// EndIteration indicates that Method
	// has finished what it considers to
	// be one iteration. It can be used
	// to update an iteration counter. If
	// Context.Converged is true, the
	// iterative process must be
	// terminated, and Method.Init must
	// be called before calling
	// Method.Iterate again.
	EndIteration
)

// Method is an iterative method that produces a sequence of vectors converging
// to the vector x satisfying a system of linear equations
//  A x = b,
// where A is a non-singular linear operator.
//
// Method uses a reverse-communication interface between the iterative algorithm
// and the caller. Method acts as a client that commands the caller to perform
// needed operations via Operation returned from Iterate methods. This provides
// independence of Method on representation of the operator A and of the
// vectors, and enables automation of common operations like checking for
// convergence and maintaining statistics.
type Method interface {
	// Init initializes the method for solving a linear system whose
	// solution lives in the space of x. Workspace vectors are cloned
	// from x. maxIter is the iteration limit imposed by the caller.
	Init(x vector.Vector, maxIter int)

	// Iterate retrieves data from Context, updates it, and returns the next
	// operation. The caller must perform the Operation using data in
	// Context, and depending on the state call Iterate again.
	Iterate(*Context) (Operation, error)
}

// Context mediates the communication between a Method and the caller. It must
// not be modified or accessed apart from the commanded Operations.
type Context struct {
	// X is the current approximate solution. On the first call to
	// Method.Iterate, X must contain the initial estimate. Method must
	// update X with the current estimate when it commands the final
	// EndIteration.
	X vector.Vector
	// Residual is the current residual b-A*x. On the first call to
	// Method.Iterate, Residual must contain the initial residual.
	Residual vector.Vector
	// ResidualNorm is (an estimate of) the norm of the current residual.
	// Method must update it when it commands CheckResidualNorm. It does
	// not have to be equal to the norm of Residual, some methods (e.g.,
	// FGMRES) can estimate the residual norm without forming the residual
	// itself.
	ResidualNorm float64
	// Converged indicates to Method that the ResidualNorm satisfies the
	// stopping criterion as a result of CheckResidualNorm operation.
	// If a Method commands EndIteration with Converged true, the caller
	// must not call Method.Iterate again without calling Method.Init first.
	Converged bool

	// Src and Dst are the source and destination vectors for various
	// Operations.
	Src, Dst vector.Vector
}

const dlamchE = 1.0 / (1 << 53)
