// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vector defines the abstract vectors that the matrix-free solvers
// operate on.
package vector

import "fmt"

// Vector is an element of a primal (design), state, dual (multiplier) or
// composite KKT space. All vectors passed to a single operation must belong to
// the same space and have matching dimension. Violations panic.
type Vector interface {
	// CopyFrom sets the receiver equal to x.
	CopyFrom(x Vector)
	// Fill sets every element of the receiver to a.
	Fill(a float64)
	// Add adds x to the receiver.
	Add(x Vector)
	// Sub subtracts x from the receiver.
	Sub(x Vector)
	// Scale multiplies the receiver by a.
	Scale(a float64)
	// Axpby stores a*x + b*y into the receiver. The receiver may alias x
	// or y.
	Axpby(a float64, x Vector, b float64, y Vector)
	// Dot returns the inner product of the receiver and x.
	Dot(x Vector) float64
	// Norm returns the Euclidean norm of the receiver.
	Norm() float64
	// Clone returns a new vector of the same space holding a copy of the
	// receiver.
	Clone() Vector
}

// Divide divides v by a.
func Divide(v Vector, a float64) {
	v.Scale(1 / a)
}

// Zero returns a zero vector of the same space as v.
func Zero(v Vector) Vector {
	z := v.Clone()
	z.Fill(0)
	return z
}

func mismatch(want, got Vector) string {
	return fmt.Sprintf("vector: mismatched type %T, want %T", got, want)
}
