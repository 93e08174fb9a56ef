// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sparse provides a coordinate-format sparse matrix used to assemble
// the operators of test problems.
package sparse

import (
	"github.com/vladimir-ch/matfree/vector"
)

type triplet struct {
	i, j int
	v    float64
}

// Matrix is a sparse matrix stored as a list of (row, column, value)
// triplets. Duplicate entries are summed.
type Matrix struct {
	r, c int
	data []triplet
}

// New returns an empty r×c matrix.
func New(r, c int) *Matrix {
	if r < 0 || c < 0 {
		panic("sparse: negative dimension")
	}
	return &Matrix{
		r: r,
		c: c,
	}
}

// Dims returns the dimensions of m.
func (m *Matrix) Dims() (r, c int) {
	return m.r, m.c
}

// NNZ returns the number of stored triplets.
func (m *Matrix) NNZ() int {
	return len(m.data)
}

// Append adds v to the element at (i, j).
func (m *Matrix) Append(i, j int, v float64) {
	m.check(i, j)
	m.data = append(m.data, triplet{i, j, v})
}

// At returns the element at (i, j).
func (m *Matrix) At(i, j int) float64 {
	m.check(i, j)
	var v float64
	for _, aij := range m.data {
		if aij.i == i && aij.j == j {
			v += aij.v
		}
	}
	return v
}

// Diagonal stores the diagonal of a square matrix m into dst.
func (m *Matrix) Diagonal(dst []float64) {
	if m.r != m.c || len(dst) != m.r {
		panic("sparse: dimension mismatch")
	}
	for i := range dst {
		dst[i] = 0
	}
	for _, aij := range m.data {
		if aij.i == aij.j {
			dst[aij.i] += aij.v
		}
	}
}

func (m *Matrix) check(i, j int) {
	if i < 0 || m.r <= i {
		panic("sparse: row index out of range")
	}
	if j < 0 || m.c <= j {
		panic("sparse: column index out of range")
	}
}

// MulVec computes dst = m*x.
func (m *Matrix) MulVec(dst, x []float64) {
	if m.c != len(x) {
		panic("sparse: dimension mismatch")
	}
	if m.r != len(dst) {
		panic("sparse: dimension mismatch")
	}
	for i := range dst {
		dst[i] = 0
	}
	for _, aij := range m.data {
		dst[aij.i] += aij.v * x[aij.j]
	}
}

// MulTransVec computes dst = mᵀ*x.
func (m *Matrix) MulTransVec(dst, x []float64) {
	if m.c != len(dst) {
		panic("sparse: dimension mismatch")
	}
	if m.r != len(x) {
		panic("sparse: dimension mismatch")
	}
	for i := range dst {
		dst[i] = 0
	}
	for _, aij := range m.data {
		dst[aij.j] += aij.v * x[aij.i]
	}
}

// Apply computes dst = m*src for Dense vectors, so that m can be used as a
// matfree.LinearMap.
func (m *Matrix) Apply(dst, src vector.Vector) error {
	m.MulVec(dst.(*vector.Dense).RawData(), src.(*vector.Dense).RawData())
	return nil
}

// Transpose is a view of the transpose of a Matrix as a linear map.
type Transpose struct {
	M *Matrix
}

// Apply computes dst = mᵀ*src for Dense vectors.
func (t Transpose) Apply(dst, src vector.Vector) error {
	t.M.MulTransVec(dst.(*vector.Dense).RawData(), src.(*vector.Dense).RawData())
	return nil
}
