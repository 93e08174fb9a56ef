// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vector

import "gonum.org/v1/gonum/floats"

// Dense is a Vector stored contiguously in memory.
type Dense struct {
	data []float64
}

// NewDense returns a zero Dense vector of length n.
func NewDense(n int) *Dense {
	if n < 0 {
		panic("vector: negative dimension")
	}
	return &Dense{data: make([]float64, n)}
}

// NewDenseFrom returns a Dense vector backed by data. The slice is not copied.
func NewDenseFrom(data []float64) *Dense {
	return &Dense{data: data}
}

// Len returns the number of elements of v.
func (v *Dense) Len() int { return len(v.data) }

// RawData returns the underlying slice of v.
func (v *Dense) RawData() []float64 { return v.data }

// At returns the i-th element of v.
func (v *Dense) At(i int) float64 { return v.data[i] }

// SetAt sets the i-th element of v to a.
func (v *Dense) SetAt(i int, a float64) { v.data[i] = a }

func (v *Dense) other(x Vector) *Dense {
	d, ok := x.(*Dense)
	if !ok {
		panic(mismatch(v, x))
	}
	if len(d.data) != len(v.data) {
		panic("vector: dimension mismatch")
	}
	return d
}

func (v *Dense) CopyFrom(x Vector) {
	copy(v.data, v.other(x).data)
}

func (v *Dense) Fill(a float64) {
	for i := range v.data {
		v.data[i] = a
	}
}

func (v *Dense) Add(x Vector) {
	floats.Add(v.data, v.other(x).data)
}

func (v *Dense) Sub(x Vector) {
	floats.Sub(v.data, v.other(x).data)
}

func (v *Dense) Scale(a float64) {
	floats.Scale(a, v.data)
}

func (v *Dense) Axpby(a float64, x Vector, b float64, y Vector) {
	xd := v.other(x).data
	yd := v.other(y).data
	for i := range v.data {
		v.data[i] = a*xd[i] + b*yd[i]
	}
}

func (v *Dense) Dot(x Vector) float64 {
	return floats.Dot(v.data, v.other(x).data)
}

func (v *Dense) Norm() float64 {
	if len(v.data) == 0 {
		return 0
	}
	return floats.Norm(v.data, 2)
}

func (v *Dense) Clone() Vector {
	data := make([]float64, len(v.data))
	copy(data, v.data)
	return &Dense{data: data}
}
