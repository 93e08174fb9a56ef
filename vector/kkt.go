// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vector

import "math"

// KKT is a composite vector of the reduced KKT space made of a primal (design)
// and a dual (multiplier) component. Operations are applied component-wise and
// require the other operands to be KKT vectors too.
type KKT struct {
	Primal Vector
	Dual   Vector
}

// NewKKT returns a KKT vector composed of primal and dual. The components are
// not copied.
func NewKKT(primal, dual Vector) *KKT {
	if primal == nil {
		panic("vector: nil primal component")
	}
	if dual == nil {
		panic("vector: nil dual component")
	}
	return &KKT{Primal: primal, Dual: dual}
}

func (v *KKT) other(x Vector) *KKT {
	k, ok := x.(*KKT)
	if !ok {
		panic(mismatch(v, x))
	}
	return k
}

func (v *KKT) CopyFrom(x Vector) {
	k := v.other(x)
	v.Primal.CopyFrom(k.Primal)
	v.Dual.CopyFrom(k.Dual)
}

func (v *KKT) Fill(a float64) {
	v.Primal.Fill(a)
	v.Dual.Fill(a)
}

func (v *KKT) Add(x Vector) {
	k := v.other(x)
	v.Primal.Add(k.Primal)
	v.Dual.Add(k.Dual)
}

func (v *KKT) Sub(x Vector) {
	k := v.other(x)
	v.Primal.Sub(k.Primal)
	v.Dual.Sub(k.Dual)
}

func (v *KKT) Scale(a float64) {
	v.Primal.Scale(a)
	v.Dual.Scale(a)
}

func (v *KKT) Axpby(a float64, x Vector, b float64, y Vector) {
	kx := v.other(x)
	ky := v.other(y)
	v.Primal.Axpby(a, kx.Primal, b, ky.Primal)
	v.Dual.Axpby(a, kx.Dual, b, ky.Dual)
}

func (v *KKT) Dot(x Vector) float64 {
	k := v.other(x)
	return v.Primal.Dot(k.Primal) + v.Dual.Dot(k.Dual)
}

func (v *KKT) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v *KKT) Clone() Vector {
	return &KKT{
		Primal: v.Primal.Clone(),
		Dual:   v.Dual.Clone(),
	}
}
