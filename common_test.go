// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package matfree

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/matfree/vector"
)

type testCase struct {
	name  string
	n     int
	a     matOp
	iters int
	tol   float64
}

// matOp applies a dense matrix to Dense vectors.
type matOp struct {
	m mat.Matrix
}

func (op matOp) Apply(dst, src vector.Vector) error {
	d := dst.(*vector.Dense)
	s := src.(*vector.Dense)
	dv := mat.NewVecDense(d.Len(), d.RawData())
	dv.MulVec(op.m, mat.NewVecDense(s.Len(), s.RawData()))
	return nil
}

// randomSPD returns a random symmetric diagonally dominant matrix with
// positive diagonal.
func randomSPD(n int, rnd *rand.Rand) testCase {
	a := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a.SetSym(i, j, rnd.Float64())
		}
		a.SetSym(i, i, a.At(i, i)+float64(n))
	}
	return testCase{
		name:  fmt.Sprintf("randomSPD(%d)", n),
		n:     n,
		a:     matOp{a},
		iters: min(n, 100),
		tol:   1e-8,
	}
}

// randomNonsym returns a random non-symmetric diagonally dominant matrix.
func randomNonsym(n int, rnd *rand.Rand) testCase {
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, rnd.Float64()-0.5)
		}
		a.Set(i, i, a.At(i, i)+float64(n))
	}
	return testCase{
		name:  fmt.Sprintf("randomNonsym(%d)", n),
		n:     n,
		a:     matOp{a},
		iters: min(n, 100),
		tol:   1e-8,
	}
}

func diagonal(d ...float64) matOp {
	return matOp{mat.NewDiagDense(len(d), d)}
}

func ones(n int) *vector.Dense {
	v := vector.NewDense(n)
	v.Fill(1)
	return v
}

// rhsFor returns b = A*want.
func rhsFor(a matOp, want *vector.Dense) *vector.Dense {
	b := vector.NewDense(want.Len())
	a.Apply(b, want)
	return b
}
