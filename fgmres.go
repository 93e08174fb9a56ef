// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package matfree

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/vladimir-ch/matfree/vector"
)

// FGMRES implements the flexible generalized minimum residual method with
// right preconditioning for solving the system of linear equations
//  Ax = b,
// where A is a non-symmetric operator. The preconditioner may change from one
// iteration to the next.
//
// FGMRES does not restart: the iteration limit passed to Init is the dimension
// of the Krylov subspace. X is updated only when the method terminates.
//
// FGMRES needs MatVec and PSolve operations.
type FGMRES struct {
	// CheckLSGrad enables termination when the gradient of the
	// least-squares problem in the Krylov subspace vanishes.
	CheckLSGrad bool

	resume int
	i      int // Counter for inner iterations.
	m      int // Subspace dimension.

	template vector.Vector

	w []vector.Vector // Arnoldi basis.
	z []vector.Vector // Preconditioned basis.

	h    []float64 // Column-major upper Hessenberg matrix.
	ldh  int
	givs []givens
	g    []float64 // Rotated right-hand side of the least-squares problem.
	y    []float64

	subdiag    float64 // H[i+1,i] before rotation.
	linDepend  bool
	degenerate bool
}

type givens struct {
	c, s float64
}

// reorthTol is the fraction of the norm below which the Gram-Schmidt
// projection is repeated.
const reorthTol = 0.7071067811865476

// Init implements the Method interface.
func (f *FGMRES) Init(x vector.Vector, maxIter int) {
	if maxIter <= 0 {
		panic("matfree: FGMRES subspace dimension not positive")
	}
	f.m = maxIter
	f.template = x

	f.w = f.w[:0]
	f.z = f.z[:0]

	f.ldh = maxIter + 1
	f.h = reuse(f.h, f.ldh*maxIter)
	for i := range f.h {
		f.h[i] = 0
	}
	if cap(f.givs) < maxIter {
		f.givs = make([]givens, maxIter)
	} else {
		f.givs = f.givs[:maxIter]
	}
	f.g = reuse(f.g, maxIter+1)
	f.y = reuse(f.y, maxIter+1)

	f.resume = 1
}

// Iterate implements the Method interface.
func (f *FGMRES) Iterate(ctx *Context) (Operation, error) {
	switch f.resume {
	case 1:
		// Normalize the initial residual as the first Arnoldi vector.
		beta := ctx.Residual.Norm()
		w0 := ctx.Residual.Clone()
		vector.Divide(w0, beta)
		f.w = append(f.w, w0)
		// Initialize g to the elementary vector e_1 scaled by beta.
		for i := range f.g {
			f.g[i] = 0
		}
		f.g[0] = beta
		f.linDepend = false
		f.degenerate = false

		// for i := 0; i < m; i++ {
		f.i = 0
		fallthrough
	case 2:
		i := f.i
		f.z = append(f.z, vector.Zero(f.template))
		ctx.Src = f.w[i]
		ctx.Dst = f.z[i]
		f.resume = 3
		// Solve M Z[:,i] = W[:,i].
		return PSolve, nil
	case 3:
		i := f.i
		f.w = append(f.w, vector.Zero(f.template))
		ctx.Src = f.z[i]
		ctx.Dst = f.w[i+1]
		f.resume = 4
		// Compute A Z[:,i].
		return MatVec, nil
	case 4:
		i := f.i
		hi := f.h[i*f.ldh : (i+1)*f.ldh]

		// Construct i-th column of the upper Hessenberg matrix so that
		// W[:,i+1] is orthonormal to the previous columns.
		f.linDepend = f.orthonormalize(i, hi)
		f.subdiag = hi[i+1]

		// Apply i Givens rotations to the i-th column of H.
		for j := 0; j < i; j++ {
			hi[j], hi[j+1] = rotvec(hi[j], hi[j+1], f.givs[j])
		}
		// Compute the (i+1)st Givens rotation that zeroes H[i+1,i].
		f.givs[i] = drotg(hi[i], hi[i+1])
		// Apply the (i+1)st Givens rotation.
		hi[i], hi[i+1] = rotvec(hi[i], hi[i+1], f.givs[i])

		// Apply the (i+1)st Givens rotation to (g[i], g[i+1]).
		gi := f.g[i]
		f.g[i], f.g[i+1] = rotvec(f.g[i], f.g[i+1], f.givs[i])
		f.degenerate = f.CheckLSGrad && i > 0 && f.smallLSGrad(i, gi)

		// The residual norm is |g[i+1]| without forming the residual.
		ctx.ResidualNorm = math.Abs(f.g[i+1])
		ctx.Src = nil
		ctx.Dst = nil
		ctx.Converged = false
		f.resume = 5
		return CheckResidualNorm, nil
	case 5:
		i := f.i
		if !ctx.Converged {
			if f.linDepend {
				f.resume = 0 // Calling Iterate again without Init will panic.
				return NoOperation, fmt.Errorf("%w: H[%d,%d] = %v, |res| = %v",
					ErrBreakdown, i+1, i, f.subdiag, ctx.ResidualNorm)
			}
			if f.degenerate {
				ctx.Converged = true
			}
		}
		if ctx.Converged || i+1 == f.m {
			// Compute final approximate solution x and finish.
			if err := f.update(ctx.X, i+1); err != nil {
				f.resume = 0
				return NoOperation, err
			}
			f.resume = 0
			return EndIteration, nil
		}
		f.i++
		f.resume = 2
		return EndIteration, nil
		// end for loop

	default:
		panic("matfree: FGMRES.Init not called")
	}
}

// orthonormalize orthogonalizes W[:,i+1] against W[:,0:i+1] by modified
// Gram-Schmidt, stores the coefficients in hi and normalizes W[:,i+1]. It
// reports whether W[:,i+1] is numerically linearly dependent on the previous
// columns.
func (f *FGMRES) orthonormalize(i int, hi []float64) bool {
	w := f.w[i+1]
	nrm0 := w.Norm()
	for k := 0; k <= i; k++ {
		hki := w.Dot(f.w[k])
		hi[k] = hki
		w.Axpby(1, w, -hki, f.w[k])
	}
	nrm := w.Norm()
	if nrm < reorthTol*nrm0 {
		for k := 0; k <= i; k++ {
			c := w.Dot(f.w[k])
			hi[k] += c
			w.Axpby(1, w, -c, f.w[k])
		}
		nrm = w.Norm()
	}
	hi[i+1] = nrm // H[i+1,i] = |w|
	if nrm == 0 || nrm <= dlamchE*nrm0 {
		return true
	}
	vector.Divide(w, nrm)
	return false
}

// smallLSGrad unrotates the partial solution of the least-squares problem and
// reports whether the gradient R*y is at the level of round-off.
func (f *FGMRES) smallLSGrad(i int, gi float64) bool {
	y := f.y[:i+1]
	for k := range y {
		y[k] = 0
	}
	y[i] = gi
	for k := i - 1; k >= 0; k-- {
		inv := givens{c: f.givs[k].c, s: -f.givs[k].s}
		y[k], y[k+1] = rotvec(y[k], y[k+1], inv)
	}
	var sum float64
	for r := 0; r <= i; r++ {
		var s float64
		for c := r; c <= i; c++ {
			s += f.h[r+c*f.ldh] * y[c]
		}
		sum += s * s
	}
	return math.Sqrt(sum) < 1000*machEps
}

// update solves the n×n triangular least-squares system and adds the
// correction to x.
func (f *FGMRES) update(x vector.Vector, n int) error {
	for j := 0; j < n; j++ {
		if f.h[j+j*f.ldh] == 0 {
			return fmt.Errorf("%w: singular triangular factor at column %d", ErrBreakdown, j)
		}
	}
	y := f.y[:n]
	copy(y, f.g[:n])
	// Solve H*y = g for upper triangular H.
	// H is upper triangular but stored in column-major order while Dtrsv
	// expects row-major.
	bi := blas64.Implementation()
	bi.Dtrsv(blas.Lower, blas.Trans, blas.NonUnit, n, f.h, f.ldh, y, 1)
	// x += Z*y
	for j := 0; j < n; j++ {
		x.Axpby(1, x, y[j], f.z[j])
	}
	return nil
}

func drotg(a, b float64) givens {
	if b == 0 {
		return givens{c: 1, s: 0}
	}
	if math.Abs(b) > math.Abs(a) {
		tmp := -a / b
		s := 1 / math.Sqrt(1+tmp*tmp)
		return givens{c: tmp * s, s: s}
	}
	tmp := -b / a
	c := 1 / math.Sqrt(1+tmp*tmp)
	return givens{c: c, s: tmp * c}
}

func rotvec(x, y float64, g givens) (rx, ry float64) {
	rx = g.c*x - g.s*y
	ry = g.s*x + g.c*y
	return
}

func reuse(v []float64, n int) []float64 {
	if cap(v) < n {
		return make([]float64, n)
	}
	return v[:n]
}
