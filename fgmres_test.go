// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package matfree

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/matfree/vector"
)

func TestFGMRES(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, tc := range []testCase{
		randomSPD(1, rnd),
		randomSPD(2, rnd),
		randomSPD(3, rnd),
		randomSPD(4, rnd),
		randomSPD(5, rnd),
		randomSPD(10, rnd),
		randomSPD(20, rnd),
		randomSPD(50, rnd),
		randomSPD(100, rnd),
		randomSPD(200, rnd),
		randomNonsym(3, rnd),
		randomNonsym(10, rnd),
		randomNonsym(50, rnd),
		randomNonsym(200, rnd),
	} {
		n := tc.n
		A := tc.a
		// Compute the right-hand side b so that the vector [1,1,...,1]
		// is the solution.
		want := ones(n)
		b := rhsFor(A, want)
		x := vector.NewDense(n)

		for _, lsgrad := range []bool{false, true} {
			x.Fill(0)
			stats, err := LinearSolve(A, b, x, &FGMRES{CheckLSGrad: lsgrad}, Settings{
				MaxIterations: tc.iters,
				Tolerance:     1e-13,
			})
			if err != nil {
				t.Errorf("Case %v (n=%v,lsgrad=%v): unexpected error %v", tc.name, n, lsgrad, err)
				continue
			}
			if !stats.Converged {
				t.Errorf("Case %v (n=%v,lsgrad=%v): not converged, |r|=%v", tc.name, n, lsgrad, stats.ResidualNorm)
			}
			dist := floats.Distance(x.RawData(), want.RawData(), math.Inf(1))
			if dist > tc.tol {
				t.Errorf("Case %v (n=%v,lsgrad=%v): unexpected solution, |want-got|=%v", tc.name, n, lsgrad, dist)
			}
		}
	}
}

func TestFGMRESDiagonal(t *testing.T) {
	d := []float64{1, 100, 10}
	A := diagonal(d...)
	for axis := range d {
		b := vector.NewDense(len(d))
		b.SetAt(axis, 1)
		x := vector.NewDense(len(d))
		stats, err := LinearSolve(A, b, x, &FGMRES{}, Settings{
			MaxIterations: len(d),
			Tolerance:     1e-12,
		})
		if err != nil {
			t.Fatalf("axis %d: unexpected error %v", axis, err)
		}
		if stats.Iterations != 1 {
			t.Errorf("axis %d: unexpected number of iterations, want 1, got %d", axis, stats.Iterations)
		}
		for i := range d {
			want := 0.0
			if i == axis {
				want = 1 / d[i]
			}
			if math.Abs(x.At(i)-want) > 1e-14 {
				t.Errorf("axis %d: unexpected x[%d], want %v, got %v", axis, i, want, x.At(i))
			}
		}
	}
}

func TestFGMRESInitialGuess(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	tc := randomNonsym(20, rnd)
	want := ones(tc.n)
	b := rhsFor(tc.a, want)
	x := ones(tc.n)

	stats, err := LinearSolve(tc.a, b, x, &FGMRES{}, Settings{MaxIterations: tc.iters})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if stats.Iterations != 0 {
		t.Errorf("unexpected number of iterations, want 0, got %d", stats.Iterations)
	}
	if stats.MatVec != 1 {
		t.Errorf("unexpected number of MatVec, want 1, got %d", stats.MatVec)
	}
	if !stats.Converged {
		t.Errorf("initial guess not recognized as solution")
	}
}

func TestFGMRESVariablePreconditioner(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	tc := randomNonsym(50, rnd)
	n := tc.n
	want := ones(n)
	b := rhsFor(tc.a, want)

	// Scaled Jacobi whose scaling changes on every application. The
	// preconditioner is not a fixed linear operator, which FGMRES
	// tolerates.
	var calls int
	precond := LinearMapFunc(func(dst, src vector.Vector) error {
		calls++
		dst.CopyFrom(src)
		dst.Scale(1 / (float64(n) * (1 + 0.1*float64(calls%3))))
		return nil
	})

	x := vector.NewDense(n)
	stats, err := LinearSolve(tc.a, b, x, &FGMRES{}, Settings{
		MaxIterations: tc.iters,
		Tolerance:     1e-13,
		Precond:       precond,
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if stats.PSolve != calls {
		t.Errorf("unexpected PSolve count, want %d, got %d", calls, stats.PSolve)
	}
	dist := floats.Distance(x.RawData(), want.RawData(), math.Inf(1))
	if dist > tc.tol {
		t.Errorf("unexpected solution, |want-got|=%v", dist)
	}
}

func TestFGMRESIterationLimit(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	tc := randomNonsym(30, rnd)
	b := rhsFor(tc.a, ones(tc.n))
	x := vector.NewDense(tc.n)

	stats, err := LinearSolve(tc.a, b, x, &FGMRES{}, Settings{
		MaxIterations: 2,
		Tolerance:     1e-14,
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if stats.Converged {
		t.Errorf("unexpected convergence in 2 iterations")
	}
	if stats.Iterations != 2 {
		t.Errorf("unexpected number of iterations, want 2, got %d", stats.Iterations)
	}

	// The truncated solve must still reduce the residual.
	r := vector.NewDense(tc.n)
	tc.a.Apply(r, x)
	r.Axpby(1, b, -1, r)
	if r.Norm() >= b.Norm() {
		t.Errorf("residual not reduced: |r|=%v, |b|=%v", r.Norm(), b.Norm())
	}
}

func TestFGMRESBreakdown(t *testing.T) {
	const n = 4
	zero := LinearMapFunc(func(dst, _ vector.Vector) error {
		dst.Fill(0)
		return nil
	})
	b := ones(n)
	x := vector.NewDense(n)
	_, err := LinearSolve(zero, b, x, &FGMRES{}, Settings{MaxIterations: n})
	if !errors.Is(err, ErrBreakdown) {
		t.Errorf("unexpected error, want ErrBreakdown, got %v", err)
	}
}

func TestFGMRESOperatorError(t *testing.T) {
	const n = 4
	errFail := errors.New("failed")
	var calls int
	failing := LinearMapFunc(func(dst, src vector.Vector) error {
		calls++
		if calls > 1 {
			return errFail
		}
		dst.CopyFrom(src)
		return nil
	})
	_, err := LinearSolve(failing, ones(n), vector.NewDense(n), &FGMRES{}, Settings{MaxIterations: n})
	if !errors.Is(err, errFail) {
		t.Errorf("unexpected error, want %v, got %v", errFail, err)
	}
}

func TestFGMRESCheckResidual(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	tc := randomSPD(40, rnd)
	b := rhsFor(tc.a, ones(tc.n))
	x := vector.NewDense(tc.n)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	stats, err := LinearSolve(tc.a, b, x, &FGMRES{}, Settings{
		MaxIterations: tc.iters,
		Tolerance:     1e-10,
		CheckResidual: true,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	r := vector.NewDense(tc.n)
	tc.a.Apply(r, x)
	r.Axpby(1, b, -1, r)
	if math.Abs(r.Norm()-stats.ResidualNorm) > 1e-12*b.Norm() {
		t.Errorf("reported residual %v is not the true residual %v", stats.ResidualNorm, r.Norm())
	}
	out := buf.String()
	if !strings.Contains(out, "krylov final true residual") {
		t.Errorf("missing true residual in log output")
	}
	if strings.Contains(out, "level=WARN") {
		t.Errorf("unexpected warning in log output:\n%s", out)
	}
}

func TestFGMRESLSGradExit(t *testing.T) {
	// With a tiny right-hand side the gradient of the least-squares
	// problem drops below round-off long before the tolerances are met.
	a := diagonal(1, 2, 3)
	b := ones(3)
	b.Scale(1e-14)
	settings := Settings{
		MaxIterations: 2,
		Tolerance:     1e-15,
		AbsTolerance:  1e-300,
	}
	for _, check := range []bool{false, true} {
		x := vector.NewDense(3)
		stats, err := LinearSolve(a, b, x, &FGMRES{CheckLSGrad: check}, settings)
		if err != nil {
			t.Fatalf("CheckLSGrad=%v: unexpected error %v", check, err)
		}
		if stats.Iterations != 2 {
			t.Errorf("CheckLSGrad=%v: unexpected number of iterations %v, want 2", check, stats.Iterations)
		}
		if stats.Converged != check {
			t.Errorf("CheckLSGrad=%v: unexpected convergence flag %v", check, stats.Converged)
		}
		if stats.ResidualNorm >= b.Norm() {
			t.Errorf("CheckLSGrad=%v: residual not reduced", check)
		}
	}
}

func TestFGMRESResidualMismatch(t *testing.T) {
	// A weakly nonlinear map breaks the residual recurrence, so the true
	// residual differs from the estimate.
	d := diagonal(1, 2, 3)
	a := LinearMapFunc(func(dst, src vector.Vector) error {
		if err := d.Apply(dst, src); err != nil {
			return err
		}
		x0 := src.(*vector.Dense).At(0)
		for i := range dst.(*vector.Dense).RawData() {
			dst.(*vector.Dense).SetAt(i, dst.(*vector.Dense).At(i)+0.1*x0*x0)
		}
		return nil
	})
	b := ones(3)
	x := vector.NewDense(3)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	stats, err := LinearSolve(a, b, x, &FGMRES{}, Settings{
		MaxIterations: 2,
		Tolerance:     1e-8,
		CheckResidual: true,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	r := vector.NewDense(3)
	a.Apply(r, x)
	r.Axpby(1, b, -1, r)
	if stats.ResidualNorm != r.Norm() {
		t.Errorf("reported residual %v is not the true residual %v", stats.ResidualNorm, r.Norm())
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "true and estimated residual norms do not agree") {
		t.Errorf("missing residual mismatch warning in log output:\n%s", out)
	}
}
