// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package testproblem provides a nonlinear 1-D Poisson source design problem
//  minimize   ½h‖u - ū‖² + ½βh‖x‖²
//  subject to K u + κu³ - x = 0,
//             ½h‖u‖² + hΣx - c₀ = 0,
// where K is the finite-difference Laplacian on n interior nodes of (0, 1)
// with homogeneous Dirichlet conditions and ū_i = sin(πt_i). The design x is
// the source term and u is the state.
package testproblem

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/vladimir-ch/matfree"
	"github.com/vladimir-ch/matfree/internal/sparse"
	"github.com/vladimir-ch/matfree/kkt"
	"github.com/vladimir-ch/matfree/vector"
)

var (
	ErrUnknownSolver = errors.New("testproblem: unknown linear solver")
	ErrNotConverged  = errors.New("testproblem: solve did not converge")
)

// Options holds the parameters of a Problem.
type Options struct {
	// Kappa is the coefficient of the cubic term. It must be
	// non-negative.
	Kappa float64
	// Beta weighs the design regularization.
	Beta float64
	// C0 is the target of the constraint.
	C0 float64

	// Solver is the Krylov method for state Jacobian systems, "cg" or
	// "bicgstab".
	Solver string
	// MaxNewton limits the Newton iterations of SolveState.
	MaxNewton int
	// NewtonTol is the relative tolerance of SolveState.
	NewtonTol float64

	Logger *slog.Logger
}

// DefaultOptions returns the default problem parameters.
func DefaultOptions() Options {
	return Options{
		Kappa:     1,
		Beta:      1e-3,
		C0:        1,
		Solver:    "cg",
		MaxNewton: 50,
		NewtonTol: 1e-10,
	}
}

// Problem implements kkt.Model.
type Problem struct {
	n      int
	h      float64
	opts   Options
	k      *sparse.Matrix
	kdiag  []float64
	target []float64
	log    *slog.Logger
}

// New returns the problem on n interior nodes.
func New(n int, opts Options) (*Problem, error) {
	if n <= 0 {
		return nil, fmt.Errorf("testproblem: invalid number of nodes %d", n)
	}
	if opts.Kappa < 0 {
		return nil, fmt.Errorf("testproblem: negative kappa %v", opts.Kappa)
	}
	switch opts.Solver {
	case "cg", "bicgstab":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, opts.Solver)
	}
	if opts.MaxNewton <= 0 {
		opts.MaxNewton = 50
	}
	if opts.NewtonTol <= 0 {
		opts.NewtonTol = 1e-10
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := 1 / float64(n+1)
	h2 := 1 / (h * h)
	k := sparse.New(n, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			k.Append(i, i-1, -h2)
		}
		k.Append(i, i, 2*h2)
		if i < n-1 {
			k.Append(i, i+1, -h2)
		}
	}
	kdiag := make([]float64, n)
	k.Diagonal(kdiag)

	target := make([]float64, n)
	for i := range target {
		target[i] = math.Sin(math.Pi * float64(i+1) * h)
	}

	return &Problem{
		n:      n,
		h:      h,
		opts:   opts,
		k:      k,
		kdiag:  kdiag,
		target: target,
		log:    log,
	}, nil
}

// N returns the number of nodes.
func (p *Problem) N() int { return p.n }

// NewDesign returns a zero design vector.
func (p *Problem) NewDesign() *vector.Dense { return vector.NewDense(p.n) }

// NewState returns a zero state vector.
func (p *Problem) NewState() *vector.Dense { return vector.NewDense(p.n) }

// NewDual returns a zero constraint multiplier vector.
func (p *Problem) NewDual() *vector.Dense { return vector.NewDense(1) }

// InitialDesign returns the constant source that satisfies the constraint for
// the linear problem with κ = 0 approximately.
func (p *Problem) InitialDesign() *vector.Dense {
	x := p.NewDesign()
	x.Fill(p.opts.C0)
	return x
}

func raw(v vector.Vector) []float64 {
	return v.(*vector.Dense).RawData()
}

func (p *Problem) method() matfree.Method {
	if p.opts.Solver == "bicgstab" {
		return &matfree.BiCGSTAB{}
	}
	return &matfree.CG{}
}

// residual stores K u + κu³ - x into dst.
func (p *Problem) residual(dst, design, state vector.Vector) {
	d, x, u := raw(dst), raw(design), raw(state)
	p.k.MulVec(d, u)
	for i := range d {
		d[i] += p.opts.Kappa*u[i]*u[i]*u[i] - x[i]
	}
}

// Objective returns F(design, state).
func (p *Problem) Objective(design, state vector.Vector) float64 {
	x, u := raw(design), raw(state)
	var f float64
	for i := range u {
		d := u[i] - p.target[i]
		f += d*d + p.opts.Beta*x[i]*x[i]
	}
	return 0.5 * p.h * f
}

// Constraint returns C(design, state).
func (p *Problem) Constraint(design, state vector.Vector) float64 {
	x, u := raw(design), raw(state)
	var c float64
	for i := range u {
		c += 0.5*u[i]*u[i] + x[i]
	}
	return p.h*c - p.opts.C0
}

// SolveState solves the governing equations at design by Newton's method with
// backtracking on the residual norm.
func (p *Problem) SolveState(design vector.Vector) (*vector.Dense, error) {
	u := p.NewState()
	r := p.NewState()
	du := p.NewState()
	trial := p.NewState()
	rt := p.NewState()

	p.residual(r, design, u)
	rnorm := r.Norm()
	tol := p.opts.NewtonTol * math.Max(1, design.Norm())
	for iter := 0; iter < p.opts.MaxNewton; iter++ {
		p.log.Debug("newton", "iter", iter, "residual", rnorm)
		if rnorm <= tol {
			return u, nil
		}
		j := p.stateJacobian(u.RawData())
		r.Scale(-1)
		du.Fill(0)
		if err := j.Solve(du, r, 1e-10); err != nil {
			return nil, fmt.Errorf("testproblem: newton step: %w", err)
		}
		step := 1.0
		for k := 0; ; k++ {
			trial.Axpby(1, u, step, du)
			p.residual(rt, design, trial)
			if rt.Norm() < rnorm || k == 10 {
				break
			}
			step /= 2
		}
		u.CopyFrom(trial)
		r.CopyFrom(rt)
		rnorm = r.Norm()
	}
	if rnorm <= tol {
		return u, nil
	}
	return nil, fmt.Errorf("%w: state residual %v after %d newton iterations", ErrNotConverged, rnorm, p.opts.MaxNewton)
}

// SolveAdjoint solves ∂R/∂uᵀψ = -(∂F/∂u + ∂C/∂uᵀλ) for the adjoint ψ.
func (p *Problem) SolveAdjoint(design, state, dual vector.Vector) (*vector.Dense, error) {
	rhs := p.NewState()
	if err := p.ObjectivePartialState(rhs, design, state); err != nil {
		return nil, err
	}
	work := p.NewState()
	if err := (constraintState{h: p.h, u: raw(state)}).TransProduct(work, dual); err != nil {
		return nil, err
	}
	rhs.Add(work)
	rhs.Scale(-1)

	psi := p.NewState()
	if err := p.stateJacobian(raw(state)).TransSolve(psi, rhs, 1e-11); err != nil {
		return nil, fmt.Errorf("testproblem: adjoint solve: %w", err)
	}
	return psi, nil
}

// Gradient returns the gradient of the reduced Lagrangian
//  L(x, λ) = F(x, u(x)) + λ C(x, u(x))
// with respect to the design, computed with the state and adjoint solved at
// (design, dual). The state and adjoint are returned too.
func (p *Problem) Gradient(design, dual vector.Vector) (grad, state, adjoint *vector.Dense, err error) {
	state, err = p.SolveState(design)
	if err != nil {
		return nil, nil, nil, err
	}
	adjoint, err = p.SolveAdjoint(design, state, dual)
	if err != nil {
		return nil, nil, nil, err
	}
	grad = p.NewDesign()
	if err := p.ObjectivePartialDesign(grad, design, state); err != nil {
		return nil, nil, nil, err
	}
	work := p.NewDesign()
	(residualDesign{}).TransProduct(work, adjoint)
	grad.Add(work)
	(constraintDesign{h: p.h}).TransProduct(work, dual)
	grad.Add(work)
	return grad, state, adjoint, nil
}

// ObjectivePartialDesign implements kkt.Model.
func (p *Problem) ObjectivePartialDesign(dst, design, _ vector.Vector) error {
	dst.CopyFrom(design)
	dst.Scale(p.opts.Beta * p.h)
	return nil
}

// ObjectivePartialState implements kkt.Model.
func (p *Problem) ObjectivePartialState(dst, _, state vector.Vector) error {
	d, u := raw(dst), raw(state)
	for i := range d {
		d[i] = p.h * (u[i] - p.target[i])
	}
	return nil
}

// ResidualDesign implements kkt.Model.
func (p *Problem) ResidualDesign(_, _ vector.Vector) (kkt.Jacobian, error) {
	return residualDesign{}, nil
}

// ResidualState implements kkt.Model.
func (p *Problem) ResidualState(_, state vector.Vector) (kkt.StateJacobian, error) {
	return p.stateJacobian(raw(state)), nil
}

// ConstraintDesign implements kkt.Model.
func (p *Problem) ConstraintDesign(_, _ vector.Vector) (kkt.Jacobian, error) {
	return constraintDesign{h: p.h}, nil
}

// ConstraintState implements kkt.Model.
func (p *Problem) ConstraintState(_, state vector.Vector) (kkt.Jacobian, error) {
	u := make([]float64, p.n)
	copy(u, raw(state))
	return constraintState{h: p.h, u: u}, nil
}

// ReducedConstraint returns C(x, u(x)).
func (p *Problem) ReducedConstraint(design vector.Vector) (float64, error) {
	state, err := p.SolveState(design)
	if err != nil {
		return 0, err
	}
	return p.Constraint(design, state), nil
}

// CentralDifference approximates the action of the KKT matrix at (design, dual)
// on dir by central differences of the reduced Lagrangian gradient and of the
// reduced constraint with step delta. Every evaluation solves the state and
// adjoint equations.
func (p *Problem) CentralDifference(design, dual vector.Vector, dir *vector.KKT, delta float64) (*vector.KKT, error) {
	xp := p.NewDesign()
	xp.Axpby(1, design, delta, dir.Primal)
	xm := p.NewDesign()
	xm.Axpby(1, design, -delta, dir.Primal)
	lp := p.NewDual()
	lp.Axpby(1, dual, delta, dir.Dual)
	lm := p.NewDual()
	lm.Axpby(1, dual, -delta, dir.Dual)

	gp, _, _, err := p.Gradient(xp, lp)
	if err != nil {
		return nil, err
	}
	gm, _, _, err := p.Gradient(xm, lm)
	if err != nil {
		return nil, err
	}
	cp, err := p.ReducedConstraint(xp)
	if err != nil {
		return nil, err
	}
	cm, err := p.ReducedConstraint(xm)
	if err != nil {
		return nil, err
	}

	gp.Sub(gm)
	vector.Divide(gp, 2*delta)
	c := p.NewDual()
	c.SetAt(0, (cp-cm)/(2*delta))
	return vector.NewKKT(gp, c), nil
}
