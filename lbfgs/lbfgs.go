// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lbfgs implements a limited-memory BFGS approximation of an inverse
// Hessian that can be used as a preconditioner.
package lbfgs

import (
	"io"
	"log/slog"

	"github.com/vladimir-ch/matfree/vector"
)

// curvatureTol is the smallest accepted curvature s·y.
const curvatureTol = 1.0 / (1 << 52)

// LBFGS approximates the action of an inverse Hessian from a bounded history
// of secant pairs (s, y). It implements matfree.LinearMap.
//
// The history is stored in a ring of fixed capacity. When it is full, a new
// pair overwrites the oldest one.
type LBFGS struct {
	// Lambda0 shifts the initial Hessian approximation by Lambda0*I. Zero
	// gives the classical two-loop recursion.
	Lambda0 float64
	// InitialNorm scales the result when the history is empty. If it is
	// zero, 1 is used.
	InitialNorm float64
	// Logger receives notes about skipped corrections. If it is nil,
	// nothing is logged.
	Logger *slog.Logger

	slots []correction
	seq   int // Number of accepted corrections since the last Reset.

	rho, alpha []float64
}

type correction struct {
	s, y     vector.Vector
	sTs, sTy float64
}

// New returns an LBFGS that stores at most maxStored corrections.
func New(maxStored int) *LBFGS {
	if maxStored <= 0 {
		panic("lbfgs: capacity not positive")
	}
	return &LBFGS{
		InitialNorm: 1,
		slots:       make([]correction, maxStored),
		rho:         make([]float64, maxStored),
		alpha:       make([]float64, maxStored),
	}
}

// Cap returns the capacity of the history.
func (l *LBFGS) Cap() int {
	return len(l.slots)
}

// Len returns the number of stored corrections.
func (l *LBFGS) Len() int {
	return min(l.seq, len(l.slots))
}

// slot returns the storage index of the k-th oldest stored correction.
func (l *LBFGS) slot(k int) int {
	first := l.seq - l.Len()
	return (first + k) % len(l.slots)
}

// Correction returns the k-th oldest stored pair. The returned vectors are
// owned by l and must not be modified.
func (l *LBFGS) Correction(k int) (s, y vector.Vector) {
	if k < 0 || l.Len() <= k {
		panic("lbfgs: correction index out of range")
	}
	c := l.slots[l.slot(k)]
	return c.s, c.y
}

// Reset discards the history. The storage is kept for reuse.
func (l *LBFGS) Reset() {
	l.seq = 0
}

// AddCorrection records the secant pair (s, y). The pair is copied. If the
// curvature s·y is not positive beyond round-off, the pair is skipped and
// AddCorrection returns false.
func (l *LBFGS) AddCorrection(s, y vector.Vector) bool {
	sTy := s.Dot(y)
	if sTy <= curvatureTol {
		l.logger().Info("lbfgs correction skipped due to curvature condition", "curvature", sTy)
		return false
	}
	c := &l.slots[l.seq%len(l.slots)]
	if c.s == nil {
		c.s = s.Clone()
		c.y = y.Clone()
	} else {
		// Reuse the vectors of the evicted pair.
		c.s.CopyFrom(s)
		c.y.CopyFrom(y)
	}
	c.sTs = s.Dot(s)
	c.sTy = sTy
	l.seq++
	return true
}

// Apply stores in dst the action of the inverse Hessian approximation on src
// computed by the two-loop recursion.
func (l *LBFGS) Apply(dst, src vector.Vector) error {
	n := l.Len()
	lambda0 := l.Lambda0
	rho := l.rho[:n]
	alpha := l.alpha[:n]

	for k := 0; k < n; k++ {
		c := l.slots[l.slot(k)]
		rho[k] = 1 / (c.sTs*lambda0 + c.sTy)
	}

	dst.CopyFrom(src)
	for k := n - 1; k >= 0; k-- {
		c := l.slots[l.slot(k)]
		alpha[k] = rho[k] * c.s.Dot(dst)
		if lambda0 > 0 {
			dst.Axpby(1, dst, -alpha[k]*lambda0, c.s)
		}
		dst.Axpby(1, dst, -alpha[k], c.y)
	}

	if n > 0 {
		k := n - 1
		c := l.slots[l.slot(k)]
		yTy := c.y.Dot(c.y)
		if lambda0 > 0 {
			yTy += 2 * lambda0 * c.sTy
			yTy += lambda0 * lambda0 * c.sTs
		}
		dst.Scale(1 / (rho[k] * yTy))
	} else {
		norm := l.InitialNorm
		if norm == 0 {
			norm = 1
		}
		vector.Divide(dst, norm)
	}

	for k := 0; k < n; k++ {
		c := l.slots[l.slot(k)]
		beta := rho[k] * c.y.Dot(dst)
		if lambda0 > 0 {
			beta += rho[k] * lambda0 * c.s.Dot(dst)
		}
		dst.Axpby(1, dst, alpha[k]-beta, c.s)
	}
	return nil
}

func (l *LBFGS) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.Logger
}
