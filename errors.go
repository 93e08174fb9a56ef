// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package matfree

import "errors"

var (
	// ErrBreakdown is returned by FGMRES when the Arnoldi process
	// produces a linearly dependent vector before the residual has
	// converged.
	ErrBreakdown = errors.New("matfree: Arnoldi process breakdown")

	ErrRhoBreakdown   = errors.New("matfree: rho breakdown")
	ErrOmegaBreakdown = errors.New("matfree: omega breakdown")
)

// machEps is the difference between 1 and the next larger float64.
const machEps = 1.0 / (1 << 52)
