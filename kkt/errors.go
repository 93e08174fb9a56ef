// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import "errors"

var (
	ErrNotKKT           = errors.New("kkt: vector is not a KKT vector")
	ErrNotLinearized    = errors.New("kkt: operator not linearized")
	ErrNoKrylov         = errors.New("kkt: krylov method not set")
	ErrNoPreconditioner = errors.New("kkt: preconditioner not set")
)
