// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command matfree runs matrix-free reduced-space optimization on a nonlinear
// Poisson design problem.
package main

import (
	"os"

	"github.com/vladimir-ch/matfree/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
