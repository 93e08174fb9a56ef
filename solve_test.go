// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package matfree

import (
	"testing"

	"github.com/vladimir-ch/matfree/vector"
)

// scripted commands a fixed sequence of operations.
type scripted struct {
	ops []Operation
	k   int
}

func (s *scripted) Init(x vector.Vector, maxIter int) { s.k = 0 }

func (s *scripted) Iterate(ctx *Context) (Operation, error) {
	op := s.ops[s.k]
	s.k++
	return op, nil
}

func TestLinearSolveOperations(t *testing.T) {
	a := diagonal(1, 2)
	b := ones(2)

	// Every operation the driver understands.
	m := &scripted{ops: []Operation{NoOperation, CheckResidualNorm, EndIteration}}
	stats, err := LinearSolve(a, b, vector.NewDense(2), m, Settings{MaxIterations: 1})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if stats.Iterations != 1 || stats.Converged {
		t.Errorf("unexpected stats %+v", stats)
	}

	for _, op := range []Operation{EndIteration << 1, MatVec | PSolve} {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("no panic for operation %v", op)
				}
			}()
			m := &scripted{ops: []Operation{op}}
			LinearSolve(a, b, vector.NewDense(2), m, Settings{})
		}()
	}
}
