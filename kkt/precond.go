// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kkt

import (
	"fmt"

	"github.com/vladimir-ch/matfree"
	"github.com/vladimir-ch/matfree/vector"
)

// BlockPreconditioner applies separate maps to the primal and dual parts of
// KKT vectors. A nil block is the identity.
type BlockPreconditioner struct {
	Primal matfree.LinearMap
	Dual   matfree.LinearMap
}

// Apply implements matfree.LinearMap.
func (b BlockPreconditioner) Apply(dst, src vector.Vector) error {
	kdst, ok := dst.(*vector.KKT)
	if !ok {
		return fmt.Errorf("%w: result vector is %T", ErrNotKKT, dst)
	}
	ksrc, ok := src.(*vector.KKT)
	if !ok {
		return fmt.Errorf("%w: preconditioned vector is %T", ErrNotKKT, src)
	}
	if err := applyBlock(b.Primal, kdst.Primal, ksrc.Primal); err != nil {
		return fmt.Errorf("kkt: primal preconditioner: %w", err)
	}
	if err := applyBlock(b.Dual, kdst.Dual, ksrc.Dual); err != nil {
		return fmt.Errorf("kkt: dual preconditioner: %w", err)
	}
	return nil
}

func applyBlock(m matfree.LinearMap, dst, src vector.Vector) error {
	if m == nil {
		dst.CopyFrom(src)
		return nil
	}
	return m.Apply(dst, src)
}
