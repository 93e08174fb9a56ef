// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.001, cfg.KKT.ProductFac)
	assert.Equal(t, PrecondNone, cfg.Precond)

	l, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, l)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matfree.yaml")
	data := `
problem:
  nodes: 64
  solver: bicgstab
krylov:
  max_iter: 60
  check_res: true
kkt:
  dynamic_tol: true
  grad_scale: 2
quasi_newton:
  max_stored: 5
  lambda0: 0.5
precond: lbfgs
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Problem.Nodes)
	assert.Equal(t, "bicgstab", cfg.Problem.Solver)
	assert.Equal(t, 60, cfg.Krylov.MaxIter)
	assert.True(t, cfg.Krylov.CheckRes)
	assert.True(t, cfg.KKT.DynamicTol)
	assert.Equal(t, 5, cfg.QuasiNewton.MaxStored)
	assert.Equal(t, 0.5, cfg.QuasiNewton.Lambda0)
	assert.Equal(t, PrecondLBFGS, cfg.Precond)

	// Defaults survive partial files.
	def := Default()
	assert.Equal(t, def.Krylov.RelTol, cfg.Krylov.RelTol)
	assert.Equal(t, def.Problem.Kappa, cfg.Problem.Kappa)

	opts := cfg.KKTOptions(nil)
	assert.Equal(t, 2.0, opts.GradScale)
	assert.True(t, opts.DynamicTol)
	s := cfg.KrylovSettings(nil)
	assert.Equal(t, 60, s.MaxIterations)
	assert.True(t, s.CheckResidual)
	assert.Equal(t, "bicgstab", cfg.ProblemOptions(nil).Solver)

	l, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseInvalid(t *testing.T) {
	for _, test := range []struct {
		name string
		yaml string
	}{
		{"nodes", "problem: {nodes: 0}"},
		{"kappa", "problem: {kappa: -1}"},
		{"solver", "problem: {solver: gmres}"},
		{"max_iter", "krylov: {max_iter: 0}"},
		{"rel_tol", "krylov: {rel_tol: 1}"},
		{"rel_tol_below_eps", "krylov: {rel_tol: 1e-17}"},
		{"abs_tol", "krylov: {abs_tol: -1}"},
		{"product_fac", "kkt: {product_fac: 0}"},
		{"grad_scale", "kkt: {grad_scale: 0}"},
		{"ceq_scale", "kkt: {ceq_scale: -1}"},
		{"inner_tol", "kkt: {inner_tol: 0}"},
		{"max_stored", "quasi_newton: {max_stored: 0}"},
		{"lambda0", "quasi_newton: {lambda0: -1}"},
		{"precond", "precond: schur"},
		{"outer", "outer: {max_iter: 0}"},
		{"opt_tol", "outer: {opt_tol: 0}"},
		{"log_level", "log_level: loud"},
	} {
		_, err := Parse(strings.NewReader(test.yaml))
		assert.ErrorIs(t, err, ErrInvalid, test.name)
	}

	cfg, err := Parse(strings.NewReader("krylov: {rel_tol: 1.2e-16}"))
	require.NoError(t, err)
	assert.Equal(t, 1.2e-16, cfg.KrylovSettings(nil).Tolerance)

	_, err = Parse(strings.NewReader("unknown_key: 1"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("problem: [1, 2"))
	assert.Error(t, err)
}
