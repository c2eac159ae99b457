/*
 * fitter_test.go, part of semifit.
 *
 *
 * Copyright 2024 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 *
 * Gochem is developed at the laboratory for instruction in Swedish, Department of Chemistry,
 * University of Helsinki, Finland.
 *
 *
 */
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

package fitter

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmera/semifit"
	"github.com/rmera/semifit/internal/config"
	"github.com/rmera/semifit/mndo/mndotest"
)

//setup writes one single-hydrogen molecule per name, a reference file with refs, a start
//parameter file and the fake program, and returns a configuration that uses them.
//The fake program reports an energy of name+USS for numeric names.
func setup(Te *testing.T, names []string, refs []float64) *config.Config {
	dir := Te.TempDir()
	xyz := filepath.Join(dir, "xyz")
	require.NoError(Te, os.Mkdir(xyz, 0o755))
	var b strings.Builder
	b.WriteString("name,energy\n")
	for i, n := range names {
		fmt.Fprintf(&b, "%s,%g\n", n, refs[i])
		require.NoError(Te, os.WriteFile(filepath.Join(xyz, n+".xyz"), []byte("1\n\nH 0.0 0.0 0.0\n"), 0o644))
	}
	data := filepath.Join(dir, "reference.csv")
	require.NoError(Te, os.WriteFile(data, []byte(b.String()), 0o644))
	start := filepath.Join(dir, "start.json")
	require.NoError(Te, semifit.WriteParams(start, semifit.ParamSet{1: {semifit.USS: 0, semifit.ZS: 1}}))
	prog, err := mndotest.Program(dir, mndotest.Normal, "")
	require.NoError(Te, err)

	cfg, err := config.Load("", nil)
	require.NoError(Te, err)
	cfg.Binary = prog
	cfg.Workers = 2
	cfg.Scratch = Te.TempDir()
	cfg.Data.File = data
	cfg.Data.XYZDir = xyz
	cfg.Data.Offset = 0
	cfg.Data.Size = 0
	cfg.Data.CacheDir = ""
	cfg.Parameters.Start = start
	cfg.Parameters.Output = filepath.Join(dir, "out", "params.json")
	cfg.Sample.Output = filepath.Join(dir, "out", "chain.json")
	cfg.Minimize.MaxIter = 20
	require.NoError(Te, cfg.Validate())
	return cfg
}

func newSession(Te *testing.T, cfg *config.Config) *Session {
	S, err := NewSession(context.Background(), cfg, nil)
	require.NoError(Te, err)
	Te.Cleanup(func() { S.Close() })
	return S
}

func TestSessionLoss(Te *testing.T) {
	cfg := setup(Te, []string{"-9.5", "broken", "-15.2"}, []float64{-10, -20, -15})
	S := newSession(Te, cfg)
	assert.Equal(Te, []string{"H:USS"}, S.Keys().Strings())
	assert.Equal(Te, 3, S.Dataset().Len())
	l, err := S.Loss(context.Background(), nil)
	require.NoError(Te, err)
	assert.InDelta(Te, 233.5667, l, 1e-4)
	assert.EqualValues(Te, 1, S.Evaluations())

	p, err := S.Params(S.Start())
	require.NoError(Te, err)
	uss, _ := p.Get(semifit.Key{Species: 1, Property: semifit.USS})
	zs, _ := p.Get(semifit.Key{Species: 1, Property: semifit.ZS})
	assert.InDelta(Te, 0, uss, 1e-12)
	assert.Equal(Te, 1.0, zs)

	require.NoError(Te, S.Close())
	require.NoError(Te, S.Close())
	left, err := os.ReadDir(cfg.Scratch)
	require.NoError(Te, err)
	assert.Empty(Te, left)
}

func TestSessionCache(Te *testing.T) {
	cfg := setup(Te, []string{"-9.5", "-15.2"}, []float64{-10, -15})
	cfg.Data.CacheDir = filepath.Join(Te.TempDir(), "cache")
	for i := 0; i < 2; i++ {
		S, err := NewSession(context.Background(), cfg, nil)
		require.NoError(Te, err)
		assert.Equal(Te, 2, S.Dataset().Len())
		require.NoError(Te, S.Close())
	}
	entries, err := filepath.Glob(filepath.Join(cfg.Data.CacheDir, "*.json.zst"))
	require.NoError(Te, err)
	assert.Len(Te, entries, 1)
}

func TestNewSessionErrors(Te *testing.T) {
	cfg := setup(Te, []string{"-9.5"}, []float64{-10})
	bad := *cfg
	bad.Parameters.Start = filepath.Join(Te.TempDir(), "nope.json")
	_, err := NewSession(context.Background(), &bad, nil)
	assert.Error(Te, err)

	bad = *cfg
	bad.Parameters.Ignore = []string{"USS", "ZS"}
	_, err = NewSession(context.Background(), &bad, nil)
	assert.Error(Te, err)

	bad = *cfg
	bad.Data.XYZDir = Te.TempDir()
	_, err = NewSession(context.Background(), &bad, nil)
	assert.Error(Te, err)
}

//With these references the loss is |2-USS|.
func fitData(Te *testing.T) *config.Config {
	return setup(Te, []string{"-9.5", "-15.2"}, []float64{-7.5, -13.2})
}

func TestMinimize(Te *testing.T) {
	cfg := fitData(Te)
	S := newSession(Te, cfg)
	res, err := S.Minimize(context.Background(), nil)
	require.NoError(Te, err)
	assert.InDelta(Te, 2, res.StartLoss, 1e-6)
	assert.LessOrEqual(Te, res.Loss, res.StartLoss+1e-9)
	require.Len(Te, res.X, 1)

	written, err := semifit.ReadParams(cfg.Parameters.Output)
	require.NoError(Te, err)
	phys, err := S.codec.Physical(res.X, nil)
	require.NoError(Te, err)
	uss, ok := written.Get(semifit.Key{Species: 1, Property: semifit.USS})
	require.True(Te, ok)
	assert.InDelta(Te, phys[0], uss, 1e-9)
	zs, _ := written.Get(semifit.Key{Species: 1, Property: semifit.ZS})
	assert.Equal(Te, 1.0, zs)
	assert.InDelta(Te, math.Abs(2-uss), res.Loss, 1e-6)
}

func TestMinimizeBoundsMismatch(Te *testing.T) {
	cfg := fitData(Te)
	cfg.Minimize.Lower = []float64{-1, -1}
	S := newSession(Te, cfg)
	_, err := S.Minimize(context.Background(), nil)
	assert.Error(Te, err)
}

func TestSample(Te *testing.T) {
	cfg := fitData(Te)
	cfg.Sample.Results = 4
	cfg.Sample.Adaptation = 2
	cfg.Sample.MaxDepth = 3
	S := newSession(Te, cfg)
	res, err := S.Sample(context.Background(), nil)
	require.NoError(Te, err)
	require.Len(Te, res.Physical, 4)
	assert.Equal(Te, 4, res.Chain.Len())
	assert.Equal(Te, cfg.GradientStep, S.all.obj.Step)

	C, err := ReadChain(cfg.Sample.Output)
	require.NoError(Te, err)
	assert.Equal(Te, []string{"H:USS"}, C.Keys)
	require.Len(Te, C.States, 4)
	require.Len(Te, C.LogProb, 4)
	for i, v := range C.States {
		require.Len(Te, v, 1)
		assert.InDelta(Te, -math.Abs(2-v[0]), C.LogProb[i], 1e-6)
	}
}

func TestCrossValidate(Te *testing.T) {
	names := []string{"-1", "-2", "-3", "-4", "-5"}
	refs := []float64{-0.5, -1.5, -2.5, -3.5, -4.5}
	cfg := setup(Te, names, refs)
	cfg.CV.Folds = 2
	cfg.Minimize.MaxIter = 5
	S := newSession(Te, cfg)
	res, err := S.CrossValidate(context.Background(), nil)
	require.NoError(Te, err)
	require.Len(Te, res, 2)
	tested := 0
	for i, r := range res {
		assert.Equal(Te, i, r.Fold)
		assert.Equal(Te, 5, r.TrainSize+r.TestSize)
		assert.InDelta(Te, 0.5, r.StartTestLoss, 1e-6)
		assert.False(Te, math.IsNaN(r.TestLoss))
		assert.GreaterOrEqual(Te, r.TrainLoss, 0.0)
		tested += r.TestSize
	}
	assert.Equal(Te, 5, tested)

	cfg.CV.Folds = 6
	_, err = S.CrossValidate(context.Background(), nil)
	assert.Error(Te, err)
}
