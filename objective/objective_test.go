/*
 * objective_test.go, part of semifit.
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

package objective

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmera/semifit"
	"github.com/rmera/semifit/eval"
	"github.com/rmera/semifit/mndo"
	"github.com/rmera/semifit/mndo/mndotest"
)

//funcEval gives one molecule whose energy is e(x).
type funcEval struct {
	e     func(x []float64) float64
	calls atomic.Int64
}

func (F *funcEval) EvaluateBatch(ctx context.Context, vecs [][]float64) ([][]semifit.Properties, error) {
	F.calls.Add(1)
	ret := make([][]semifit.Properties, len(vecs))
	for i, v := range vecs {
		ret[i] = []semifit.Properties{{semifit.EnergyKey: F.e(v)}}
	}
	return ret, nil
}

type failEval struct{}

var errOracle = errors.New("oracle exploded")

func (failEval) EvaluateBatch(ctx context.Context, vecs [][]float64) ([][]semifit.Properties, error) {
	return nil, &semifit.BatchError{Index: 0, Err: errOracle}
}

func TestMeanAbsError(Te *testing.T) {
	nan := math.NaN()
	assert.InDelta(Te, 700.7/3, MeanAbsError([]float64{-10, -20, -15}, []float64{-9.5, nan, -15.2}, 700), 1e-9)
	assert.Equal(Te, 700.0, MeanAbsError([]float64{1, 2}, []float64{nan, nan}, 700))
	assert.Equal(Te, 5.0, MeanAbsError([]float64{1, 2}, []float64{nan, nan}, -5))
	assert.Equal(Te, 0.0, MeanAbsError(nil, nil, 700))
	assert.False(Te, math.IsNaN(MeanAbsError([]float64{nan}, []float64{1}, 700)))
	assert.Panics(Te, func() { MeanAbsError([]float64{1}, nil, 700) })
}

func TestEndToEnd(Te *testing.T) {
	prog, err := mndotest.Program(Te.TempDir(), mndotest.Normal, "")
	require.NoError(Te, err)
	h := mndo.NewHandle()
	h.SetCommand(prog)
	input := filepath.Join(Te.TempDir(), "_tmp_molecules")
	require.NoError(Te, mndo.WriteInput(input, mndotest.Batch("-9.5", "broken", "-15.2"), ""))
	keys, err := semifit.NewKeys(semifit.Key{Species: 1, Property: semifit.USS})
	require.NoError(Te, err)
	start := semifit.ParamSet{1: {semifit.USS: 0}}
	sc, err := semifit.DefaultScales(start, keys)
	require.NoError(Te, err)
	codec, err := semifit.NewCodec(keys, sc)
	require.NoError(Te, err)
	pool, err := eval.NewPool(h, codec, input, Te.TempDir(), 2)
	require.NoError(Te, err)
	defer pool.Close()

	O := New(pool, []float64{-10, -20, -15})
	l, err := O.Loss(context.Background(), []float64{0})
	require.NoError(Te, err)
	assert.InDelta(Te, 233.5667, l, 1e-4)

	//the fake oracle adds the parameter to every energy, so the gradient is
	//(-1 + 1)/3 in the region where the first molecule is above its reference and the
	//third below it.
	g, err := O.Gradient(context.Background(), []float64{0}, nil)
	require.NoError(Te, err)
	assert.InDelta(Te, 0.0, g[0], 1e-3)
	g, err = O.Gradient(context.Background(), []float64{2}, nil)
	require.NoError(Te, err)
	assert.InDelta(Te, 2.0/3, g[0], 1e-3)
}

func TestReferenceMismatch(Te *testing.T) {
	O := New(&funcEval{e: func(x []float64) float64 { return 0 }}, []float64{1, 2})
	_, err := O.Loss(context.Background(), []float64{0})
	assert.Error(Te, err)
}

func TestOracleErrorPropagates(Te *testing.T) {
	O := New(failEval{}, []float64{1})
	_, err := O.Loss(context.Background(), []float64{0})
	assert.ErrorIs(Te, err, errOracle)
	var berr *semifit.BatchError
	assert.True(Te, errors.As(err, &berr))
	_, err = O.Gradient(context.Background(), []float64{0}, nil)
	assert.ErrorIs(Te, err, errOracle)
}

func TestGradientLinear(Te *testing.T) {
	a := []float64{1.5, -2, 0.25}
	//the reference is far above the energy, so the loss is 1000 + a.x
	ev := &funcEval{e: func(x []float64) float64 {
		s := 0.0
		for i, v := range x {
			s += a[i] * v
		}
		return -s
	}}
	x := []float64{0.3, -0.7, 2}
	orig := append([]float64(nil), x...)
	for _, serial := range []bool{false, true} {
		O := New(ev, []float64{1000})
		O.Serial = serial
		ev.calls.Store(0)
		l, g, err := O.LossGradient(context.Background(), x, nil)
		require.NoError(Te, err)
		assert.InDelta(Te, 1000+0.45+1.4+0.5, l, 1e-9)
		for i := range a {
			assert.InDelta(Te, a[i], g[i], 1e-5, "serial=%v, dimension %d", serial, i)
		}
		if serial {
			assert.EqualValues(Te, 1+2*len(x), ev.calls.Load())
		} else {
			assert.EqualValues(Te, 1, ev.calls.Load())
		}
	}
	assert.Equal(Te, orig, x, "the vector must not be modified")
}

func TestGradientConvergence(Te *testing.T) {
	//loss = 1000 + sum(x^3); the central difference error shrinks with the step
	ev := &funcEval{e: func(x []float64) float64 {
		s := 0.0
		for _, v := range x {
			s += v * v * v
		}
		return -s
	}}
	x := []float64{1, 2}
	exact := []float64{3, 12}
	O := New(ev, []float64{1000})
	prev := math.Inf(1)
	for _, h := range []float64{1e-1, 1e-2, 1e-3} {
		O.Step = h
		g, err := O.Gradient(context.Background(), x, nil)
		require.NoError(Te, err)
		e := math.Abs(g[0]-exact[0]) + math.Abs(g[1]-exact[1])
		assert.Less(Te, e, prev)
		prev = e
	}
	assert.Less(Te, prev, 1e-4)
}

func TestGradientErrors(Te *testing.T) {
	O := New(&funcEval{e: func(x []float64) float64 { return 0 }}, []float64{1})
	_, err := O.Gradient(context.Background(), []float64{1, 2}, make([]float64, 1))
	assert.Error(Te, err)
	O.Step = 0
	_, err = O.Gradient(context.Background(), []float64{1}, nil)
	assert.Error(Te, err)
}
