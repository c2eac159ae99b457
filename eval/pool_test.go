/*
 * pool_test.go, part of semifit.
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

package eval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmera/semifit"
	"github.com/rmera/semifit/mndo"
	"github.com/rmera/semifit/mndo/mndotest"
)

var ussH = semifit.Key{Species: 1, Property: semifit.USS}

func testCodec(Te *testing.T) *semifit.Codec {
	keys, err := semifit.NewKeys(ussH)
	require.NoError(Te, err)
	sc, err := semifit.DefaultScales(semifit.ParamSet{1: {semifit.USS: 0}}, keys)
	require.NoError(Te, err)
	c, err := semifit.NewCodec(keys, sc)
	require.NoError(Te, err)
	return c
}

//inputFile writes a molecule input file with the given titles and returns its path.
func inputFile(Te *testing.T, titles ...string) string {
	path := filepath.Join(Te.TempDir(), "_tmp_molecules")
	require.NoError(Te, mndo.WriteInput(path, mndotest.Batch(titles...), ""))
	return path
}

func fakeHandle(Te *testing.T, mode mndotest.Mode, delay string) *mndo.Handle {
	prog, err := mndotest.Program(Te.TempDir(), mode, delay)
	require.NoError(Te, err)
	h := mndo.NewHandle()
	h.SetCommand(prog)
	return h
}

func newPool(Te *testing.T, o Oracle, input string, workers int, opts ...Option) *Pool {
	p, err := NewPool(o, testCodec(Te), input, Te.TempDir(), workers, opts...)
	require.NoError(Te, err)
	Te.Cleanup(func() { p.Close() })
	return p
}

//assertClean fails if any workspace is left in the pool's directory.
func assertClean(Te *testing.T, p *Pool) {
	entries, err := os.ReadDir(p.Dir())
	require.NoError(Te, err)
	assert.Empty(Te, entries, "workspaces left behind")
}

func TestOrderAndIdempotence(Te *testing.T) {
	input := inputFile(Te, "-1", "-2")
	h := fakeHandle(Te, mndotest.Normal, "")
	vecs := make([][]float64, 7)
	for i := range vecs {
		vecs[i] = []float64{float64(i)}
	}
	serial := newPool(Te, h, input, 1)
	want, err := serial.EvaluateBatch(context.Background(), vecs)
	require.NoError(Te, err)
	require.Len(Te, want, len(vecs))
	for i, v := range want {
		assert.Equal(Te, []float64{float64(i) - 1, float64(i) - 2}, semifit.Energies(v))
	}
	assertClean(Te, serial)

	var calls atomic.Int64
	parallel := newPool(Te, h, input, 4, WithProgress(func(done, total int) {
		calls.Add(1)
		assert.LessOrEqual(Te, done, total)
	}))
	for range 2 {
		got, err := parallel.EvaluateBatch(context.Background(), vecs)
		require.NoError(Te, err)
		if diff := cmp.Diff(want, got, cmpopts.EquateNaNs()); diff != "" {
			Te.Errorf("results depend on the number of workers (-1 worker +4 workers):\n%s", diff)
		}
		assertClean(Te, parallel)
	}
	assert.EqualValues(Te, 2*len(vecs), calls.Load())
	assert.EqualValues(Te, 2*len(vecs), parallel.Completed())
}

func TestWorkspaceIsolation(Te *testing.T) {
	input := inputFile(Te, "-10", "-20")
	//the delay keeps both oracle runs alive at the same time
	h := fakeHandle(Te, mndotest.Normal, "0.3")
	p := newPool(Te, h, input, 2)
	got, err := p.EvaluateBatch(context.Background(), [][]float64{{500}, {-500}})
	require.NoError(Te, err)
	assert.Equal(Te, []float64{490, 480}, semifit.Energies(got[0]))
	assert.Equal(Te, []float64{-510, -520}, semifit.Energies(got[1]))
}

func TestEmptyBatch(Te *testing.T) {
	p := newPool(Te, fakeHandle(Te, mndotest.Normal, ""), inputFile(Te, "-1"), 2)
	got, err := p.EvaluateBatch(context.Background(), nil)
	require.NoError(Te, err)
	assert.Empty(Te, got)
}

//pickyOracle fails for one parameter value and leaves a file behind in the workspace
//otherwise.
type pickyOracle struct {
	bad float64
}

func (O pickyOracle) Calculate(ctx context.Context, P semifit.ParamSet, wrkdir, inputname string) ([]semifit.Properties, error) {
	if _, err := os.Stat(filepath.Join(wrkdir, inputname)); err != nil {
		return nil, err
	}
	v, _ := P.Get(ussH)
	if v == O.bad {
		return nil, fmt.Errorf("bad value %v", v)
	}
	if err := os.WriteFile(filepath.Join(wrkdir, "out"), []byte("x"), 0o644); err != nil {
		return nil, err
	}
	return []semifit.Properties{{semifit.EnergyKey: v}}, nil
}

func TestBatchError(Te *testing.T) {
	p := newPool(Te, pickyOracle{bad: 3}, inputFile(Te, "-1"), 3)
	vecs := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}}
	_, err := p.EvaluateBatch(context.Background(), vecs)
	require.Error(Te, err)
	var berr *semifit.BatchError
	require.True(Te, errors.As(err, &berr))
	assert.Equal(Te, 3, berr.Index)
	assertClean(Te, p)

	//the pool is still usable after a failed batch
	got, err := p.EvaluateBatch(context.Background(), vecs[:3])
	require.NoError(Te, err)
	assert.InDelta(Te, 2.0, got[2][0].Energy(), 1e-12)
	assertClean(Te, p)
}

func TestOracleFailure(Te *testing.T) {
	p := newPool(Te, fakeHandle(Te, mndotest.Fail, ""), inputFile(Te, "-1"), 1)
	_, err := p.EvaluateBatch(context.Background(), [][]float64{{0}, {1}})
	var berr *semifit.BatchError
	var oerr *semifit.OracleError
	require.True(Te, errors.As(err, &berr))
	assert.Equal(Te, 0, berr.Index)
	assert.True(Te, errors.As(err, &oerr))
	assertClean(Te, p)
}

func TestCodecFailure(Te *testing.T) {
	p := newPool(Te, pickyOracle{bad: 1e9}, inputFile(Te, "-1"), 2)
	_, err := p.EvaluateBatch(context.Background(), [][]float64{{0}, {1, 2}})
	var cerr *semifit.CodecError
	require.True(Te, errors.As(err, &cerr))
	assertClean(Te, p)
}

func TestCancelled(Te *testing.T) {
	p := newPool(Te, pickyOracle{bad: 1e9}, inputFile(Te, "-1"), 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.EvaluateBatch(ctx, [][]float64{{0}, {1}})
	assert.ErrorIs(Te, err, context.Canceled)
	assertClean(Te, p)
}

func TestNewPoolErrors(Te *testing.T) {
	_, err := NewPool(pickyOracle{}, testCodec(Te), inputFile(Te, "-1"), Te.TempDir(), 0)
	assert.Error(Te, err)
	_, err = NewPool(pickyOracle{}, testCodec(Te), filepath.Join(Te.TempDir(), "nope"), Te.TempDir(), 1)
	assert.Error(Te, err)
}

func TestClose(Te *testing.T) {
	p, err := NewPool(pickyOracle{bad: 1e9}, testCodec(Te), inputFile(Te, "-1"), Te.TempDir(), 1)
	require.NoError(Te, err)
	_, err = os.Stat(p.Dir())
	require.NoError(Te, err)
	require.NoError(Te, p.Close())
	_, err = os.Stat(p.Dir())
	assert.True(Te, os.IsNotExist(err))
}
