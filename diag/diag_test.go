/*
 * diag_test.go, part of semifit.
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

package diag

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink(Te *testing.T) {
	for _, name := range []string{"events.jsonl", "events.jsonl.zst"} {
		path := filepath.Join(Te.TempDir(), "run", name)
		S, err := NewFileSink(path)
		require.NoError(Te, err)
		require.NoError(Te, S.Record(1, map[string]float64{"loss": 2.5, "grad_norm": math.NaN()}))
		require.NoError(Te, S.Record(2, map[string]float64{"loss": 1.25, "grad_norm": math.Inf(1)}))
		require.NoError(Te, S.Close())
		require.NoError(Te, S.Close(), "closing twice is fine")
		assert.Error(Te, S.Record(3, nil))

		ev, err := ReadEvents(path)
		require.NoError(Te, err, name)
		require.Len(Te, ev, 2)
		assert.Equal(Te, 1, ev[0].Step)
		assert.Equal(Te, 2.5, ev[0].Scalars["loss"])
		assert.True(Te, math.IsNaN(ev[0].Scalars["grad_norm"]))
		assert.True(Te, math.IsInf(ev[1].Scalars["grad_norm"], 1))
		assert.False(Te, ev[1].Time.Before(ev[0].Time))
	}
}

type failSink struct{ closed bool }

var errSink = errors.New("sink failed")

func (F *failSink) Record(int, map[string]float64) error { return errSink }
func (F *failSink) Close() error                         { F.closed = true; return nil }

func TestMulti(Te *testing.T) {
	path := filepath.Join(Te.TempDir(), "events.jsonl")
	fs, err := NewFileSink(path)
	require.NoError(Te, err)
	bad := &failSink{}
	M := Multi(bad, fs, Discard)
	assert.ErrorIs(Te, M.Record(0, map[string]float64{"loss": 1}), errSink)
	require.NoError(Te, M.Close())
	assert.True(Te, bad.closed)
	ev, err := ReadEvents(path)
	require.NoError(Te, err)
	assert.Len(Te, ev, 1, "the file sink gets the record even though another sink failed")
}

func TestPromSink(Te *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSink(reg, "a")
	require.NoError(Te, err)
	b, err := NewPromSink(reg, "b")
	require.NoError(Te, err)
	require.NoError(Te, a.Record(0, map[string]float64{"loss": 3}))
	require.NoError(Te, a.Record(1, map[string]float64{"loss": 2}))
	require.NoError(Te, b.Record(0, map[string]float64{"loss": 7}))
	assert.Equal(Te, 2.0, testutil.ToFloat64(a.scalars.WithLabelValues("a", "loss")))
	assert.Equal(Te, 7.0, testutil.ToFloat64(b.scalars.WithLabelValues("b", "loss")))
	assert.Equal(Te, 2.0, testutil.ToFloat64(a.steps.WithLabelValues("a")))
	assert.Equal(Te, 1.0, testutil.ToFloat64(a.steps.WithLabelValues("b")), "both sinks share the collectors")
	require.NoError(Te, a.Close())
}

func TestRunDir(Te *testing.T) {
	t := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	assert.Equal(Te, filepath.Join("runs", "sample", "2024.03.05-14:07:09"), RunDir("runs", "sample", t))
}

func TestPlotChain(Te *testing.T) {
	n := 50
	states := make([][]float64, n)
	logprob := make([]float64, n)
	for i := range states {
		x := math.Sin(float64(i))
		states[i] = []float64{x, 2 * math.Cos(float64(i))}
		logprob[i] = -x * x
	}
	name := filepath.Join(Te.TempDir(), "chain.png")
	require.NoError(Te, PlotChain(name, states, logprob))
	info, err := os.Stat(name)
	require.NoError(Te, err)
	assert.Greater(Te, info.Size(), int64(0))

	assert.Error(Te, PlotChain(name, states, logprob[1:]))
	assert.Error(Te, PlotChain(name, nil, nil))
}
