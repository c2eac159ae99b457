/*
 * plot.go, part of semifit.
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
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const histBins = 20

//PlotChain saves to filename a PNG figure with four panels: the histogram of each component of
//the chain, the trace of each component, the histogram of the log-probability and its trace.
//states and logprob are positional.
func PlotChain(filename string, states [][]float64, logprob []float64) error {
	errid := "diag/PlotChain"
	if len(states) == 0 || len(states) != len(logprob) {
		return fmt.Errorf("%s: %d states and %d log-probabilities", errid, len(states), len(logprob))
	}
	dims := len(states[0])
	cols := make([]plotter.Values, dims)
	for i := range cols {
		cols[i] = make(plotter.Values, len(states))
		for j, s := range states {
			if len(s) != dims {
				return fmt.Errorf("%s: state %d has %d components, expected %d", errid, j, len(s), dims)
			}
			cols[i][j] = s[i]
		}
	}
	chainHist := newPlot("chain histogram", "value", "count")
	chainTrace := newPlot("chain plot", "step", "value")
	for i, c := range cols {
		h, err := plotter.NewHist(c, histBins)
		if err != nil {
			return fmt.Errorf("%s: %w", errid, err)
		}
		h.FillColor = plotutil.Color(i)
		chainHist.Add(h)
		l, err := plotter.NewLine(trace(c))
		if err != nil {
			return fmt.Errorf("%s: %w", errid, err)
		}
		l.LineStyle.Color = plotutil.Color(i)
		chainTrace.Add(l)
	}
	lpHist := newPlot("log-probability histogram", "log-probability", "count")
	h, err := plotter.NewHist(plotter.Values(logprob), histBins)
	if err != nil {
		return fmt.Errorf("%s: %w", errid, err)
	}
	lpHist.Add(h)
	lpTrace := newPlot("log-probability plot", "step", "log-probability")
	l, err := plotter.NewLine(trace(logprob))
	if err != nil {
		return fmt.Errorf("%s: %w", errid, err)
	}
	lpTrace.Add(l)

	plots := [][]*plot.Plot{{chainHist, chainTrace}, {lpHist, lpTrace}}
	img := vgimg.New(10*vg.Inch, 8*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      2,
		PadX:      4 * vg.Millimeter,
		PadY:      4 * vg.Millimeter,
		PadTop:    2 * vg.Millimeter,
		PadBottom: 2 * vg.Millimeter,
		PadLeft:   2 * vg.Millimeter,
		PadRight:  2 * vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		for i := range plots[j] {
			plots[j][i].Draw(canvases[j][i])
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("%s: %w", errid, err)
	}
	png := vgimg.PngCanvas{Canvas: img}
	_, err = png.WriteTo(f)
	return errors.Join(err, f.Close())
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Add(plotter.NewGrid())
	return p
}

//trace returns the points (i, v[i]).
func trace(v []float64) plotter.XYs {
	ret := make(plotter.XYs, len(v))
	for i, y := range v {
		ret[i].X = float64(i)
		ret[i].Y = y
	}
	return ret
}
