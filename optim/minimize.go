/*
 * minimize.go, part of semifit.
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

package optim

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

//MinimizeSettings controls Minimize.
type MinimizeSettings struct {
	MaxIter           int           //maximum number of major iterations
	GradientThreshold float64       //the search stops when the gradient norm is below this. 0 means the gonum default
	Store             int           //number of past updates kept by L-BFGS. 0 means the gonum default
	Timeout           time.Duration //0 means no limit
	//Lower and Upper are the box constraints. Either can be nil (no bound), but if given
	//they must have the length of the vector. Use ±Inf for unbounded components.
	Lower, Upper []float64
	Sink         Sink
	Log          *zap.Logger
}

//DefaultMinimizeSettings returns settings with 1000 iterations at most and no bounds.
func DefaultMinimizeSettings() *MinimizeSettings {
	return &MinimizeSettings{MaxIter: 1000, Log: zap.NewNop()}
}

//MinimizeResult is the outcome of a minimization.
type MinimizeResult struct {
	X           []float64
	Loss        float64
	Gradient    []float64
	Status      optimize.Status
	Iterations  int
	Evaluations int
	Runtime     time.Duration
	//Message is not empty when the search stopped for a reason other than convergence or
	//a limit, for instance a line search that could not make progress.
	Message string
}

//projected wraps a Function so that it is evaluated at the projection of its argument on the
//box, and reports a projected gradient, which is zero along components that would leave the box.
//Errors can't go through gonum's Problem, so the first one is stored and reported by status.
type projected struct {
	ctx          context.Context
	f            Function
	lower, upper []float64
	err          error
	xc           []float64 //scratch for the clamped point
	cacheX       []float64
	cacheG       []float64
	cached       bool
}

func (P *projected) clamp(dst, x []float64) []float64 {
	copy(dst, x)
	if P.lower != nil {
		for i, v := range P.lower {
			dst[i] = math.Max(dst[i], v)
		}
	}
	if P.upper != nil {
		for i, v := range P.upper {
			dst[i] = math.Min(dst[i], v)
		}
	}
	return dst
}

//project zeroes the components of g whose descent direction leaves the box at xc.
func (P *projected) project(g, xc []float64) {
	for i := range g {
		if P.lower != nil && xc[i] <= P.lower[i] && g[i] > 0 {
			g[i] = 0
		}
		if P.upper != nil && xc[i] >= P.upper[i] && g[i] < 0 {
			g[i] = 0
		}
	}
}

func (P *projected) loss(x []float64) float64 {
	if P.err != nil {
		return math.NaN()
	}
	P.clamp(P.xc, x)
	P.cached = false
	if _, ok := P.f.(LossGradienter); ok {
		l, _, err := lossGradient(P.ctx, P.f, P.xc, P.cacheG)
		if err != nil {
			P.err = err
			return math.NaN()
		}
		copy(P.cacheX, x)
		P.cached = true
		return l
	}
	l, err := P.f.Loss(P.ctx, P.xc)
	if err != nil {
		P.err = err
		return math.NaN()
	}
	return l
}

func (P *projected) grad(grad, x []float64) {
	if P.err != nil {
		for i := range grad {
			grad[i] = math.NaN()
		}
		return
	}
	P.clamp(P.xc, x)
	if P.cached && floats.Equal(x, P.cacheX) {
		copy(grad, P.cacheG)
	} else if _, err := P.f.Gradient(P.ctx, P.xc, grad); err != nil {
		P.err = err
		for i := range grad {
			grad[i] = math.NaN()
		}
		return
	}
	P.project(grad, P.xc)
}

func (P *projected) status() (optimize.Status, error) {
	if P.err != nil {
		return optimize.Failure, P.err
	}
	if err := P.ctx.Err(); err != nil {
		return optimize.Failure, err
	}
	return optimize.NotTerminated, nil
}

//recorder sends the loss and gradient norm of every major iteration to the log and the sink.
type recorder struct {
	sink Sink
	log  *zap.Logger
}

func (R *recorder) Init() error { return nil }

func (R *recorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op != optimize.MajorIteration {
		return nil
	}
	gnorm := math.NaN()
	if loc.Gradient != nil {
		gnorm = floats.Norm(loc.Gradient, 2)
	}
	R.log.Info("iteration", zap.Int("iter", stats.MajorIterations), zap.Float64("loss", loc.F), zap.Float64("grad_norm", gnorm))
	if R.sink == nil {
		return nil
	}
	return R.sink.Record(stats.MajorIterations, map[string]float64{"loss": loc.F, "grad_norm": gnorm})
}

func checkBounds(n int, lower, upper []float64) error {
	if lower != nil && len(lower) != n {
		return fmt.Errorf("%d lower bounds for %d dimensions", len(lower), n)
	}
	if upper != nil && len(upper) != n {
		return fmt.Errorf("%d upper bounds for %d dimensions", len(upper), n)
	}
	if lower != nil && upper != nil {
		for i := range lower {
			if lower[i] > upper[i] {
				return fmt.Errorf("lower bound %g above upper bound %g in dimension %d", lower[i], upper[i], i)
			}
		}
	}
	return nil
}

//Minimize searches for a minimum of f with L-BFGS, starting from x0, within the box given
//in settings, if any. Box constraints are handled by projection: f is always evaluated inside
//the box and the returned point is inside the box. A nil settings means the defaults.
//An error from f stops the search and is returned.
func Minimize(ctx context.Context, f Function, x0 []float64, settings *MinimizeSettings) (*MinimizeResult, error) {
	errid := "optim/Minimize"
	if settings == nil {
		settings = DefaultMinimizeSettings()
	}
	log := settings.Log
	if log == nil {
		log = zap.NewNop()
	}
	n := len(x0)
	if n == 0 {
		return nil, fmt.Errorf("%s: empty start vector", errid)
	}
	if err := checkBounds(n, settings.Lower, settings.Upper); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	P := &projected{
		ctx:    ctx,
		f:      f,
		lower:  settings.Lower,
		upper:  settings.Upper,
		xc:     make([]float64, n),
		cacheX: make([]float64, n),
		cacheG: make([]float64, n),
	}
	problem := optimize.Problem{
		Func:   P.loss,
		Grad:   P.grad,
		Status: P.status,
	}
	gs := &optimize.Settings{
		MajorIterations:   settings.MaxIter,
		GradientThreshold: settings.GradientThreshold,
		Runtime:           settings.Timeout,
		Recorder:          &recorder{sink: settings.Sink, log: log},
	}
	start := P.clamp(make([]float64, n), x0)
	res, err := optimize.Minimize(problem, start, gs, &optimize.LBFGS{Store: settings.Store})
	if P.err != nil {
		return nil, fmt.Errorf("%s: %w", errid, P.err)
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, fmt.Errorf("%s: %w", errid, cerr)
	}
	if res == nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	ret := &MinimizeResult{
		X:           P.clamp(make([]float64, n), res.X),
		Loss:        res.F,
		Gradient:    append([]float64(nil), res.Gradient...),
		Status:      res.Status,
		Iterations:  res.MajorIterations,
		Evaluations: res.FuncEvaluations,
		Runtime:     res.Runtime,
	}
	if err != nil {
		//the best point found so far is still a useful result
		ret.Message = err.Error()
		log.Warn("minimization stopped early", zap.Error(err))
	}
	log.Info("minimization done", zap.Stringer("status", res.Status), zap.Float64("loss", res.F), zap.Int("iterations", res.MajorIterations), zap.Int("evaluations", res.FuncEvaluations))
	return ret, nil
}
