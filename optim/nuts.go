/*
 * nuts.go, part of semifit.
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
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

//maxDeltaEnergy is the error in the Hamiltonian above which a trajectory is considered divergent.
const maxDeltaEnergy = 1000.0

//Dual averaging constants, as recommended by Hoffman and Gelman.
const (
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75
)

//SamplerSettings controls NUTS.
type SamplerSettings struct {
	Results      int     //number of states returned
	Burnin       int     //number of states drawn and discarded before the first returned one
	Adaptation   int     //number of initial steps (counting burn-in) during which the step size is adapted
	StepSize     float64 //initial step size
	TargetAccept float64 //acceptance probability the adaptation aims for
	MaxDepth     int     //maximum tree depth, so at most 2^MaxDepth-1 leapfrog steps per state
	Seed         uint64
	Sink         Sink
	Log          *zap.Logger
}

//DefaultSamplerSettings returns the default settings: 100 results, no burn-in, adaptation
//during the first 100 steps, an initial step size of 1e-3, a target acceptance of 0.75 and a
//maximum tree depth of 10.
func DefaultSamplerSettings() *SamplerSettings {
	return &SamplerSettings{
		Results:      100,
		Adaptation:   100,
		StepSize:     1e-3,
		TargetAccept: 0.75,
		MaxDepth:     10,
		Seed:         42,
		Log:          zap.NewNop(),
	}
}

//StepStats contains the diagnostics of one sampler step.
type StepStats struct {
	LogProb     float64 //log-probability of the new state
	Energy      float64 //Hamiltonian at the start of the trajectory
	AcceptRatio float64 //mean acceptance probability over the trajectory
	Leapfrogs   int
	StepSize    float64
	Divergent   bool
}

//Scalars returns the statistics in a form suitable for a diagnostics sink.
func (S StepStats) Scalars() map[string]float64 {
	div := 0.0
	if S.Divergent {
		div = 1
	}
	return map[string]float64{
		"log_prob":     S.LogProb,
		"energy":       S.Energy,
		"accept_ratio": S.AcceptRatio,
		"leapfrogs":    float64(S.Leapfrogs),
		"step_size":    S.StepSize,
		"divergent":    div,
	}
}

//Chain is the result of a sampling run. States, LogProb and Stats are positional.
type Chain struct {
	States   [][]float64
	LogProb  []float64
	Stats    []StepStats
	StepSize float64 //step size after adaptation
}

//Len returns the number of states in the chain.
func (C *Chain) Len() int { return len(C.States) }

//Column returns the values of the i-th component over the chain.
func (C *Chain) Column(i int) []float64 {
	ret := make([]float64, len(C.States))
	for j, v := range C.States {
		ret[j] = v[i]
	}
	return ret
}

//MeanStdDev returns the mean and the standard deviation of each component over the chain.
func (C *Chain) MeanStdDev() (mean, std []float64) {
	if len(C.States) == 0 {
		return nil, nil
	}
	n := len(C.States[0])
	mean = make([]float64, n)
	std = make([]float64, n)
	for i := 0; i < n; i++ {
		mean[i], std[i] = stat.MeanStdDev(C.Column(i), nil)
	}
	return mean, std
}

//Divergences returns the number of divergent steps in the chain.
func (C *Chain) Divergences() int {
	n := 0
	for _, v := range C.Stats {
		if v.Divergent {
			n++
		}
	}
	return n
}

//point is a position in phase space. Points are never modified once built.
type point struct {
	x, r, g []float64 //position, momentum, gradient of the log-probability
	logp    float64
}

//joint is the log of the joint density of position and momentum, i.e. minus the Hamiltonian.
func (p point) joint() float64 {
	return p.logp - 0.5*floats.Dot(p.r, p.r)
}

//tree is the result of building a NUTS subtree.
type tree struct {
	minus, plus point
	prop        point
	n           int  //number of states in the slice
	ok          bool //false if the subtree made a U-turn or diverged
	alpha       float64
	nalpha      int
	divergent   bool
}

type sampler struct {
	ctx       context.Context
	f         Function
	rng       *rand.Rand
	maxDepth  int
	leapfrogs int
}

//logProb returns the log-probability at x, which is minus the loss, and its gradient in g.
func (S *sampler) logProb(x, g []float64) (float64, error) {
	l, _, err := lossGradient(S.ctx, S.f, x, g)
	if err != nil {
		return math.NaN(), err
	}
	floats.Scale(-1, g)
	return -l, nil
}

func (S *sampler) leapfrog(p point, eps float64) (point, error) {
	n := len(p.x)
	q := point{x: make([]float64, n), r: make([]float64, n), g: make([]float64, n)}
	copy(q.r, p.r)
	floats.AddScaled(q.r, eps/2, p.g)
	copy(q.x, p.x)
	floats.AddScaled(q.x, eps, q.r)
	var err error
	q.logp, err = S.logProb(q.x, q.g)
	if err != nil {
		return q, err
	}
	floats.AddScaled(q.r, eps/2, q.g)
	S.leapfrogs++
	return q, nil
}

func noUTurn(minus, plus point) bool {
	dx := make([]float64, len(minus.x))
	floats.SubTo(dx, plus.x, minus.x)
	return floats.Dot(dx, minus.r) >= 0 && floats.Dot(dx, plus.r) >= 0
}

//build builds a subtree of the given depth from p, in direction v (1 or -1).
func (S *sampler) build(p point, logu float64, v, depth int, eps, joint0 float64) (*tree, error) {
	if depth == 0 {
		q, err := S.leapfrog(p, float64(v)*eps)
		if err != nil {
			return nil, err
		}
		j := q.joint()
		t := &tree{minus: q, plus: q, prop: q, nalpha: 1}
		if logu <= j {
			t.n = 1
		}
		t.ok = logu < j+maxDeltaEnergy
		t.divergent = !t.ok
		t.alpha = math.Min(1, math.Exp(j-joint0))
		if math.IsNaN(t.alpha) {
			t.alpha = 0
		}
		return t, nil
	}
	t, err := S.build(p, logu, v, depth-1, eps, joint0)
	if err != nil || !t.ok {
		return t, err
	}
	var t2 *tree
	if v == -1 {
		t2, err = S.build(t.minus, logu, v, depth-1, eps, joint0)
		if err != nil {
			return nil, err
		}
		t.minus = t2.minus
	} else {
		t2, err = S.build(t.plus, logu, v, depth-1, eps, joint0)
		if err != nil {
			return nil, err
		}
		t.plus = t2.plus
	}
	if t2.n > 0 && S.rng.Float64() < float64(t2.n)/float64(t.n+t2.n) {
		t.prop = t2.prop
	}
	t.alpha += t2.alpha
	t.nalpha += t2.nalpha
	t.divergent = t.divergent || t2.divergent
	t.ok = t2.ok && noUTurn(t.minus, t.plus)
	t.n += t2.n
	return t, nil
}

//step draws one new state from cur with step size eps.
func (S *sampler) step(cur point, eps float64, normal distuv.Normal) (point, StepStats, error) {
	S.leapfrogs = 0
	cur.r = make([]float64, len(cur.x))
	for i := range cur.r {
		cur.r[i] = normal.Rand()
	}
	joint0 := cur.joint()
	logu := joint0 + math.Log(S.rng.Float64())
	minus, plus, prop := cur, cur, cur
	n := 1
	ok := true
	alpha, nalpha := 0.0, 0
	divergent := false
	for depth := 0; ok && depth < S.maxDepth; depth++ {
		v := 1
		if S.rng.Float64() < 0.5 {
			v = -1
		}
		var t *tree
		var err error
		if v == -1 {
			t, err = S.build(minus, logu, v, depth, eps, joint0)
			if err != nil {
				return cur, StepStats{}, err
			}
			minus = t.minus
		} else {
			t, err = S.build(plus, logu, v, depth, eps, joint0)
			if err != nil {
				return cur, StepStats{}, err
			}
			plus = t.plus
		}
		if t.ok && t.n > 0 && S.rng.Float64() < float64(t.n)/float64(n) {
			prop = t.prop
		}
		n += t.n
		alpha += t.alpha
		nalpha += t.nalpha
		divergent = divergent || t.divergent
		ok = t.ok && noUTurn(minus, plus)
	}
	accept := 0.0
	if nalpha > 0 {
		accept = alpha / float64(nalpha)
	}
	st := StepStats{
		LogProb:     prop.logp,
		Energy:      -joint0,
		AcceptRatio: accept,
		Leapfrogs:   S.leapfrogs,
		StepSize:    eps,
		Divergent:   divergent,
	}
	prop.r = nil
	return prop, st, nil
}

//dualAveraging adapts the step size so the mean acceptance approaches target.
type dualAveraging struct {
	target, mu float64
	hbar       float64
	logEpsBar  float64
	m          float64
	lastLogEps float64
}

func newDualAveraging(eps0, target float64) *dualAveraging {
	return &dualAveraging{target: target, mu: math.Log(10 * eps0), lastLogEps: math.Log(eps0)}
}

//update takes the acceptance of the last step and returns the step size for the next one.
func (D *dualAveraging) update(accept float64) float64 {
	D.m++
	eta := 1 / (D.m + daT0)
	D.hbar = (1-eta)*D.hbar + eta*(D.target-accept)
	logEps := D.mu - math.Sqrt(D.m)/daGamma*D.hbar
	w := math.Pow(D.m, -daKappa)
	D.logEpsBar = w*logEps + (1-w)*D.logEpsBar
	D.lastLogEps = logEps
	return math.Exp(logEps)
}

//final returns the step size to use once adaptation is over.
func (D *dualAveraging) final() float64 {
	if D.m == 0 {
		return math.Exp(D.lastLogEps)
	}
	return math.Exp(D.logEpsBar)
}

//NUTS samples from the density proportional to exp(-loss) with the No-U-Turn sampler, starting
//at x0. The step size is adapted by dual averaging during the first settings.Adaptation steps.
//Divergent trajectories are recorded in the statistics, but don't stop the sampler.
//An error from f stops the sampler and is returned. A nil settings means the defaults.
func NUTS(ctx context.Context, f Function, x0 []float64, settings *SamplerSettings) (*Chain, error) {
	errid := "optim/NUTS"
	if settings == nil {
		settings = DefaultSamplerSettings()
	}
	log := settings.Log
	if log == nil {
		log = zap.NewNop()
	}
	if len(x0) == 0 {
		return nil, fmt.Errorf("%s: empty start vector", errid)
	}
	if settings.Results < 1 || settings.StepSize <= 0 || settings.MaxDepth < 1 || settings.Burnin < 0 {
		return nil, fmt.Errorf("%s: invalid settings: %d results, %d burn-in steps, step size %g, maximum depth %d", errid, settings.Results, settings.Burnin, settings.StepSize, settings.MaxDepth)
	}
	if settings.TargetAccept <= 0 || settings.TargetAccept >= 1 {
		return nil, fmt.Errorf("%s: target acceptance %g not in (0,1)", errid, settings.TargetAccept)
	}
	src := rand.NewPCG(settings.Seed, settings.Seed^0x9e3779b97f4a7c15)
	S := &sampler{ctx: ctx, f: f, rng: rand.New(src), maxDepth: settings.MaxDepth}
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	cur := point{x: append([]float64(nil), x0...), g: make([]float64, len(x0))}
	var err error
	cur.logp, err = S.logProb(cur.x, cur.g)
	if err != nil {
		return nil, fmt.Errorf("%s: at the start point: %w", errid, err)
	}
	eps := settings.StepSize
	da := newDualAveraging(eps, settings.TargetAccept)
	total := settings.Burnin + settings.Results
	C := &Chain{
		States:  make([][]float64, 0, settings.Results),
		LogProb: make([]float64, 0, settings.Results),
		Stats:   make([]StepStats, 0, settings.Results),
	}
	for s := 0; s < total; s++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", errid, err)
		}
		var st StepStats
		cur, st, err = S.step(cur, eps, normal)
		if err != nil {
			return nil, fmt.Errorf("%s: step %d: %w", errid, s, err)
		}
		if s < settings.Adaptation {
			eps = da.update(st.AcceptRatio)
			if s == settings.Adaptation-1 {
				eps = da.final()
			}
		}
		if st.Divergent {
			log.Warn("divergent trajectory", zap.Int("step", s), zap.Float64("step_size", st.StepSize))
		}
		log.Debug("sample", zap.Int("step", s), zap.Float64("log_prob", st.LogProb), zap.Float64("accept_ratio", st.AcceptRatio), zap.Int("leapfrogs", st.Leapfrogs), zap.Float64("step_size", st.StepSize))
		if settings.Sink != nil {
			if err := settings.Sink.Record(s, st.Scalars()); err != nil {
				return nil, fmt.Errorf("%s: %w", errid, err)
			}
		}
		if s < settings.Burnin {
			continue
		}
		C.States = append(C.States, append([]float64(nil), cur.x...))
		C.LogProb = append(C.LogProb, cur.logp)
		C.Stats = append(C.Stats, st)
	}
	C.StepSize = eps
	log.Info("sampling done", zap.Int("states", C.Len()), zap.Int("divergences", C.Divergences()), zap.Float64("step_size", eps))
	return C, nil
}
