/*
 * objective.go, part of semifit.
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
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/rmera/semifit"
)

const (
	//DefaultPenalty is the absolute error assigned to a molecule whose energy could not be computed.
	DefaultPenalty = 700.0
	//DefaultStep is the finite-difference step used for gradients, in raw units.
	DefaultStep = 1e-6
)

//Evaluator evaluates batches of raw parameter vectors. *eval.Pool implements it.
type Evaluator interface {
	EvaluateBatch(ctx context.Context, vecs [][]float64) ([][]semifit.Properties, error)
}

//Objective is the loss of a parameter vector against reference energies: the mean
//absolute error over all molecules, with a penalty for molecules that fail.
type Objective struct {
	ev  Evaluator
	ref []float64
	//Penalty replaces the error of molecules without energy.
	Penalty float64
	//Step is the finite-difference step.
	Step float64
	//Serial makes Gradient evaluate one dimension at a time instead of sending
	//all the displaced vectors as one batch.
	Serial bool
	log    *zap.Logger
}

//New returns an objective that compares the energies computed by ev with reference,
//molecule by molecule.
func New(ev Evaluator, reference []float64) *Objective {
	O := &Objective{ev: ev, ref: make([]float64, len(reference))}
	copy(O.ref, reference)
	O.SetDefaults()
	return O
}

//SetDefaults sets the penalty, step and gradient mode to their default values.
func (O *Objective) SetDefaults() {
	O.Penalty = DefaultPenalty
	O.Step = DefaultStep
	O.Serial = false
	O.log = zap.NewNop()
}

//SetLogger sets the logger.
func (O *Objective) SetLogger(l *zap.Logger) {
	if l != nil {
		O.log = l
	}
}

//Reference returns the reference energies. The slice should not be modified.
func (O *Objective) Reference() []float64 { return O.ref }

//MeanAbsError returns the mean of |ref[i]-calc[i]|, where NaN differences count as penalty.
//The result is never NaN. It panics if the slices have different lengths, and returns 0 for
//empty slices.
func MeanAbsError(ref, calc []float64, penalty float64) float64 {
	if len(ref) != len(calc) {
		panic("objective: MeanAbsError: length mismatch")
	}
	if len(ref) == 0 {
		return 0
	}
	diff := make([]float64, len(ref))
	floats.SubTo(diff, ref, calc)
	for i, v := range diff {
		if math.IsNaN(v) {
			diff[i] = math.Abs(penalty)
			continue
		}
		diff[i] = math.Abs(v)
	}
	return floats.Sum(diff) / float64(len(diff))
}

//loss computes the loss for the properties of one parameter vector.
func (O *Objective) loss(props []semifit.Properties) (float64, error) {
	if len(props) != len(O.ref) {
		return math.NaN(), fmt.Errorf("objective/Objective: oracle returned %d molecules, but there are %d reference energies", len(props), len(O.ref))
	}
	return MeanAbsError(O.ref, semifit.Energies(props), O.Penalty), nil
}

//Loss returns the loss for the raw parameter vector x.
func (O *Objective) Loss(ctx context.Context, x []float64) (float64, error) {
	res, err := O.ev.EvaluateBatch(ctx, [][]float64{x})
	if err != nil {
		return math.NaN(), fmt.Errorf("objective/Loss: %w", err)
	}
	l, err := O.loss(res[0])
	if err != nil {
		return math.NaN(), err
	}
	O.log.Debug("loss", zap.Float64("loss", l))
	return l, nil
}

//displaced returns the 2*len(x) vectors x+h*e_i, x-h*e_i, in that order for each i.
//x is not modified.
func displaced(x []float64, h float64) [][]float64 {
	ret := make([][]float64, 0, 2*len(x))
	for i := range x {
		plus := make([]float64, len(x))
		minus := make([]float64, len(x))
		copy(plus, x)
		copy(minus, x)
		plus[i] += h
		minus[i] -= h
		ret = append(ret, plus, minus)
	}
	return ret
}

//Gradient puts the central finite-difference gradient of the loss at x in dst, which is
//allocated if nil, and returns it.
func (O *Objective) Gradient(ctx context.Context, x, dst []float64) ([]float64, error) {
	_, g, err := O.gradient(ctx, x, dst, false)
	return g, err
}

//LossGradient returns the loss at x and puts its gradient in dst, as Gradient does.
//Unless the objective is serial, the loss is evaluated in the same batch as the gradient.
func (O *Objective) LossGradient(ctx context.Context, x, dst []float64) (float64, []float64, error) {
	return O.gradient(ctx, x, dst, true)
}

func (O *Objective) gradient(ctx context.Context, x, dst []float64, withLoss bool) (float64, []float64, error) {
	errid := "objective/Gradient"
	if dst == nil {
		dst = make([]float64, len(x))
	}
	if len(dst) != len(x) {
		return math.NaN(), nil, fmt.Errorf("%s: destination of length %d for a vector of length %d", errid, len(dst), len(x))
	}
	h := O.Step
	if h <= 0 {
		return math.NaN(), nil, fmt.Errorf("%s: non-positive step %g", errid, h)
	}
	vecs := displaced(x, h)
	loss := math.NaN()
	if O.Serial {
		var err error
		if withLoss {
			if loss, err = O.Loss(ctx, x); err != nil {
				return math.NaN(), nil, err
			}
		}
		for i := range x {
			plus, err := O.Loss(ctx, vecs[2*i])
			if err != nil {
				return math.NaN(), nil, fmt.Errorf("%s: dimension %d: %w", errid, i, err)
			}
			minus, err := O.Loss(ctx, vecs[2*i+1])
			if err != nil {
				return math.NaN(), nil, fmt.Errorf("%s: dimension %d: %w", errid, i, err)
			}
			dst[i] = (plus - minus) / (2 * h)
		}
		return loss, dst, nil
	}
	if withLoss {
		vecs = append(vecs, x)
	}
	res, err := O.ev.EvaluateBatch(ctx, vecs)
	if err != nil {
		return math.NaN(), nil, fmt.Errorf("%s: %w", errid, err)
	}
	losses := make([]float64, len(res))
	for i, v := range res {
		if losses[i], err = O.loss(v); err != nil {
			return math.NaN(), nil, err
		}
	}
	for i := range x {
		dst[i] = (losses[2*i] - losses[2*i+1]) / (2 * h)
	}
	if withLoss {
		loss = losses[len(losses)-1]
	}
	O.log.Debug("gradient", zap.Int("dims", len(x)), zap.Float64("norm", floats.Norm(dst, 2)))
	return loss, dst, nil
}
