/*
 * function.go, part of semifit.
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
)

//Function is a scalar function of a vector, with its gradient. Implementations must not
//modify x. *objective.Objective implements Function.
type Function interface {
	Loss(ctx context.Context, x []float64) (float64, error)
	Gradient(ctx context.Context, x, dst []float64) ([]float64, error)
}

//LossGradienter is implemented by functions that compute the loss and the gradient
//together more cheaply than separately.
type LossGradienter interface {
	LossGradient(ctx context.Context, x, dst []float64) (float64, []float64, error)
}

//Sink receives the diagnostics of each step. diag.Sink implementations satisfy it.
type Sink interface {
	Record(step int, scalars map[string]float64) error
}

//lossGradient returns the loss and puts the gradient of f at x in dst.
func lossGradient(ctx context.Context, f Function, x, dst []float64) (float64, []float64, error) {
	if lg, ok := f.(LossGradienter); ok {
		return lg.LossGradient(ctx, x, dst)
	}
	l, err := f.Loss(ctx, x)
	if err != nil {
		return l, nil, err
	}
	g, err := f.Gradient(ctx, x, dst)
	return l, g, err
}
