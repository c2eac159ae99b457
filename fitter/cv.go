/*
 * cv.go, part of semifit.
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
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rmera/semifit/optim"
)

//FoldResult is the outcome of fitting on the training molecules of one fold.
type FoldResult struct {
	Fold           int
	TrainSize      int
	TestSize       int
	StartTestLoss  float64 //held-out loss with the start parameters
	TrainLoss      float64
	TestLoss       float64 //held-out loss with the fitted parameters
	X              []float64
	OptimizerSteps int
}

//CrossValidate splits the dataset in folds, fits the parameters on the training part of each
//and computes the loss of the fitted parameters on the held-out part. The results of each fold
//are also sent to sink, if not nil, with the fold number as step.
func (S *Session) CrossValidate(ctx context.Context, sink optim.Sink) (ret []FoldResult, err error) {
	errid := "fitter/CrossValidate"
	folds, err := optim.KFold(S.data.Len(), S.cfg.CV.Folds, S.cfg.CV.Seed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	ms, err := S.minimizeSettings(nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	for i, f := range folds {
		r, err := S.fold(ctx, i, f, ms)
		if err != nil {
			return ret, fmt.Errorf("%s: fold %d: %w", errid, i, err)
		}
		S.log.Info("fold done", zap.Int("fold", i), zap.Float64("train_loss", r.TrainLoss), zap.Float64("test_loss", r.TestLoss), zap.Float64("start_test_loss", r.StartTestLoss))
		if sink != nil {
			if err := sink.Record(i, map[string]float64{"train_loss": r.TrainLoss, "test_loss": r.TestLoss, "start_test_loss": r.StartTestLoss}); err != nil {
				return ret, fmt.Errorf("%s: %w", errid, err)
			}
		}
		ret = append(ret, *r)
	}
	return ret, nil
}

func (S *Session) fold(ctx context.Context, i int, f optim.Fold, ms *optim.MinimizeSettings) (r *FoldResult, err error) {
	train, err := S.newPart(S.data.Subset(f.Train))
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, train.close()) }()
	test, err := S.newPart(S.data.Subset(f.Test))
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, test.close()) }()

	r = &FoldResult{Fold: i, TrainSize: len(f.Train), TestSize: len(f.Test)}
	if r.StartTestLoss, err = test.obj.Loss(ctx, S.x0); err != nil {
		return nil, err
	}
	res, err := optim.Minimize(ctx, train.obj, S.x0, ms)
	if err != nil {
		return nil, err
	}
	r.X = res.X
	r.OptimizerSteps = res.Iterations
	if r.TrainLoss, err = train.obj.Loss(ctx, res.X); err != nil {
		return nil, err
	}
	if r.TestLoss, err = test.obj.Loss(ctx, res.X); err != nil {
		return nil, err
	}
	return r, nil
}
