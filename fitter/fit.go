/*
 * fit.go, part of semifit.
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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rmera/semifit"
	"github.com/rmera/semifit/optim"
)

//FitResult is the outcome of a minimization.
type FitResult struct {
	StartLoss float64
	Loss      float64
	X         []float64 //raw fitted vector
	Params    semifit.ParamSet
	Optimizer *optim.MinimizeResult
}

func (S *Session) minimizeSettings(sink optim.Sink) (*optim.MinimizeSettings, error) {
	ms := optim.DefaultMinimizeSettings()
	ms.MaxIter = S.cfg.Minimize.MaxIter
	ms.Sink = sink
	ms.Log = S.log
	n := len(S.keys)
	if l := S.cfg.Minimize.Lower; l != nil {
		if len(l) != n {
			return nil, fmt.Errorf("%d lower bounds for %d parameters", len(l), n)
		}
		ms.Lower = l
	}
	if u := S.cfg.Minimize.Upper; u != nil {
		if len(u) != n {
			return nil, fmt.Errorf("%d upper bounds for %d parameters", len(u), n)
		}
		ms.Upper = u
	}
	return ms, nil
}

//Minimize fits the parameters with L-BFGS, starting at the start parameters, and writes the
//fitted set to the output file in the configuration, if one is given. Bounds in the
//configuration are in raw units. sink can be nil.
func (S *Session) Minimize(ctx context.Context, sink optim.Sink) (*FitResult, error) {
	errid := "fitter/Minimize"
	ms, err := S.minimizeSettings(sink)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	startLoss, err := S.Loss(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	S.log.Info("start loss", zap.Float64("loss", startLoss))
	res, err := optim.Minimize(ctx, S.all.obj, S.x0, ms)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	loss, err := S.Loss(ctx, res.X)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	params, err := S.Params(res.X)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	if out := S.cfg.Parameters.Output; out != "" {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w", errid, err)
		}
		if err := semifit.WriteParams(out, params); err != nil {
			return nil, fmt.Errorf("%s: %w", errid, err)
		}
		S.log.Info("parameters written", zap.String("file", out))
	}
	S.log.Info("fit done", zap.Float64("start_loss", startLoss), zap.Float64("loss", loss), zap.Int("iterations", res.Iterations), zap.Int64("oracle_runs", S.Evaluations()))
	return &FitResult{StartLoss: startLoss, Loss: loss, X: res.X, Params: params, Optimizer: res}, nil
}

//SampleResult is the outcome of sampling.
type SampleResult struct {
	Chain *optim.Chain
	//Physical contains the states of the chain in physical units.
	Physical [][]float64
}

//ChainFile is the form in which chains are written.
type ChainFile struct {
	Keys    []string    `json:"keys"`
	States  [][]float64 `json:"states"`
	LogProb []float64   `json:"log_prob"`
}

//Sample draws parameter sets from exp(-loss) with NUTS, starting at a random point near
//the start parameters, and writes the chain, in physical units, to the chain file in the
//configuration, if one is given. The gradient uses the sampling gradient step. sink can be nil.
func (S *Session) Sample(ctx context.Context, sink optim.Sink) (*SampleResult, error) {
	errid := "fitter/Sample"
	sc := S.cfg.Sample
	ss := optim.DefaultSamplerSettings()
	ss.Results = sc.Results
	ss.Burnin = sc.Burnin
	ss.Adaptation = sc.Adaptation
	ss.StepSize = sc.StepSize
	ss.TargetAccept = sc.TargetAccept
	ss.MaxDepth = sc.MaxDepth
	ss.Seed = sc.Seed
	ss.Sink = sink
	ss.Log = S.log

	x0 := S.Start()
	for i, v := range optim.TruncatedNormal(len(x0), sc.InitStddev, sc.Seed) {
		x0[i] += v
	}
	step := S.all.obj.Step
	S.all.obj.Step = sc.GradientStep
	defer func() { S.all.obj.Step = step }()
	chain, err := optim.NUTS(ctx, S.all.obj, x0, ss)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	ret := &SampleResult{Chain: chain, Physical: make([][]float64, chain.Len())}
	for i, v := range chain.States {
		if ret.Physical[i], err = S.codec.Physical(v, nil); err != nil {
			return nil, fmt.Errorf("%s: %w", errid, err)
		}
	}
	if out := sc.Output; out != "" {
		cf := ChainFile{Keys: S.keys.Strings(), States: ret.Physical, LogProb: chain.LogProb}
		if err := WriteChain(out, &cf); err != nil {
			return nil, fmt.Errorf("%s: %w", errid, err)
		}
		S.log.Info("chain written", zap.String("file", out))
	}
	return ret, nil
}

//WriteChain writes C as JSON to filename, creating its directory if needed.
func WriteChain(filename string, C *ChainFile) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Join(enc.Encode(C), f.Close())
}

//ReadChain reads a chain written by WriteChain.
func ReadChain(filename string) (*ChainFile, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	C := new(ChainFile)
	if err := json.Unmarshal(b, C); err != nil {
		return nil, fmt.Errorf("fitter/ReadChain: %s: %w", filename, err)
	}
	return C, nil
}
