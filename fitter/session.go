/*
 * session.go, part of semifit.
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
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rmera/semifit"
	"github.com/rmera/semifit/dataset"
	"github.com/rmera/semifit/eval"
	"github.com/rmera/semifit/internal/config"
	"github.com/rmera/semifit/mndo"
	"github.com/rmera/semifit/objective"
)

//InputName is the name of the molecule input file shared by the workers.
const InputName = "_tmp_molecules"

//part is the evaluation machinery for one set of molecules: its input file, its pool and its
//objective.
type part struct {
	dir  string
	pool *eval.Pool
	obj  *objective.Objective
}

func (P *part) close() error {
	return errors.Join(P.pool.Close(), os.RemoveAll(P.dir))
}

//Session holds everything needed to fit parameters against one dataset.
//A Session is not safe for concurrent use.
type Session struct {
	cfg   *config.Config
	log   *zap.Logger
	data  *dataset.Dataset
	start semifit.ParamSet
	keys  semifit.Keys
	codec *semifit.Codec
	x0    []float64 //raw start vector
	all   *part
}

//NewSession loads the dataset and the start parameters named in cfg, selects the keys to fit,
//writes the molecule input file and starts the worker pool.
func NewSession(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Session, error) {
	errid := "fitter/NewSession"
	if log == nil {
		log = zap.NewNop()
	}
	S := &Session{cfg: cfg, log: log}
	q := dataset.Query{
		DataFile: cfg.Data.File,
		XYZDir:   cfg.Data.XYZDir,
		Offset:   cfg.Data.Offset,
		Size:     cfg.Data.Size,
		Column:   cfg.Data.ReferenceColumn,
	}
	var err error
	if cfg.Data.CacheDir != "" {
		var hit bool
		S.data, hit, err = dataset.NewCache(cfg.Data.CacheDir, log).Load(q)
		if err == nil {
			log.Info("dataset loaded", zap.Int("molecules", S.data.Len()), zap.Bool("cached", hit))
		}
	} else {
		S.data, err = dataset.Load(q)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	if S.start, err = semifit.ReadParams(cfg.Parameters.Start); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	ignore, err := cfg.IgnoredProperties()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	if S.keys, err = semifit.SelectKeys(S.start, S.data.Batch.Species(), ignore); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	if len(S.keys) == 0 {
		return nil, fmt.Errorf("%s: no parameters to fit", errid)
	}
	var scales semifit.Scales
	if cfg.Parameters.Scales != "" {
		scales, err = semifit.ReadScales(cfg.Parameters.Scales)
	} else {
		scales, err = semifit.DefaultScales(S.start, S.keys)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	if S.codec, err = semifit.NewCodec(S.keys, scales); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	if S.x0, err = S.codec.Decode(S.start); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	if S.all, err = S.newPart(S.data); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	log.Info("session ready", zap.Int("molecules", S.data.Len()), zap.Strings("keys", S.keys.Strings()), zap.Int("workers", cfg.Workers), zap.String("binary", cfg.Binary))
	return S, nil
}

//newPart writes the input file for D to a new directory and builds a pool and an objective for it.
func (S *Session) newPart(D *dataset.Dataset) (*part, error) {
	dir, err := os.MkdirTemp(S.cfg.Scratch, "semifit-input-")
	if err != nil {
		return nil, err
	}
	input := filepath.Join(dir, InputName)
	if err := mndo.WriteInput(input, D.Batch, S.cfg.Method); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	h := mndo.NewHandle()
	h.SetCommand(S.cfg.Binary)
	h.SetTimeout(S.cfg.Timeout)
	h.SetMolecules(D.Len())
	h.SetLogger(S.log)
	progress := func(done, total int) {
		if done == total {
			S.log.Debug("batch done", zap.Int("size", total))
		}
	}
	pool, err := eval.NewPool(h, S.codec, input, S.cfg.Scratch, S.cfg.Workers, eval.WithLogger(S.log), eval.WithProgress(progress))
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	obj := objective.New(pool, D.Reference)
	obj.Penalty = S.cfg.Penalty
	obj.Step = S.cfg.GradientStep
	obj.Serial = !S.cfg.ParallelGradient
	obj.SetLogger(S.log)
	return &part{dir: dir, pool: pool, obj: obj}, nil
}

//Keys returns the keys being fitted.
func (S *Session) Keys() semifit.Keys { return S.keys }

//Dataset returns the dataset of the session.
func (S *Session) Dataset() *dataset.Dataset { return S.data }

//Start returns a copy of the raw start vector.
func (S *Session) Start() []float64 { return append([]float64(nil), S.x0...) }

//Params returns the complete parameter set for the raw vector x: the start parameters with
//the fitted ones replaced.
func (S *Session) Params(x []float64) (semifit.ParamSet, error) {
	phys, err := S.codec.Physical(x, nil)
	if err != nil {
		return nil, err
	}
	return S.start.Update(S.keys, phys)
}

//Loss returns the loss at the raw vector x, or at the start parameters if x is nil.
func (S *Session) Loss(ctx context.Context, x []float64) (float64, error) {
	if x == nil {
		x = S.x0
	}
	return S.all.obj.Loss(ctx, x)
}

//Evaluations returns the number of parameter vectors evaluated by the oracle so far
//for the whole dataset.
func (S *Session) Evaluations() int64 { return S.all.pool.Completed() }

//Close stops the session and removes its files.
func (S *Session) Close() error {
	if S.all == nil {
		return nil
	}
	err := S.all.close()
	S.all = nil
	return err
}
