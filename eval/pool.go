/*
 * pool.go, part of semifit.
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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rmera/semifit"
)

//Oracle computes the properties of every molecule in the input file inputname, which must be
//in the directory wrkdir, using the parameters P. Calculate must only write inside wrkdir.
//*mndo.Handle implements Oracle.
type Oracle interface {
	Calculate(ctx context.Context, P semifit.ParamSet, wrkdir, inputname string) ([]semifit.Properties, error)
}

//Pool evaluates batches of parameter vectors with a fixed number of concurrent workers.
//Worker i always works in the i-th workspace under the pool's directory, so two workers never
//share a directory. A Pool evaluates one batch at a time; concurrent calls to EvaluateBatch
//wait for each other.
type Pool struct {
	oracle    Oracle
	codec     *semifit.Codec
	dir       string
	slots     []*workspace
	mu        sync.Mutex
	completed atomic.Int64
	progress  func(done, total int)
	log       *zap.Logger
}

//Option configures a Pool.
type Option func(*Pool)

//WithLogger sets the logger for the pool.
func WithLogger(l *zap.Logger) Option {
	return func(P *Pool) {
		if l != nil {
			P.log = l
		}
	}
}

//WithProgress sets a function that is called each time a parameter vector of a batch is
//evaluated, with the number of vectors done so far in the batch and the batch size.
//It is called from the worker goroutines, so it must be safe for concurrent use.
func WithProgress(f func(done, total int)) Option {
	return func(P *Pool) {
		P.progress = f
	}
}

//NewPool returns a pool with workers workers. The oracle will be run on the molecule input
//file input, a copy of which is placed in each workspace. Workspaces are created under a
//directory with a random name inside scratch, so pools from different runs don't collide.
func NewPool(oracle Oracle, codec *semifit.Codec, input, scratch string, workers int, opts ...Option) (*Pool, error) {
	errid := "eval/NewPool"
	if workers < 1 {
		return nil, fmt.Errorf("%s: need at least one worker, got %d", errid, workers)
	}
	if oracle == nil || codec == nil {
		return nil, fmt.Errorf("%s: nil oracle or codec", errid)
	}
	input, err := filepath.Abs(input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	if _, err := os.Stat(input); err != nil {
		return nil, fmt.Errorf("%s: input file: %w", errid, err)
	}
	dir := filepath.Join(scratch, "semifit-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	P := &Pool{
		oracle: oracle,
		codec:  codec,
		dir:    dir,
		slots:  make([]*workspace, workers),
		log:    zap.NewNop(),
	}
	for i := range P.slots {
		P.slots[i] = &workspace{dir: filepath.Join(dir, fmt.Sprintf("worker-%d", i)), input: input}
	}
	for _, o := range opts {
		o(P)
	}
	return P, nil
}

//Workers returns the number of workers in the pool.
func (P *Pool) Workers() int { return len(P.slots) }

//Dir returns the directory under which the workspaces are created.
func (P *Pool) Dir() string { return P.dir }

//Completed returns the number of parameter vectors evaluated by the pool since it was created.
func (P *Pool) Completed() int64 { return P.completed.Load() }

//Codec returns the codec used by the pool.
func (P *Pool) Codec() *semifit.Codec { return P.codec }

//EvaluateBatch evaluates every parameter vector in vecs and returns the properties the oracle
//gives for each, in the same order as vecs.
//If the evaluation of a vector fails, no more vectors are started, the ones already running are
//allowed to finish, and the first error is returned as a *semifit.BatchError. All workspaces are
//removed before EvaluateBatch returns, whether there were errors or not.
func (P *Pool) EvaluateBatch(ctx context.Context, vecs [][]float64) ([][]semifit.Properties, error) {
	P.mu.Lock()
	defer P.mu.Unlock()
	n := len(vecs)
	ret := make([][]semifit.Properties, n)
	if n == 0 {
		return ret, nil
	}
	start := time.Now()
	workers := min(len(P.slots), n)
	var next, done atomic.Int64
	var failed atomic.Bool
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		ws := P.slots[w]
		g.Go(func() (err error) {
			defer func() {
				if derr := ws.destroy(); derr != nil && err == nil {
					err = derr
				}
			}()
			acquired := false
			for {
				i := int(next.Add(1)) - 1
				if i >= n || failed.Load() {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				params, err := P.codec.Encode(vecs[i])
				if err != nil {
					failed.Store(true)
					return &semifit.BatchError{Index: i, Err: err}
				}
				if !acquired {
					if err := ws.acquire(); err != nil {
						failed.Store(true)
						return &semifit.BatchError{Index: i, Err: err}
					}
					acquired = true
				}
				props, err := P.oracle.Calculate(ctx, params, ws.dir, ws.inputName())
				if err != nil {
					failed.Store(true)
					return &semifit.BatchError{Index: i, Err: err}
				}
				ret[i] = props
				P.completed.Add(1)
				d := done.Add(1)
				if P.progress != nil {
					P.progress(int(d), n)
				}
			}
		})
	}
	err := g.Wait()
	if err != nil {
		P.log.Debug("batch failed", zap.Int("size", n), zap.Int64("done", done.Load()), zap.Error(err))
		return nil, err
	}
	P.log.Debug("batch evaluated", zap.Int("size", n), zap.Int("workers", workers), zap.Duration("took", time.Since(start)))
	return ret, nil
}

//Close removes the pool's directory. The pool should not be used after Close.
func (P *Pool) Close() error {
	P.mu.Lock()
	defer P.mu.Unlock()
	if err := os.RemoveAll(P.dir); err != nil {
		return fmt.Errorf("eval/Pool.Close: %w", err)
	}
	return nil
}
