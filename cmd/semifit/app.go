/*
 * app.go, part of semifit.
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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/rmera/semifit/diag"
	"github.com/rmera/semifit/fitter"
	"github.com/rmera/semifit/internal/config"
	"github.com/rmera/semifit/internal/logging"
)

//app holds what the subcommands share.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
}

func (A *app) addFlags(fs *pflag.FlagSet) {
	config.AddFlags(fs)
}

//action is the body of a subcommand. dir is the diagnostics directory of the run.
type action func(ctx context.Context, S *fitter.Session, sink diag.Sink, dir string) error

//command returns a cobra RunE that loads the configuration, sets up logging, diagnostics
//and the session, and runs act.
func (A *app) command(kind string, act action) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		A.cfg, err = config.Load(A.cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		A.log, err = logging.New(A.cfg.Log.Level, A.cfg.Log.JSON, A.stderr)
		if err != nil {
			return err
		}
		defer A.log.Sync() //nolint:errcheck
		ctx := cmd.Context()

		dir := diag.RunDir(A.cfg.Diagnostics.Dir, kind, time.Now())
		sink, stopMetrics, err := A.sinks(kind, dir)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, sink.Close(), stopMetrics()) }()

		S, err := fitter.NewSession(ctx, A.cfg, A.log)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, S.Close()) }()
		A.log.Info("run started", zap.String("command", kind), zap.String("diagnostics", dir))
		return act(ctx, S, sink, dir)
	}
}

//sinks returns the diagnostics sink for a run and a function that stops the metrics server,
//if one was started.
func (A *app) sinks(kind, dir string) (diag.Sink, func() error, error) {
	name := filepath.Join(dir, "events.jsonl")
	if A.cfg.Diagnostics.Compress {
		name += ".zst"
	}
	file, err := diag.NewFileSink(name)
	if err != nil {
		return nil, nil, err
	}
	stop := func() error { return nil }
	addr := A.cfg.Diagnostics.MetricsAddr
	if addr == "" {
		return file, stop, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := diag.NewPromSink(reg, kind+"/"+filepath.Base(dir))
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	go func() {
		A.log.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			A.log.Error("metrics server error", zap.Error(err))
		}
	}()
	stop = func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
	return diag.Multi(file, prom), stop, nil
}

func (A *app) loss(ctx context.Context, S *fitter.Session, sink diag.Sink, dir string) error {
	l, err := S.Loss(ctx, nil)
	if err != nil {
		return err
	}
	if err := sink.Record(0, map[string]float64{"loss": l}); err != nil {
		return err
	}
	fmt.Fprintf(A.stdout, "loss: %.4f\n", l)
	return nil
}

func (A *app) fit(ctx context.Context, S *fitter.Session, sink diag.Sink, dir string) error {
	res, err := S.Minimize(ctx, sink)
	if err != nil {
		return err
	}
	start, err := S.Params(S.Start())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(A.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "parameter\tstart\tfitted")
	for _, k := range S.Keys() {
		v0, _ := start.Get(k)
		v, _ := res.Params.Get(k)
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\n", k, v0, v)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(A.stdout, "loss: %.4f -> %.4f (%d iterations, %s)\n", res.StartLoss, res.Loss, res.Optimizer.Iterations, res.Optimizer.Status)
	if res.Optimizer.Message != "" {
		fmt.Fprintf(A.stdout, "optimizer: %s\n", res.Optimizer.Message)
	}
	return nil
}

func (A *app) sample(ctx context.Context, S *fitter.Session, sink diag.Sink, dir string) error {
	res, err := S.Sample(ctx, sink)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(A.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "parameter\tmean\tstd")
	col := make([]float64, len(res.Physical))
	for i, k := range S.Keys() {
		for j, v := range res.Physical {
			col[j] = v[i]
		}
		mean, std := stat.MeanStdDev(col, nil)
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\n", k, mean, std)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(A.stdout, "%d samples, %d divergent, step size %.3g\n", res.Chain.Len(), res.Chain.Divergences(), res.Chain.StepSize)
	if A.cfg.Diagnostics.Plot {
		name := filepath.Join(dir, "chain.png")
		if err := diag.PlotChain(name, res.Physical, res.Chain.LogProb); err != nil {
			return err
		}
		A.log.Info("chain plotted", zap.String("file", name))
	}
	return nil
}

func (A *app) crossValidate(ctx context.Context, S *fitter.Session, sink diag.Sink, dir string) error {
	res, err := S.CrossValidate(ctx, sink)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(A.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "fold\ttrain\ttest\ttrain loss\ttest loss\tstart test loss")
	test := make([]float64, len(res))
	for i, r := range res {
		fmt.Fprintf(w, "%d\t%d\t%d\t%.4f\t%.4f\t%.4f\n", r.Fold, r.TrainSize, r.TestSize, r.TrainLoss, r.TestLoss, r.StartTestLoss)
		test[i] = r.TestLoss
	}
	if err := w.Flush(); err != nil {
		return err
	}
	mean, std := stat.MeanStdDev(test, nil)
	fmt.Fprintf(A.stdout, "test loss: %.4f ± %.4f\n", mean, std)
	return nil
}
