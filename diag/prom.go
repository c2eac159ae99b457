/*
 * prom.go, part of semifit.
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

	"github.com/prometheus/client_golang/prometheus"
)

//PromSink exposes the latest value of each scalar as a Prometheus gauge, and counts the
//recorded steps. Several sinks, for different runs, can share a registry.
type PromSink struct {
	run     string
	scalars *prometheus.GaugeVec
	steps   *prometheus.CounterVec
}

//register registers c in reg, or returns the collector already registered in its place.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if old, ok := are.ExistingCollector.(T); ok {
			return old, nil
		}
	}
	return c, err
}

//NewPromSink returns a sink for the run with the given name, with its metrics registered in reg.
func NewPromSink(reg prometheus.Registerer, run string) (*PromSink, error) {
	errid := "diag/NewPromSink"
	scalars := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "semifit",
		Name:      "scalar",
		Help:      "Latest value of a per-step diagnostic of a fit.",
	}, []string{"run", "name"})
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "semifit",
		Name:      "steps_total",
		Help:      "Number of optimizer or sampler steps recorded.",
	}, []string{"run"})
	var err error
	S := &PromSink{run: run}
	if S.scalars, err = register(reg, scalars); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	if S.steps, err = register(reg, steps); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	return S, nil
}

//Record sets the gauges for the scalars and counts the step.
func (S *PromSink) Record(step int, scalars map[string]float64) error {
	for k, v := range scalars {
		S.scalars.WithLabelValues(S.run, k).Set(v)
	}
	S.steps.WithLabelValues(S.run).Inc()
	return nil
}

//Close does nothing: the last values stay visible until the process exits.
func (S *PromSink) Close() error { return nil }
