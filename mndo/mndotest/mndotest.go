/*
 * mndotest.go, part of semifit.
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

//Package mndotest provides a fake MNDO-style program for tests.
//
//The fake program reads the molecule input from its standard input and the parameters from
//fort.14 in its working directory. For every molecule whose title is a number t it reports a
//binding energy of t+S, where S is the sum of all the parameter values in fort.14, so that
//different parameters give different energies. Molecules with non-numeric titles get an
//output block without energy, like molecules for which the SCF doesn't converge.
package mndotest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/rmera/semifit"
)

//Mode selects how the fake program behaves.
type Mode int

const (
	Normal          Mode = iota
	Fail                 //prints nothing useful and exits with status 3
	FailAfterOutput      //prints the normal output, then exits with status 2
	Hang                 //never finishes
)

const script = `#!/bin/sh
%s
S=$(awk '{s += $3} END {printf "%%.10f", s}' fort.14)
awk -v s="$S" '
/^TITLE/ {
	t = $2
	printf " TITLE %%s\n", t
	if (t ~ /^-?[0-9]+(\.[0-9]+)?$/) {
		printf "          SCF HEAT OF FORMATION   %%15.8f KCAL/MOL\n", t
		printf "          SCF BINDING ENERGY      %%15.8f KCAL/MOL\n", t + s
	} else {
		printf "          UNABLE TO ACHIEVE SCF CONVERGENCE\n"
	}
	printf " COMPUTATION TIME      0.010 SECONDS\n"
}
END { printf " STATISTICS FOR RUNS WITH MANY MOLECULES\n" }'
%s
`

//Program writes the fake program to dir and returns its path. delay, if not empty, is an
//argument for sleep(1), run before the program does anything else.
func Program(dir string, mode Mode, delay string) (string, error) {
	pre, post := "", ""
	if delay != "" {
		pre = "sleep " + delay
	}
	switch mode {
	case Fail:
		pre += "\necho 'ERROR: unable to read parameter file' >&2\nexit 3"
	case FailAfterOutput:
		post = "exit 2"
	case Hang:
		pre += "\nexec sleep 600"
	}
	path := filepath.Join(dir, fmt.Sprintf("fakemndo-%d.sh", mode))
	if err := os.WriteFile(path, []byte(fmt.Sprintf(script, pre, post)), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

//Batch returns a batch with one single-atom molecule per title.
//Numeric titles are the energies the fake program will report for zero parameters.
func Batch(titles ...string) semifit.Batch {
	ret := make(semifit.Batch, len(titles))
	for i, t := range titles {
		ret[i] = &semifit.Molecule{
			Species: []semifit.Species{1},
			Coords:  mat.NewDense(1, 3, []float64{0, 0, float64(i)}),
			Title:   strings.TrimSpace(t),
		}
	}
	return ret
}
