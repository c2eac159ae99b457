/*
 * mndo_test.go, part of semifit.
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

package mndo

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmera/semifit"
	"github.com/rmera/semifit/mndo/mndotest"
)

const sampleOutput = `
 PM3 1SCF MULLIK PRECISE charge=0 iparok=1 jprint=5
 TITLE water
          SCF HEAT OF FORMATION       -53.42651 KCAL/MOL
          SCF TOTAL ENERGY           -322.20135 EV
          ELECTRONIC ENERGY          -466.1D+00 EV
          SCF BINDING ENERGY         -220.51384 KCAL/MOL
     DIPOLE           X         Y         Z       TOTAL
     POINT-CHARGE  0.000     0.000     1.682     1.682
     SUM           0.000     0.000     1.744     1.744
 COMPUTATION TIME      0.016 SECONDS
 TITLE broken
          UNABLE TO ACHIEVE SCF CONVERGENCE
 COMPUTATION TIME      1.200 SECONDS
 TITLE methane
          SCF BINDING ENERGY   =     -397.1 KCAL/MOL
 COMPUTATION TIME      0.011 SECONDS
 STATISTICS FOR RUNS WITH MANY MOLECULES
          SCF BINDING ENERGY         -999.0 KCAL/MOL
`

func TestSplitAndParse(Te *testing.T) {
	blocks, err := SplitBlocks(strings.NewReader(sampleOutput))
	require.NoError(Te, err)
	require.Len(Te, blocks, 3)

	p, err := ParseBlock(blocks[0])
	require.NoError(Te, err)
	assert.InDelta(Te, -220.51384, p.Energy(), 1e-9)
	assert.InDelta(Te, -53.42651, p["heat_of_formation"], 1e-9)
	assert.InDelta(Te, -322.20135*semifit.EV2Kcal, p["total_energy"], 1e-6)
	assert.InDelta(Te, -466.1*semifit.EV2Kcal, p["electronic_energy"], 1e-6)
	assert.InDelta(Te, 1.744, p["dipole"], 1e-9)

	_, err = ParseBlock(blocks[1])
	assert.ErrorIs(Te, err, semifit.ErrNoEnergy)

	p, err = ParseBlock(blocks[2])
	require.NoError(Te, err)
	assert.InDelta(Te, -397.1, p.Energy(), 1e-9)
	_, ok := p["dipole"]
	assert.False(Te, ok)
}

func TestSplitUnterminated(Te *testing.T) {
	out := " TITLE a\n SCF BINDING ENERGY -1.0 KCAL/MOL\n COMPUTATION TIME 0.1\n TITLE b\n Segmentation fault\n\n"
	blocks, err := SplitBlocks(strings.NewReader(out))
	require.NoError(Te, err)
	require.Len(Te, blocks, 2)
	_, err = ParseBlock(blocks[1])
	assert.Error(Te, err)
}

func TestBuildInput(Te *testing.T) {
	B := mndotest.Batch("-10.0", "")
	B[1].Charge = -1
	var buf bytes.Buffer
	require.NoError(Te, BuildInput(&buf, B, "mndo"))
	txt := buf.String()
	assert.Equal(Te, 2, strings.Count(txt, "nextmol=-1"))
	assert.Contains(Te, txt, "MNDO 1SCF MULLIK PRECISE charge=0 iparok=1 jprint=5\nnextmol=-1\nTITLE -10.0\n")
	assert.Contains(Te, txt, "charge=-1 iparok=1 jprint=5\nnextmol=-1\nTITLE 1\n")
	assert.Contains(Te, txt, "  1    0.0000000000 0    0.0000000000 0    1.0000000000 0\n\n")
}

func TestEncodeParams(Te *testing.T) {
	P := semifit.ParamSet{8: {semifit.UPP: -77, semifit.USS: -99.5}, 1: {semifit.ALP: 3}}
	var buf bytes.Buffer
	require.NoError(Te, EncodeParams(&buf, P))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(Te, lines, 3)
	assert.Equal(Te, "ALP      H    3.00000000000", lines[0])
	assert.Equal(Te, "USS      O  -99.50000000000", lines[1])
	assert.Equal(Te, "UPP      O  -77.00000000000", lines[2])
}

//workspace writes the input for B to a new directory and returns it.
func workspace(Te *testing.T, B semifit.Batch) string {
	dir := Te.TempDir()
	require.NoError(Te, WriteInput(filepath.Join(dir, "molecules"), B, ""))
	return dir
}

func TestCalculate(Te *testing.T) {
	prog, err := mndotest.Program(Te.TempDir(), mndotest.Normal, "")
	require.NoError(Te, err)
	B := mndotest.Batch("-9.5", "broken", "-15.2")
	dir := workspace(Te, B)
	h := NewHandle()
	h.SetCommand(prog)
	props, err := h.Calculate(context.Background(), semifit.ParamSet{1: {semifit.USS: 1.5, semifit.ALP: -1}}, dir, "molecules")
	require.NoError(Te, err)
	want := []semifit.Properties{
		{"energy": -9.0, "heat_of_formation": -9.5},
		{"energy": math.NaN()},
		{"energy": -14.7, "heat_of_formation": -15.2},
	}
	if diff := cmp.Diff(want, props, cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-8)); diff != "" {
		Te.Errorf("unexpected properties (-want +got):\n%s", diff)
	}
	_, err = os.Stat(filepath.Join(dir, ParamFile))
	assert.NoError(Te, err, "the parameter file should be written in the workspace")
}

func TestCalculatePadding(Te *testing.T) {
	prog, err := mndotest.Program(Te.TempDir(), mndotest.Normal, "")
	require.NoError(Te, err)
	dir := workspace(Te, mndotest.Batch("-1", "-2"))
	h := NewHandle()
	h.SetCommand(prog)
	h.SetMolecules(3)
	props, err := h.Calculate(context.Background(), semifit.ParamSet{}, dir, "molecules")
	require.NoError(Te, err)
	require.Len(Te, props, 3)
	assert.InDelta(Te, -2.0, props[1].Energy(), 1e-9)
	assert.True(Te, math.IsNaN(props[2].Energy()))
}

func TestCalculateFailures(Te *testing.T) {
	bin := Te.TempDir()
	B := mndotest.Batch("-1", "-2")
	P := semifit.ParamSet{1: {semifit.USS: 0}}
	var oerr *semifit.OracleError

	prog, err := mndotest.Program(bin, mndotest.Fail, "")
	require.NoError(Te, err)
	h := NewHandle()
	h.SetCommand(prog)
	_, err = h.Calculate(context.Background(), P, workspace(Te, B), "molecules")
	require.Error(Te, err)
	require.True(Te, errors.As(err, &oerr))
	assert.Equal(Te, 3, oerr.ExitCode)
	assert.Contains(Te, oerr.Tail, "unable to read parameter file")

	//a failed run with usable output is tolerated
	prog, err = mndotest.Program(bin, mndotest.FailAfterOutput, "")
	require.NoError(Te, err)
	h.SetCommand(prog)
	props, err := h.Calculate(context.Background(), P, workspace(Te, B), "molecules")
	require.NoError(Te, err)
	assert.Equal(Te, []float64{-1, -2}, semifit.Energies(props))

	prog, err = mndotest.Program(bin, mndotest.Hang, "")
	require.NoError(Te, err)
	h.SetCommand(prog)
	h.SetTimeout(300 * time.Millisecond)
	start := time.Now()
	_, err = h.Calculate(context.Background(), P, workspace(Te, B), "molecules")
	require.Error(Te, err)
	assert.True(Te, errors.As(err, &oerr))
	assert.ErrorIs(Te, err, context.DeadlineExceeded)
	assert.Less(Te, time.Since(start), 10*time.Second)

	h.SetCommand(filepath.Join(bin, "does-not-exist"))
	_, err = h.Calculate(context.Background(), P, workspace(Te, B), "molecules")
	require.True(Te, errors.As(err, &oerr))
	assert.Equal(Te, -1, oerr.ExitCode)
}
