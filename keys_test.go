/*
 * keys_test.go, part of semifit.
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

package semifit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpecies(Te *testing.T) {
	for sym, z := range map[string]int{"H": 1, "c": 6, "CL": 17, " O ": 8, "Zn": 30} {
		s, err := ParseSpecies(sym)
		require.NoError(Te, err, sym)
		assert.Equal(Te, z, s.Z())
	}
	_, err := ParseSpecies("Xx")
	assert.Error(Te, err)
	assert.Equal(Te, "Cl", Species(17).String())
}

func TestParseKey(Te *testing.T) {
	k, err := ParseKey("O:betap")
	require.NoError(Te, err)
	assert.Equal(Te, Key{8, BETAP}, k)
	_, err = ParseKey("O:BETAQ")
	assert.Error(Te, err)
	_, err = ParseKey("OBETAP")
	assert.Error(Te, err)
}

func TestSelectKeys(Te *testing.T) {
	start := ParamSet{
		8: {USS: -99, UPP: -77, ZS: 3, ZP: 2, BETAS: -45, BETAP: -32, ALP: 3, DD2: 0.5},
		1: {USS: -11, ZS: 1, BETAS: -5, ALP: 3},
		6: {USS: -47},
	}
	keys, err := SelectKeys(start, []Species{8, 1, 8}, DefaultIgnore)
	require.NoError(Te, err)
	assert.Equal(Te, []string{"H:USS", "H:ALP", "O:USS", "O:UPP", "O:ZP", "O:BETAP", "O:ALP"}, keys.Strings())

	_, err = SelectKeys(start, []Species{7}, nil)
	assert.Error(Te, err)
}

func TestParamsJSON(Te *testing.T) {
	in := `{"O": {"USS": -99.0, "zp": 2.0}, "H": {"ALP": 2.5}}`
	P, err := DecodeParams(strings.NewReader(in))
	require.NoError(Te, err)
	assert.Equal(Te, 3, P.Len())
	assert.Equal(Te, 2.0, P[8][ZP])
	var buf bytes.Buffer
	require.NoError(Te, EncodeParams(&buf, P))
	assert.Contains(Te, buf.String(), `"USS": -99`)

	_, err = DecodeParams(strings.NewReader(`{"O": {"USX": 1.0}}`))
	assert.Error(Te, err, "unknown property names must be rejected")
	_, err = DecodeParams(strings.NewReader(`{"Qq": {"USS": 1.0}}`))
	assert.Error(Te, err, "unknown elements must be rejected")
	_, err = DecodeParams(strings.NewReader(`{"O": {"USS": "a"}}`))
	assert.Error(Te, err)
}

func TestParamSetUpdate(Te *testing.T) {
	start := ParamSet{8: {USS: -99, UPP: -77}}
	end, err := start.Update(Keys{{8, UPP}, {1, USS}}, []float64{-70, -12})
	require.NoError(Te, err)
	assert.Equal(Te, -77.0, start[8][UPP], "the start set must not change")
	assert.Equal(Te, -70.0, end[8][UPP])
	assert.Equal(Te, -99.0, end[8][USS])
	assert.Equal(Te, -12.0, end[1][USS])
}

func TestXYZDecode(Te *testing.T) {
	in := "3\nwater\nO 0.0 0.0 0.117\nH 0.0 0.757 -0.467\n1 0.0 -0.757 -0.467"
	mol, err := XYZDecode(strings.NewReader(in))
	require.NoError(Te, err)
	assert.Equal(Te, "water", mol.Title)
	assert.Equal(Te, []Species{8, 1, 1}, mol.Species)
	assert.InDelta(Te, -0.757, mol.Coords.At(2, 1), 1e-12)
	require.NoError(Te, mol.Corrupted())

	var buf bytes.Buffer
	require.NoError(Te, XYZEncode(&buf, mol))
	again, err := XYZDecode(&buf)
	require.NoError(Te, err)
	assert.Equal(Te, mol.Species, again.Species)

	_, err = XYZDecode(strings.NewReader("3\nshort\nO 0 0 0\n"))
	assert.Error(Te, err)
}
