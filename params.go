/*
 * params.go, part of semifit.
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
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

//ParamSet contains the parameters of a method, per species
//and per property, in physical units.
type ParamSet map[Species]map[Property]float64

//Set sets the value for the parameter k, creating the species' sub-map if needed.
func (P ParamSet) Set(k Key, value float64) {
	m, ok := P[k.Species]
	if !ok {
		m = make(map[Property]float64)
		P[k.Species] = m
	}
	m[k.Property] = value
}

//Get returns the value of parameter k and whether it was present.
func (P ParamSet) Get(k Key) (float64, bool) {
	m, ok := P[k.Species]
	if !ok {
		return 0, false
	}
	v, ok := m[k.Property]
	return v, ok
}

//Len returns the total number of parameters in the set.
func (P ParamSet) Len() int {
	n := 0
	for _, v := range P {
		n += len(v)
	}
	return n
}

//Copy returns a deep copy of the set.
func (P ParamSet) Copy() ParamSet {
	ret := make(ParamSet, len(P))
	for s, m := range P {
		c := make(map[Property]float64, len(m))
		for p, v := range m {
			c[p] = v
		}
		ret[s] = c
	}
	return ret
}

//Update returns a copy of P where the parameters in keys take the values in physical.
func (P ParamSet) Update(keys Keys, physical []float64) (ParamSet, error) {
	if len(keys) != len(physical) {
		return nil, fmt.Errorf("semifit/ParamSet.Update: %d keys but %d values", len(keys), len(physical))
	}
	ret := P.Copy()
	for i, k := range keys {
		ret.Set(k, physical[i])
	}
	return ret, nil
}

//Species returns the species in the set.
func (P ParamSet) Species() []Species {
	ret := make([]Species, 0, len(P))
	for s := range P {
		ret = append(ret, s)
	}
	return ret
}

//Parameter files

//DecodeParams reads a parameter set in JSON form, i.e.
//{"O": {"USS": -99.0, "ZP": 2.0}, "H": {...}}
//from r. Unknown element or parameter names are an error, and so are
//non-numeric values.
func DecodeParams(r io.Reader) (ParamSet, error) {
	var ret ParamSet
	dec := json.NewDecoder(bufio.NewReader(r))
	if err := dec.Decode(&ret); err != nil {
		return nil, fmt.Errorf("semifit/DecodeParams: %w", err)
	}
	for s, m := range ret {
		for p, v := range m {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("semifit/DecodeParams: non-finite value for %s", Key{s, p})
			}
		}
	}
	return ret, nil
}

//EncodeParams writes P to w in the JSON form read by DecodeParams.
func EncodeParams(w io.Writer, P ParamSet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(P); err != nil {
		return fmt.Errorf("semifit/EncodeParams: %w", err)
	}
	return nil
}

//ReadParams reads a parameter set from the JSON file filename.
func ReadParams(filename string) (ParamSet, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("semifit/ReadParams: %w", err)
	}
	defer f.Close()
	return DecodeParams(f)
}

//WriteParams writes P to the JSON file filename, which is overwritten if it exists.
func WriteParams(filename string, P ParamSet) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("semifit/WriteParams: %w", err)
	}
	if err := EncodeParams(f, P); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
