/*
 * codec.go, part of semifit.
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
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"
)

//Scale is the affine map from the optimizer space to physical units for one
//parameter: physical = raw*Scale + Offset.
type Scale struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

//Scales contains a Scale per species and property.
type Scales map[Species]map[Property]Scale

//DefaultScales returns scales where each key in keys has its start value as offset and
//a scale of 1, so the zero vector corresponds to the start parameters.
func DefaultScales(start ParamSet, keys Keys) (Scales, error) {
	ret := make(Scales)
	for _, k := range keys {
		v, ok := start.Get(k)
		if !ok {
			return nil, &CodecError{k, "no start value"}
		}
		m, ok := ret[k.Species]
		if !ok {
			m = make(map[Property]Scale)
			ret[k.Species] = m
		}
		m[k.Property] = Scale{Scale: 1, Offset: v}
	}
	return ret, nil
}

//ReadScales reads scales from a JSON file of the form
//{"O": {"USS": {"scale": 2.0, "offset": -99.0}}}
func ReadScales(filename string) (Scales, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("semifit/ReadScales: %w", err)
	}
	defer f.Close()
	var ret Scales
	if err := json.NewDecoder(f).Decode(&ret); err != nil {
		return nil, fmt.Errorf("semifit/ReadScales: %s: %w", filename, err)
	}
	return ret, nil
}

//Codec maps flat parameter vectors in the optimizer space to parameter sets
//in physical units, and back.
type Codec struct {
	keys   Keys
	scale  []float64
	offset []float64
}

//NewCodec returns a codec for the given keys. Every key must have an entry in s,
//with a non-zero scale. Missing entries are never given a default, as a wrong scaling would
//silently corrupt a fit.
func NewCodec(keys Keys, s Scales) (*Codec, error) {
	C := &Codec{
		keys:   make(Keys, len(keys)),
		scale:  make([]float64, len(keys)),
		offset: make([]float64, len(keys)),
	}
	copy(C.keys, keys)
	for i, k := range keys {
		m, ok := s[k.Species]
		if !ok {
			return nil, &CodecError{k, "species not in scale table"}
		}
		sc, ok := m[k.Property]
		if !ok {
			return nil, &CodecError{k, "property not in scale table"}
		}
		if sc.Scale == 0 {
			return nil, &CodecError{k, "zero scale"}
		}
		C.scale[i] = sc.Scale
		C.offset[i] = sc.Offset
	}
	return C, nil
}

//Keys returns the codec's keys. They should not be modified.
func (C *Codec) Keys() Keys { return C.keys }

//Len returns the length of the parameter vectors the codec takes.
func (C *Codec) Len() int { return len(C.keys) }

//Physical puts raw*scale+offset in dst, which is allocated if nil, and returns it.
func (C *Codec) Physical(raw, dst []float64) ([]float64, error) {
	if len(raw) != len(C.keys) {
		return nil, &CodecError{Msg: fmt.Sprintf("vector of length %d for %d keys", len(raw), len(C.keys))}
	}
	if dst == nil {
		dst = make([]float64, len(raw))
	}
	floats.MulTo(dst, raw, C.scale)
	floats.Add(dst, C.offset)
	return dst, nil
}

//Raw is the inverse of Physical.
func (C *Codec) Raw(physical, dst []float64) ([]float64, error) {
	if len(physical) != len(C.keys) {
		return nil, &CodecError{Msg: fmt.Sprintf("vector of length %d for %d keys", len(physical), len(C.keys))}
	}
	if dst == nil {
		dst = make([]float64, len(physical))
	}
	floats.SubTo(dst, physical, C.offset)
	floats.Div(dst, C.scale)
	return dst, nil
}

//Encode returns the parameter set, in physical units, for the raw vector.
//Keys for the same species end up in the same sub-map.
func (C *Codec) Encode(raw []float64) (ParamSet, error) {
	phys, err := C.Physical(raw, nil)
	if err != nil {
		return nil, err
	}
	ret := make(ParamSet)
	for i, k := range C.keys {
		ret.Set(k, phys[i])
	}
	return ret, nil
}

//Decode returns the raw vector for the parameters in P.
func (C *Codec) Decode(P ParamSet) ([]float64, error) {
	phys := make([]float64, len(C.keys))
	for i, k := range C.keys {
		v, ok := P.Get(k)
		if !ok {
			return nil, &CodecError{k, "not in parameter set"}
		}
		phys[i] = v
	}
	return C.Raw(phys, phys)
}
