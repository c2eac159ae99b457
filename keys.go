/*
 * keys.go, part of semifit.
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
	"fmt"
	"sort"
	"strings"
)

//Species is a chemical element, stored as its atomic number.
type Species int

//ParseSpecies returns the Species for the element symbol sym.
//It fails for symbols it doesn't know, so a typo in a parameter file
//is caught when the file is read, not in the middle of a fit.
func ParseSpecies(sym string) (Species, error) {
	sym = strings.TrimSpace(sym)
	if len(sym) > 1 {
		sym = strings.ToUpper(sym[:1]) + strings.ToLower(sym[1:])
	} else {
		sym = strings.ToUpper(sym)
	}
	z, ok := symbolNumber[sym]
	if !ok {
		return 0, fmt.Errorf("semifit/ParseSpecies: unknown element symbol %q", sym)
	}
	return Species(z), nil
}

//SpeciesFromNumber returns the species with atomic number z.
func SpeciesFromNumber(z int) (Species, error) {
	if _, ok := numberSymbol[z]; !ok {
		return 0, fmt.Errorf("semifit/SpeciesFromNumber: no element with atomic number %d", z)
	}
	return Species(z), nil
}

//Z returns the atomic number.
func (S Species) Z() int { return int(S) }

func (S Species) String() string {
	if s, ok := numberSymbol[int(S)]; ok {
		return s
	}
	return fmt.Sprintf("Z%d", int(S))
}

func (S Species) MarshalText() ([]byte, error) {
	if _, ok := numberSymbol[int(S)]; !ok {
		return nil, fmt.Errorf("semifit/Species: no element with atomic number %d", int(S))
	}
	return []byte(S.String()), nil
}

func (S *Species) UnmarshalText(b []byte) error {
	s, err := ParseSpecies(string(b))
	if err != nil {
		return err
	}
	*S = s
	return nil
}

//Property is one of the semi-empirical constants the oracle reads
//from its parameter file.
type Property int

//The order of the constants is the order in which keys are selected
//for a fit.
const (
	USS Property = iota
	UPP
	UDD
	ZS
	ZP
	ZD
	ZSN
	ZPN
	ZDN
	BETAS
	BETAP
	BETAD
	ALP
	GSS
	GSP
	GPP
	GP2
	HSP
	DD2
	DD3
	PO1
	PO2
	PO3
	PO9
	CORE
	EISOL
	HYF
	GSCAL
	FN1
	FN2
	FN3
	FN11
	FN21
	FN31
	FN12
	FN22
	FN32
	FN13
	FN23
	FN33
	FN14
	FN24
	FN34
	numProperties
)

var propertyNames = [numProperties]string{
	"USS", "UPP", "UDD", "ZS", "ZP", "ZD", "ZSN", "ZPN", "ZDN",
	"BETAS", "BETAP", "BETAD", "ALP", "GSS", "GSP", "GPP", "GP2", "HSP",
	"DD2", "DD3", "PO1", "PO2", "PO3", "PO9", "CORE", "EISOL", "HYF", "GSCAL",
	"FN1", "FN2", "FN3",
	"FN11", "FN21", "FN31", "FN12", "FN22", "FN32",
	"FN13", "FN23", "FN33", "FN14", "FN24", "FN34",
}

//ParseProperty returns the Property with the given name (case-insensitive).
func ParseProperty(name string) (Property, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for i, v := range propertyNames {
		if v == n {
			return Property(i), nil
		}
	}
	return 0, fmt.Errorf("semifit/ParseProperty: unknown parameter name %q", name)
}

//ParseProperties parses a list of names, failing on the first unknown one.
func ParseProperties(names []string) ([]Property, error) {
	ret := make([]Property, 0, len(names))
	for _, v := range names {
		p, err := ParseProperty(v)
		if err != nil {
			return nil, err
		}
		ret = append(ret, p)
	}
	return ret, nil
}

func (P Property) String() string {
	if P < 0 || P >= numProperties {
		return fmt.Sprintf("Property(%d)", int(P))
	}
	return propertyNames[P]
}

func (P Property) MarshalText() ([]byte, error) {
	if P < 0 || P >= numProperties {
		return nil, fmt.Errorf("semifit/Property: invalid property %d", int(P))
	}
	return []byte(P.String()), nil
}

func (P *Property) UnmarshalText(b []byte) error {
	p, err := ParseProperty(string(b))
	if err != nil {
		return err
	}
	*P = p
	return nil
}

//DefaultIgnore contains the parameters that are not fitted unless
//asked for explicitly.
var DefaultIgnore = []Property{DD2, DD3, PO1, PO2, PO3, PO9, HYF, CORE, EISOL, FN1, FN2, FN3, GSCAL, BETAS, ZS}

//Key identifies one scalar parameter.
type Key struct {
	Species  Species
	Property Property
}

func (K Key) String() string {
	return K.Species.String() + ":" + K.Property.String()
}

//Keys is an ordered list of unique parameter keys. The order is
//the order of the values in a parameter vector.
type Keys []Key

//NewKeys returns a Keys list with the given keys, or an error if a key is repeated,
//as a repeated key would make the assignment of values ambiguous.
func NewKeys(k ...Key) (Keys, error) {
	seen := make(map[Key]int, len(k))
	for i, v := range k {
		if j, ok := seen[v]; ok {
			return nil, fmt.Errorf("semifit/NewKeys: key %s repeated at positions %d and %d", v, j, i)
		}
		seen[v] = i
	}
	ret := make(Keys, len(k))
	copy(ret, k)
	return ret, nil
}

//Strings returns the keys in "Species:Property" form.
func (K Keys) Strings() []string {
	ret := make([]string, len(K))
	for i, v := range K {
		ret[i] = v.String()
	}
	return ret
}

//ParseKey parses a key in "Species:Property" form.
func ParseKey(s string) (Key, error) {
	f := strings.Split(s, ":")
	if len(f) != 2 {
		return Key{}, fmt.Errorf("semifit/ParseKey: key %q is not in Species:Property form", s)
	}
	sp, err := ParseSpecies(f[0])
	if err != nil {
		return Key{}, err
	}
	p, err := ParseProperty(f[1])
	if err != nil {
		return Key{}, err
	}
	return Key{sp, p}, nil
}

//SelectKeys returns the keys to be fitted: every parameter in start for every
//species in species, except the properties in ignore.
//Species are ordered by atomic number and properties by their order in
//the Property constants, so the result doesn't depend on map ordering.
func SelectKeys(start ParamSet, species []Species, ignore []Property) (Keys, error) {
	sps := make([]Species, 0, len(species))
	seen := make(map[Species]bool, len(species))
	for _, v := range species {
		if seen[v] {
			continue
		}
		seen[v] = true
		sps = append(sps, v)
	}
	sort.Slice(sps, func(i, j int) bool { return sps[i] < sps[j] })
	skip := make(map[Property]bool, len(ignore))
	for _, v := range ignore {
		skip[v] = true
	}
	ret := make(Keys, 0, 10*len(sps))
	for _, s := range sps {
		props, ok := start[s]
		if !ok {
			return nil, fmt.Errorf("semifit/SelectKeys: no start parameters for species %s", s)
		}
		for p := Property(0); p < numProperties; p++ {
			if skip[p] {
				continue
			}
			if _, ok := props[p]; ok {
				ret = append(ret, Key{s, p})
			}
		}
	}
	return ret, nil
}
