/*
 * properties.go, part of semifit.
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

import "math"

//EnergyKey is the name of the one property every oracle result must have.
const EnergyKey = "energy"

//Properties contains the properties the oracle reports for one molecule. It always contains
//an "energy" entry, which is NaN if the oracle failed for that molecule. Other entries depend on
//the oracle and are passed through.
type Properties map[string]float64

//Failed returns the properties reported for a molecule the oracle failed on.
func Failed() Properties {
	return Properties{EnergyKey: math.NaN()}
}

//Energy returns the energy, or NaN if there is none.
func (P Properties) Energy() float64 {
	e, ok := P[EnergyKey]
	if !ok {
		return math.NaN()
	}
	return e
}

//Energies returns the energy for each element of props.
func Energies(props []Properties) []float64 {
	ret := make([]float64, len(props))
	for i, v := range props {
		ret[i] = v.Energy()
	}
	return ret
}
