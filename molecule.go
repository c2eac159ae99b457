/*
 * molecule.go, part of semifit.
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
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

//Molecule is one input structure for the oracle. It is not modified during a fit.
type Molecule struct {
	Species []Species
	Coords  *mat.Dense //len(Species)x3, in Angstrom
	Charge  int
	Title   string
}

//Len returns the number of atoms in the molecule.
func (M *Molecule) Len() int { return len(M.Species) }

//Corrupted returns an error if the molecule is not consistent.
func (M *Molecule) Corrupted() error {
	if M.Coords == nil {
		return fmt.Errorf("semifit/Molecule %s: nil coordinates", M.Title)
	}
	r, c := M.Coords.Dims()
	if r != len(M.Species) || c != 3 {
		return fmt.Errorf("semifit/Molecule %s: %d atoms but %dx%d coordinates", M.Title, len(M.Species), r, c)
	}
	return nil
}

//Batch is the ordered set of molecules in a fit. Its order is the order
//of the reference energies.
type Batch []*Molecule

//Species returns every species present in the batch, each one once.
func (B Batch) Species() []Species {
	seen := make(map[Species]bool)
	ret := make([]Species, 0, 5)
	for _, m := range B {
		for _, s := range m.Species {
			if !seen[s] {
				seen[s] = true
				ret = append(ret, s)
			}
		}
	}
	return ret
}

//Subset returns a batch with the molecules with indexes idx, in that order.
func (B Batch) Subset(idx []int) Batch {
	ret := make(Batch, len(idx))
	for i, v := range idx {
		ret[i] = B[v]
	}
	return ret
}

//XYZRead reads the first structure in the XYZ file xyzname.
//The title of the molecule is the comment line of the file.
func XYZRead(xyzname string) (*Molecule, error) {
	xyzfile, err := os.Open(xyzname)
	if err != nil {
		return nil, fmt.Errorf("semifit/XYZRead: %w", err)
	}
	defer xyzfile.Close()
	mol, err := XYZDecode(xyzfile)
	if err != nil {
		return nil, fmt.Errorf("semifit/XYZRead: %s: %w", xyzname, err)
	}
	return mol, nil
}

//XYZDecode reads one structure in XYZ format from r.
func XYZDecode(r io.Reader) (*Molecule, error) {
	xyz := bufio.NewReader(r)
	line, err := xyz.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("ill formatted XYZ file: %w", err)
	}
	natoms, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || natoms <= 0 {
		return nil, fmt.Errorf("ill formatted XYZ file: bad number of atoms %q", strings.TrimSpace(line))
	}
	title, err := xyz.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	mol := &Molecule{
		Species: make([]Species, natoms),
		Title:   strings.TrimSpace(title),
	}
	coords := make([]float64, natoms*3)
	for i := 0; i < natoms; i++ {
		line, err = xyz.ReadString('\n')
		if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
			return nil, fmt.Errorf("expected %d atoms, found %d", natoms, i)
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("line number %d ill formed: %q", i+3, strings.TrimSpace(line))
		}
		mol.Species[i], err = ParseSpecies(fields[0])
		if err != nil {
			//some programs write atomic numbers instead of symbols
			z, err2 := strconv.Atoi(fields[0])
			if err2 != nil {
				return nil, err
			}
			if mol.Species[i], err = SpeciesFromNumber(z); err != nil {
				return nil, err
			}
		}
		for j := 0; j < 3; j++ {
			//Fortran programs sometimes write exponents with a D
			coords[i*3+j], err = strconv.ParseFloat(strings.Replace(fields[j+1], "D", "E", 1), 64)
			if err != nil {
				return nil, fmt.Errorf("line number %d: %w", i+3, err)
			}
		}
	}
	mol.Coords = mat.NewDense(natoms, 3, coords)
	return mol, nil
}

//XYZEncode writes M in XYZ format to w.
func XYZEncode(w io.Writer, M *Molecule) error {
	if err := M.Corrupted(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%-4d\n%s\n", M.Len(), M.Title); err != nil {
		return err
	}
	for i, s := range M.Species {
		c := M.Coords.RawRowView(i)
		if _, err := fmt.Fprintf(w, "%-2s  %12.6f%12.6f%12.6f\n", s, c[0], c[1], c[2]); err != nil {
			return err
		}
	}
	return nil
}
