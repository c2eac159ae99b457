/*
 * input.go, part of semifit.
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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rmera/semifit"
)

//DefaultMethod is the semi-empirical method used if none is given.
const DefaultMethod = "PM3"

//header for each molecule. 1SCF gives a single point, iparok=1 makes the program
//read the parameters from fort.14 and nextmol=-1 makes it continue with the next
//molecule in the same input.
const header = "%s 1SCF MULLIK PRECISE charge=%d iparok=1 jprint=5\nnextmol=-1\nTITLE %s\n"

//BuildInput writes an input for all the molecules in B, using method, to w.
//Each molecule is a header, one line per atom with its atomic number and
//coordinates (none of them optimized) and an empty line.
func BuildInput(w io.Writer, B semifit.Batch, method string) error {
	if method == "" {
		method = DefaultMethod
	}
	method = strings.ToUpper(method)
	for i, mol := range B {
		if err := mol.Corrupted(); err != nil {
			return fmt.Errorf("mndo/BuildInput: molecule %d: %w", i, err)
		}
		title := strings.TrimSpace(mol.Title)
		if title == "" {
			title = strconv.Itoa(i)
		}
		if _, err := fmt.Fprintf(w, header, method, mol.Charge, title); err != nil {
			return err
		}
		for j, s := range mol.Species {
			c := mol.Coords.RawRowView(j)
			if _, err := fmt.Fprintf(w, "%3d %15.10f 0 %15.10f 0 %15.10f 0\n", s.Z(), c[0], c[1], c[2]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

//WriteInput writes the input for the molecules in B to the file filename, which is
//overwritten if it exists.
func WriteInput(filename string, B semifit.Batch, method string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("mndo/WriteInput: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := BuildInput(w, B, method); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
