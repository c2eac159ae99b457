/*
 * dataset.go, part of semifit.
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

package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rmera/semifit"
)

//Query selects a window of rows of a reference file.
type Query struct {
	DataFile string //CSV file with a header row
	XYZDir   string //directory with one <name>.xyz file per row
	Offset   int    //first row (0-based, not counting the header)
	Size     int    //number of rows. 0 or less means all the rows from Offset on
	//Column is the name of the column with the reference energies. If empty, the
	//second column is used.
	Column string
}

//Dataset is a batch of molecules with their reference energies, in kcal/mol.
//Names, Reference and Batch are positional.
type Dataset struct {
	Names     []string
	Reference []float64
	Batch     semifit.Batch
}

//Len returns the number of molecules in the set.
func (D *Dataset) Len() int { return len(D.Names) }

//Subset returns a new dataset with the molecules with indexes idx, in that order.
//The molecules are shared with D.
func (D *Dataset) Subset(idx []int) *Dataset {
	ret := &Dataset{
		Names:     make([]string, len(idx)),
		Reference: make([]float64, len(idx)),
		Batch:     D.Batch.Subset(idx),
	}
	for i, v := range idx {
		ret.Names[i] = D.Names[v]
		ret.Reference[i] = D.Reference[v]
	}
	return ret
}

//columns returns the index of the name and the reference columns in header.
func columns(header []string, column string) (name, ref int, err error) {
	name, ref = -1, -1
	for i, v := range header {
		v = strings.TrimSpace(v)
		switch {
		case v == "name":
			name = i
		case column != "" && v == column:
			ref = i
		}
	}
	if name < 0 {
		return 0, 0, errors.New("no 'name' column")
	}
	if ref < 0 && column != "" {
		return 0, 0, fmt.Errorf("no %q column", column)
	}
	if ref < 0 {
		if len(header) < 2 {
			return 0, 0, errors.New("no reference column")
		}
		ref = 1
	}
	if ref == name {
		return 0, 0, errors.New("the reference column can't be the name column")
	}
	return name, ref, nil
}

//Load reads the rows of the reference file selected by q, and one molecule per row from the
//XYZ directory. All molecules are taken as neutral, and their title is their name. A window
//that goes past the end of the file is cut at the end, but an empty window is an error.
func Load(q Query) (*Dataset, error) {
	errid := "dataset/Load"
	if q.Offset < 0 {
		return nil, fmt.Errorf("%s: negative offset %d", errid, q.Offset)
	}
	f, err := os.Open(q.DataFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: %s: reading header: %w", errid, q.DataFile, err)
	}
	namecol, refcol, err := columns(header, q.Column)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errid, q.DataFile, err)
	}
	D := &Dataset{}
	for row := 0; q.Size <= 0 || row < q.Offset+q.Size; row++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", errid, q.DataFile, err)
		}
		if row < q.Offset {
			continue
		}
		name := strings.TrimSpace(rec[namecol])
		ref, err := strconv.ParseFloat(strings.TrimSpace(rec[refcol]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: row %d (%s): %w", errid, q.DataFile, row, name, err)
		}
		mol, err := semifit.XYZRead(filepath.Join(q.XYZDir, name+".xyz"))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errid, err)
		}
		mol.Title = name
		mol.Charge = 0
		D.Names = append(D.Names, name)
		D.Reference = append(D.Reference, ref)
		D.Batch = append(D.Batch, mol)
	}
	if D.Len() == 0 {
		return nil, fmt.Errorf("%s: %s: no rows from offset %d", errid, q.DataFile, q.Offset)
	}
	return D, nil
}
