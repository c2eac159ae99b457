/*
 * output.go, part of semifit.
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
	"strconv"
	"strings"

	"github.com/rmera/semifit"
)

//Markers in the output. A molecule's block ends with the line
//reporting its computation time. The statistics section after the
//last molecule is not part of any block.
const (
	blockEnd  = "COMPUTATION TIME"
	outputEnd = "STATISTICS FOR RUNS WITH MANY MOLECULES"
)

//SplitBlocks reads the program output from r and returns it as one slice of lines
//per molecule. Lines after the last block terminator (for instance, from a molecule for which the
//program crashed) form one last block.
func SplitBlocks(r io.Reader) ([][]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	blocks := make([][]string, 0, 10)
	current := make([]string, 0, 100)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, outputEnd) {
			break
		}
		current = append(current, line)
		if strings.Contains(line, blockEnd) {
			blocks = append(blocks, current)
			current = make([]string, 0, 100)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mndo/SplitBlocks: %w", err)
	}
	if len(current) > 0 && !blank(current) {
		blocks = append(blocks, current)
	}
	return blocks, nil
}

func blank(lines []string) bool {
	for _, v := range lines {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

//the properties read from each block, with the text that marks their lines.
var blockFields = []struct {
	name   string
	marker string
}{
	{semifit.EnergyKey, "SCF BINDING ENERGY"},
	{"heat_of_formation", "SCF HEAT OF FORMATION"},
	{"total_energy", "SCF TOTAL ENERGY"},
	{"electronic_energy", "ELECTRONIC ENERGY"},
	{"ionization_energy", "IONIZATION ENERGY"},
}

//ParseBlock extracts the properties of a molecule from its output block.
//Only the energy is compulsory: if it is not found, semifit.ErrNoEnergy is returned.
//Energies given in eV are converted to kcal/mol. When a marker appears more than once
//in the block, the last appearance is used.
func ParseBlock(lines []string) (semifit.Properties, error) {
	ret := make(semifit.Properties, len(blockFields)+1)
	for _, f := range blockFields {
		i := searchBackwards(lines, f.marker)
		if i < 0 {
			continue
		}
		v, err := parseValue(lines[i], f.marker)
		if err != nil {
			if f.name == semifit.EnergyKey {
				return nil, fmt.Errorf("%w: %v", semifit.ErrNoEnergy, err)
			}
			continue
		}
		ret[f.name] = v
	}
	if _, ok := ret[semifit.EnergyKey]; !ok {
		return nil, semifit.ErrNoEnergy
	}
	if d, ok := dipole(lines); ok {
		ret["dipole"] = d
	}
	return ret, nil
}

//searchBackwards returns the index of the last line in lines that contains str, or -1.
func searchBackwards(lines []string, str string) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], str) {
			return i
		}
	}
	return -1
}

//parseValue returns the first number after marker in line. If the number is followed
//by "EV" it is converted to kcal/mol.
func parseValue(line, marker string) (float64, error) {
	i := strings.Index(line, marker)
	fields := strings.Fields(strings.ReplaceAll(line[i+len(marker):], "=", " "))
	for j, f := range fields {
		v, err := parseFloat(f)
		if err != nil {
			continue
		}
		if j+1 < len(fields) && strings.EqualFold(fields[j+1], "EV") {
			v *= semifit.EV2Kcal
		}
		return v, nil
	}
	return 0, fmt.Errorf("no number in line %q", strings.TrimSpace(line))
}

//parseFloat parses a number that could use a Fortran D exponent.
func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(strings.Replace(s, "D", "E", 1), "d", "e", 1), 64)
}

//dipole returns the total dipole moment, which is the last number in the
//SUM line of the last dipole table in the block.
func dipole(lines []string) (float64, bool) {
	i := searchBackwards(lines, "DIPOLE")
	if i < 0 {
		return 0, false
	}
	for _, l := range lines[i+1:] {
		fields := strings.Fields(l)
		if len(fields) < 2 || fields[0] != "SUM" {
			continue
		}
		v, err := parseFloat(fields[len(fields)-1])
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
