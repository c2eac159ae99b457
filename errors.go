/*
 * errors.go, part of semifit.
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
	"errors"
	"fmt"
)

//Errors
//
//Four kinds of errors can happen while fitting. ParseErrors concern a single molecule
//and are recovered locally (the molecule gets a NaN energy, the loss a penalty). OracleErrors
//concern a whole call to the external program and are passed up, wrapped in a BatchError by the
//pool so the caller knows which parameter vector failed. CodecErrors are broken preconditions
//(a key without a scale, a zero scale) and are always fatal.

//ErrNoEnergy is wrapped by ParseErrors for blocks where no energy could be found.
var ErrNoEnergy = errors.New("no energy in output block")

//CodecError is returned when a parameter vector can't be mapped to/from a parameter set.
type CodecError struct {
	Key Key
	Msg string
}

func (E *CodecError) Error() string {
	return fmt.Sprintf("semifit/Codec: %s: %s", E.Key, E.Msg)
}

//ParseError signals that the output block for one molecule could not be parsed.
type ParseError struct {
	Block int //0-based index of the block in the output
	Err   error
}

func (E *ParseError) Error() string {
	return fmt.Sprintf("semifit: can't parse output block %d: %v", E.Block, E.Err)
}

func (E *ParseError) Unwrap() error { return E.Err }

//OracleError signals that a run of the external program failed as a whole.
type OracleError struct {
	Command  string
	Dir      string
	ExitCode int    //-1 if the program didn't exit (timeout, couldn't start)
	Tail     string //last lines of the program's output
	Err      error
}

func (E *OracleError) Error() string {
	msg := fmt.Sprintf("semifit: %s in %s failed (exit code %d): %v", E.Command, E.Dir, E.ExitCode, E.Err)
	if E.Tail != "" {
		msg += "\n" + E.Tail
	}
	return msg
}

func (E *OracleError) Unwrap() error { return E.Err }

//BatchError tags an error with the index, in the batch, of the parameter vector
//that caused it.
type BatchError struct {
	Index int
	Err   error
}

func (E *BatchError) Error() string {
	return fmt.Sprintf("semifit: evaluation of parameter vector %d: %v", E.Index, E.Err)
}

func (E *BatchError) Unwrap() error { return E.Err }
