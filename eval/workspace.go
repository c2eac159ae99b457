/*
 * workspace.go, part of semifit.
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

package eval

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

//workspace is the scratch directory of one worker slot. Only the worker with the slot's
//ordinal uses it, so it needs no locking.
type workspace struct {
	dir   string
	input string //path to the shared molecule input file
}

//inputName returns the name the shared input file has inside the workspace.
func (W *workspace) inputName() string {
	return filepath.Base(W.input)
}

//acquire creates the workspace directory if needed, and copies the shared input file into
//it unless the copy is already there.
func (W *workspace) acquire() error {
	if err := os.MkdirAll(W.dir, 0o755); err != nil {
		return fmt.Errorf("eval/workspace: %w", err)
	}
	dst := filepath.Join(W.dir, W.inputName())
	if _, err := os.Stat(dst); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("eval/workspace: %w", err)
	}
	if err := copyFile(W.input, dst); err != nil {
		return fmt.Errorf("eval/workspace: copying input: %w", err)
	}
	return nil
}

//destroy removes the workspace and everything in it. It can be called on a
//workspace that was never acquired.
func (W *workspace) destroy() error {
	if err := os.RemoveAll(W.dir); err != nil {
		return fmt.Errorf("eval/workspace: %w", err)
	}
	return nil
}

//copyFile copies src to dst. The copy is written to a temporary name and renamed,
//so a half-written copy is never mistaken for a good one.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
