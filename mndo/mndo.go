/*
 * mndo.go, part of semifit.
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

//In order to use this part of the library you need an MNDO-family program (MNDO99, MNDO2005 or
//a program that reads the same input and parameter files), which must be obtained independently.

package mndo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rmera/semifit"
)

//ParamFile is the name of the file the program reads parameters from
//when run with iparok=1.
const ParamFile = "fort.14"

//Handle runs an MNDO-style program. The defaults might change
//with new versions, so they are not part of the API.
type Handle struct {
	command   string
	args      []string
	timeout   time.Duration
	molecules int
	tail      int
	log       *zap.Logger
}

//NewHandle initializes and returns a handle with values set to their defaults.
func NewHandle() *Handle {
	run := new(Handle)
	run.SetDefaults()
	return run
}

//SetDefaults sets the handle options to their defaults.
func (O *Handle) SetDefaults() {
	O.command = os.ExpandEnv("mndo")
	O.args = nil
	O.timeout = 10 * time.Minute
	O.molecules = 0
	O.tail = 10
	O.log = zap.NewNop()
}

//Command returns the path and name for the program executable.
func (O *Handle) Command() string {
	return O.command
}

//SetCommand sets the path and name for the program executable, plus any arguments
//to be given to it. Relative paths are made absolute, since the program is run in the
//workspace directory, not in the current one.
func (O *Handle) SetCommand(name string, args ...string) {
	if strings.ContainsRune(name, filepath.Separator) && !filepath.IsAbs(name) {
		if abs, err := filepath.Abs(name); err == nil {
			name = abs
		}
	}
	O.command = name
	O.args = args
}

//SetTimeout sets the maximum time a run can take. A value <=0 means no limit.
func (O *Handle) SetTimeout(t time.Duration) {
	O.timeout = t
}

//SetMolecules sets the number of molecules in the input. If n>0 the results of a run are
//padded with failed molecules, or truncated, to have exactly n elements.
func (O *Handle) SetMolecules(n int) {
	O.molecules = n
}

//SetLogger sets the logger for the handle.
func (O *Handle) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	O.log = l
}

//Calculate writes the parameters P to the workspace wrkdir, runs the program in wrkdir
//with the molecule input file inputname (which must be already in wrkdir) as standard input,
//and returns the properties for each molecule. Molecules whose output can't be parsed get
//a NaN energy. A failed run is an error only if no molecule could be parsed.
func (O *Handle) Calculate(ctx context.Context, P semifit.ParamSet, wrkdir, inputname string) ([]semifit.Properties, error) {
	errid := "mndo.Handle/Calculate"
	if err := WriteParams(filepath.Join(wrkdir, ParamFile), P); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	out, runErr := O.run(ctx, wrkdir, inputname)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	blocks, err := SplitBlocks(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	props := make([]semifit.Properties, 0, len(blocks))
	parsed := 0
	for i, b := range blocks {
		p, err := ParseBlock(b)
		if err != nil {
			O.log.Debug("unparseable output block", zap.String("dir", wrkdir), zap.Error(&semifit.ParseError{Block: i, Err: err}))
			p = semifit.Failed()
		} else {
			parsed++
		}
		props = append(props, p)
	}
	if runErr != nil {
		oerr := &semifit.OracleError{
			Command:  O.command,
			Dir:      wrkdir,
			ExitCode: -1,
			Tail:     tail(out, O.tail),
			Err:      runErr,
		}
		var exitErr *exec.ExitError
		timedOut := errors.Is(runErr, context.DeadlineExceeded)
		if errors.As(runErr, &exitErr) && !timedOut {
			oerr.ExitCode = exitErr.ExitCode()
		}
		if parsed == 0 || timedOut {
			return nil, fmt.Errorf("%s: %w", errid, oerr)
		}
		O.log.Warn("program failed, using partial output", zap.Int("parsed", parsed), zap.Int("blocks", len(blocks)), zap.Error(oerr))
	}
	if O.molecules > 0 {
		if len(props) != O.molecules {
			O.log.Debug("unexpected number of output blocks", zap.Int("blocks", len(props)), zap.Int("expected", O.molecules))
		}
		for len(props) < O.molecules {
			props = append(props, semifit.Failed())
		}
		props = props[:O.molecules]
	}
	return props, nil
}

//run runs the program and returns its combined standard output and error.
func (O *Handle) run(ctx context.Context, wrkdir, inputname string) ([]byte, error) {
	in, err := os.Open(filepath.Join(wrkdir, inputname))
	if err != nil {
		return nil, err
	}
	defer in.Close()
	if O.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, O.timeout)
		defer cancel()
	}
	command := exec.CommandContext(ctx, O.command, O.args...)
	command.Dir = wrkdir
	command.Stdin = in
	var out bytes.Buffer
	command.Stdout = &out
	command.Stderr = &out
	//children of the program could keep the output open after it is killed.
	command.WaitDelay = 2 * time.Second
	start := time.Now()
	err = command.Run()
	O.log.Debug("program run", zap.String("dir", wrkdir), zap.Duration("took", time.Since(start)), zap.Error(err))
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return out.Bytes(), err
}

//WriteParams writes the parameter set P to filename in the format read by the program:
//one parameter per line, with its name, the element symbol and its value.
func WriteParams(filename string, P semifit.ParamSet) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := EncodeParams(w, P); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

//EncodeParams writes P to w in the parameter file format. The species are written
//in order of atomic number and the parameters in the order of the semifit.Property constants.
func EncodeParams(w io.Writer, P semifit.ParamSet) error {
	sps := P.Species()
	sort.Slice(sps, func(i, j int) bool { return sps[i] < sps[j] })
	for _, s := range sps {
		m := P[s]
		props := make([]semifit.Property, 0, len(m))
		for p := range m {
			props = append(props, p)
		}
		sort.Slice(props, func(i, j int) bool { return props[i] < props[j] })
		for _, p := range props {
			if _, err := fmt.Fprintf(w, "%-8s %-2s %15.11f\n", p, s, m[p]); err != nil {
				return err
			}
		}
	}
	return nil
}

//tail returns the last n lines of out.
func tail(out []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
