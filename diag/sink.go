/*
 * sink.go, part of semifit.
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

package diag

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

//Sink receives the scalar diagnostics of each step of a run.
type Sink interface {
	Record(step int, scalars map[string]float64) error
	Close() error
}

//RunDir returns the directory for a run of the given kind started at t, under root.
func RunDir(root, kind string, t time.Time) string {
	return filepath.Join(root, kind, t.Format("2006.01.02-15:04:05"))
}

type discard struct{}

func (discard) Record(int, map[string]float64) error { return nil }
func (discard) Close() error                         { return nil }

//Discard is a Sink that does nothing.
var Discard Sink = discard{}

type multi []Sink

//Multi returns a sink that records to all the given sinks. Every sink gets every
//record even if some of them fail.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (M multi) Record(step int, scalars map[string]float64) error {
	var errs []error
	for _, s := range M {
		errs = append(errs, s.Record(step, scalars))
	}
	return errors.Join(errs...)
}

func (M multi) Close() error {
	var errs []error
	for _, s := range M {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

//Event is one line of a diagnostics file.
type Event struct {
	Step    int                `json:"step"`
	Time    time.Time          `json:"time"`
	Scalars map[string]float64 `json:"-"`
}

//jsonFloat is a float64 that can also be NaN or infinite in JSON, where it is written as a string.
type jsonFloat float64

func (F jsonFloat) MarshalJSON() ([]byte, error) {
	f := float64(F)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte(strconv.Quote(strconv.FormatFloat(f, 'g', -1, 64))), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func (F *jsonFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*F = jsonFloat(f)
	return nil
}

type wireEvent struct {
	Step    int                  `json:"step"`
	Time    time.Time            `json:"time"`
	Scalars map[string]jsonFloat `json:"scalars"`
}

//FileSink writes one JSON object per record to a file. If the file name ends in ".zst", the
//file is compressed with zstd. It is safe for concurrent use.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	zw   *zstd.Encoder
	w    *bufio.Writer
	enc  *json.Encoder
	name string
}

//NewFileSink creates the file name, and any missing parent directories, and returns a sink
//that writes to it.
func NewFileSink(name string) (*FileSink, error) {
	errid := "diag/NewFileSink"
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	S := &FileSink{f: f, name: name}
	var w io.Writer = f
	if strings.HasSuffix(name, ".zst") {
		S.zw, err = zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", errid, err)
		}
		w = S.zw
	}
	S.w = bufio.NewWriter(w)
	S.enc = json.NewEncoder(S.w)
	return S, nil
}

//Name returns the name of the file.
func (S *FileSink) Name() string { return S.name }

//Record writes one event.
func (S *FileSink) Record(step int, scalars map[string]float64) error {
	ev := wireEvent{Step: step, Time: time.Now(), Scalars: make(map[string]jsonFloat, len(scalars))}
	for k, v := range scalars {
		ev.Scalars[k] = jsonFloat(v)
	}
	S.mu.Lock()
	defer S.mu.Unlock()
	if S.enc == nil {
		return fmt.Errorf("diag/FileSink.Record: %s: sink closed", S.name)
	}
	if err := S.enc.Encode(ev); err != nil {
		return fmt.Errorf("diag/FileSink.Record: %w", err)
	}
	return S.w.Flush()
}

//Close flushes everything and closes the file.
func (S *FileSink) Close() error {
	S.mu.Lock()
	defer S.mu.Unlock()
	if S.enc == nil {
		return nil
	}
	S.enc = nil
	errs := []error{S.w.Flush()}
	if S.zw != nil {
		errs = append(errs, S.zw.Close())
	}
	errs = append(errs, S.f.Close())
	return errors.Join(errs...)
}

//ReadEvents reads all the events in a file written by a FileSink.
func ReadEvents(name string) ([]Event, error) {
	errid := "diag/ReadEvents"
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errid, err)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(name, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errid, err)
		}
		defer zr.Close()
		r = zr
	}
	var ret []Event
	dec := json.NewDecoder(r)
	for {
		var ev wireEvent
		err := dec.Decode(&ev)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ret, fmt.Errorf("%s: %s: event %d: %w", errid, name, len(ret), err)
		}
		e := Event{Step: ev.Step, Time: ev.Time, Scalars: make(map[string]float64, len(ev.Scalars))}
		for k, v := range ev.Scalars {
			e.Scalars[k] = float64(v)
		}
		ret = append(ret, e)
	}
	return ret, nil
}
