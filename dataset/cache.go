/*
 * cache.go, part of semifit.
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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/rmera/semifit"
)

const cacheExt = ".json.zst"

//Cache keeps loaded datasets on disk, so later runs with the same query don't need to read
//the XYZ files again. Entries are keyed by the query: the reference file, the XYZ directory,
//the offset, the size and the column. An entry is never invalidated automatically, not even if
//the files it was built from change; use Invalidate or Purge for that.
type Cache struct {
	dir string
	log *zap.Logger
}

//NewCache returns a cache that stores its entries in dir, which is created when needed.
func NewCache(dir string, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{dir: dir, log: log}
}

//Dir returns the cache directory.
func (C *Cache) Dir() string { return C.dir }

//canonical returns q with absolute paths, so the same files give the same key
//from any working directory.
func canonical(q Query) Query {
	if abs, err := filepath.Abs(q.DataFile); err == nil {
		q.DataFile = abs
	}
	if abs, err := filepath.Abs(q.XYZDir); err == nil {
		q.XYZDir = abs
	}
	if q.Size < 0 {
		q.Size = 0
	}
	return q
}

//Key returns the digest that identifies q in the cache.
func Key(q Query) string {
	q = canonical(q)
	s := strings.Join([]string{q.DataFile, q.XYZDir, strconv.Itoa(q.Offset), strconv.Itoa(q.Size), q.Column}, "\x00")
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

func (C *Cache) path(q Query) string {
	return filepath.Join(C.dir, Key(q)+cacheExt)
}

//entry is the form in which a dataset is stored.
type entry struct {
	Query     Query      `json:"query"`
	Names     []string   `json:"names"`
	Reference []float64  `json:"reference"`
	Molecules []molecule `json:"molecules"`
}

type molecule struct {
	Species []semifit.Species `json:"species"`
	Coords  []float64         `json:"coords"`
	Charge  int               `json:"charge"`
	Title   string            `json:"title"`
}

func toEntry(q Query, D *Dataset) *entry {
	e := &entry{Query: q, Names: D.Names, Reference: D.Reference, Molecules: make([]molecule, len(D.Batch))}
	for i, m := range D.Batch {
		coords := make([]float64, 0, 3*m.Len())
		for j := 0; j < m.Len(); j++ {
			coords = append(coords, m.Coords.RawRowView(j)...)
		}
		e.Molecules[i] = molecule{Species: m.Species, Coords: coords, Charge: m.Charge, Title: m.Title}
	}
	return e
}

func (E *entry) dataset() (*Dataset, error) {
	if len(E.Names) != len(E.Reference) || len(E.Names) != len(E.Molecules) {
		return nil, errors.New("inconsistent entry")
	}
	D := &Dataset{Names: E.Names, Reference: E.Reference, Batch: make(semifit.Batch, len(E.Molecules))}
	for i, m := range E.Molecules {
		if len(m.Coords) != 3*len(m.Species) || len(m.Species) == 0 {
			return nil, fmt.Errorf("molecule %d: %d coordinates for %d atoms", i, len(m.Coords), len(m.Species))
		}
		D.Batch[i] = &semifit.Molecule{
			Species: m.Species,
			Coords:  mat.NewDense(len(m.Species), 3, m.Coords),
			Charge:  m.Charge,
			Title:   m.Title,
		}
	}
	return D, nil
}

func (C *Cache) read(q Query) (*Dataset, error) {
	f, err := os.Open(C.path(q))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	var e entry
	if err := json.NewDecoder(dec).Decode(&e); err != nil {
		return nil, err
	}
	if e.Query != q {
		return nil, fmt.Errorf("entry is for a different query (%s, offset %d, size %d)", e.Query.DataFile, e.Query.Offset, e.Query.Size)
	}
	return e.dataset()
}

func (C *Cache) write(q Query, D *Dataset) error {
	if err := os.MkdirAll(C.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(C.dir, "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := json.NewEncoder(enc).Encode(toEntry(q, D)); err != nil {
		enc.Close()
		tmp.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), C.path(q))
}

//Load returns the dataset for q from the cache, or loads it with Load and stores it in the
//cache if it is not there. The boolean is true if the dataset came from the cache. An entry
//that can't be read is replaced.
func (C *Cache) Load(q Query) (*Dataset, bool, error) {
	errid := "dataset/Cache.Load"
	q = canonical(q)
	D, err := C.read(q)
	if err == nil {
		C.log.Debug("dataset from cache", zap.String("key", Key(q)), zap.Int("molecules", D.Len()))
		return D, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		C.log.Warn("unusable cache entry, reloading", zap.String("path", C.path(q)), zap.Error(err))
	}
	D, err = Load(q)
	if err != nil {
		return nil, false, err
	}
	if err := C.write(q, D); err != nil {
		return nil, false, fmt.Errorf("%s: %w", errid, err)
	}
	C.log.Debug("dataset cached", zap.String("key", Key(q)), zap.Int("molecules", D.Len()))
	return D, false, nil
}

//Invalidate removes the entry for q, if there is one.
func (C *Cache) Invalidate(q Query) error {
	err := os.Remove(C.path(q))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("dataset/Cache.Invalidate: %w", err)
	}
	return nil
}

//Purge removes every entry in the cache.
func (C *Cache) Purge() error {
	matches, err := filepath.Glob(filepath.Join(C.dir, "*"+cacheExt))
	if err != nil {
		return fmt.Errorf("dataset/Cache.Purge: %w", err)
	}
	for _, v := range matches {
		if err := os.Remove(v); err != nil {
			return fmt.Errorf("dataset/Cache.Purge: %w", err)
		}
	}
	return nil
}
