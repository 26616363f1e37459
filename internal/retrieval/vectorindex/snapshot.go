package vectorindex

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	vectorsFile = "vectors.gob"
	recordsFile = "records.json"
)

type vectorSnapshot struct {
	Metric  Metric
	Dim     int
	Vectors [][]float32
}

// saveSnapshot rewrites both artifacts. Positional correspondence between
// vectors and records is the only link between them, so both are written on
// every upsert. Caller holds the write lock.
func (ix *Index) saveSnapshot() error {
	if ix.dir == "" {
		return nil
	}
	if err := os.MkdirAll(ix.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	if err := writeAtomic(filepath.Join(ix.dir, vectorsFile), func(f *os.File) error {
		return gob.NewEncoder(f).Encode(vectorSnapshot{Metric: ix.metric, Dim: ix.dim, Vectors: ix.vectors})
	}); err != nil {
		return fmt.Errorf("write vectors snapshot: %w", err)
	}
	if err := writeAtomic(filepath.Join(ix.dir, recordsFile), func(f *os.File) error {
		return json.NewEncoder(f).Encode(ix.records)
	}); err != nil {
		return fmt.Errorf("write records snapshot: %w", err)
	}
	return nil
}

func (ix *Index) loadSnapshot() error {
	if ix.dir == "" {
		return nil
	}

	vf, err := os.Open(filepath.Join(ix.dir, vectorsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open vectors snapshot: %w", err)
	}
	defer vf.Close()

	var snap vectorSnapshot
	if err := gob.NewDecoder(vf).Decode(&snap); err != nil {
		return fmt.Errorf("decode vectors snapshot: %w", err)
	}

	rf, err := os.Open(filepath.Join(ix.dir, recordsFile))
	if err != nil {
		return fmt.Errorf("open records snapshot: %w", err)
	}
	defer rf.Close()

	var records []record
	if err := json.NewDecoder(rf).Decode(&records); err != nil {
		return fmt.Errorf("decode records snapshot: %w", err)
	}

	if len(records) != len(snap.Vectors) {
		return fmt.Errorf("snapshot mismatch: %d vectors, %d records; rebuild the index", len(snap.Vectors), len(records))
	}
	if snap.Metric != ix.metric {
		return fmt.Errorf("snapshot metric %q does not match configured %q; rebuild the index", snap.Metric, ix.metric)
	}

	ix.dim = snap.Dim
	ix.vectors = snap.Vectors
	ix.records = records
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
