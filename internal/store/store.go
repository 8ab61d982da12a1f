// Package store persists experiment snapshots to the filesystem.
//
// Each lab run gets its own directory named after its start time. Inside it,
// every experiment has a directory holding snapshot.yaml (the full snapshot)
// and results.csv (the finished trajectory, one row per step).
package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/ho/v2"
)

// FileStore implements ho.Persister on a directory tree.
type FileStore struct {
	dir string

	// mu serializes writes so concurrent persists of the same experiment
	// never interleave their renames.
	mu sync.Mutex
}

var _ ho.Persister = (*FileStore)(nil)

// New creates the run directory base/<start time> and returns a store
// writing into it.
func New(base string, start time.Time) (*FileStore, error) {
	dir := filepath.Join(base, start.UTC().Format("2006-01-02_15-04-05"))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the run directory.
func (s *FileStore) Dir() string { return s.dir }

// Persist writes the snapshot and the trajectory of one experiment.
func (s *FileStore) Persist(ctx context.Context, snap ho.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, experimentDir(snap))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create experiment directory: %w", err)
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, "snapshot.yaml"), data); err != nil {
		return err
	}

	var b strings.Builder
	if err := writeCSV(&b, snap); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	return writeAtomic(filepath.Join(dir, "results.csv"), []byte(b.String()))
}

// Load reads back a snapshot written by Persist.
func (s *FileStore) Load(idOrName string) (ho.Snapshot, error) {
	var snap ho.Snapshot

	data, err := os.ReadFile(filepath.Join(s.dir, idOrName, "snapshot.yaml"))
	if err != nil {
		return snap, fmt.Errorf("read snapshot: %w", err)
	}

	if err := yaml.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse snapshot: %w", err)
	}

	return snap, nil
}

func experimentDir(snap ho.Snapshot) string {
	name := snap.ID
	if name == "" {
		name = snap.Name
	}

	return strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(name)
}

// writeCSV writes one row per finished candidate: step, result, best so far,
// validity, cost and the params in sorted name order.
func writeCSV(b *strings.Builder, snap ho.Snapshot) error {
	names := make([]string, 0, len(snap.Parameters))
	for name := range snap.Parameters {
		names = append(names, name)
	}

	sort.Strings(names)

	w := csv.NewWriter(b)

	header := append([]string{"step", "result", "best_result", "valid", "cost"}, names...)
	if err := w.Write(header); err != nil {
		return err
	}

	best := map[int]float64{}
	for _, s := range snap.BestResultPerStep() {
		best[s.Step] = s.BestResult
	}

	for i, c := range snap.Finished {
		row := []string{strconv.Itoa(i + 1), "", "", strconv.FormatBool(c.Valid), formatFloat(c.Cost)}

		if c.Result != nil {
			row[1] = formatFloat(*c.Result)
		}

		if v, ok := best[i+1]; ok {
			row[2] = formatFloat(v)
		}

		for _, name := range names {
			row = append(row, fmt.Sprint(c.Params[name]))
		}

		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()

	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("rename %s: %w", path, err)
	}

	return nil
}
