// Package missing records symbols for which no price series could be
// obtained.
package missing

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/newthinker/pitval/internal/core"
)

// Entry describes one failed resolution
type Entry struct {
	Symbol     string
	Key        string // mapping key tried, e.g. ":US", ".DE" or "domestic"
	Source     string
	Candidates []string
}

// Log is an append-only side channel for missing symbols
type Log interface {
	Record(ctx context.Context, e Entry) error
}

var header = []string{"symbol", "mapping_key", "source", "candidates"}

// CSVLog appends entries to a CSV file
type CSVLog struct {
	mu   sync.Mutex
	path string
}

// NewCSVLog prepares path, writing the header when the file is new or
// empty
func NewCSVLog(path string) (*CSVLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if err != nil || info.Size() == 0 {
		if err := appendRows(path, header); err != nil {
			return nil, err
		}
	}
	return &CSVLog{path: path}, nil
}

func (l *CSVLog) Record(ctx context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := []string{e.Symbol, e.Key, e.Source, strings.Join(e.Candidates, ";")}
	if err := appendRows(l.path, row); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	return nil
}

func appendRows(path string, rows ...[]string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// MemoryLog keeps entries in memory
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *MemoryLog) Record(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of the recorded entries
func (m *MemoryLog) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
