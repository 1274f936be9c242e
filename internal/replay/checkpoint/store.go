// Package checkpoint persists per-item outcomes in an append-only CSV file so that
// interrupted or halted runs can be resumed with the same output file.
package checkpoint

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cuongbtq/replay-tools/internal/replay/domain"
)

// Set is the skip-set rebuilt from a checkpoint file
type Set struct {
	statuses  map[string]domain.Status
	rows      int
	malformed int
}

// NewSet creates an empty Set
func NewSet() *Set {
	return &Set{statuses: make(map[string]domain.Status)}
}

// Contains reports whether the item has been recorded with any status
func (s *Set) Contains(item domain.WorkItem) bool {
	_, ok := s.statuses[item.Key()]
	return ok
}

// Status returns the last recorded status of the item
func (s *Set) Status(item domain.WorkItem) (domain.Status, bool) {
	st, ok := s.statuses[item.Key()]
	return st, ok
}

// Len returns the number of distinct recorded items
func (s *Set) Len() int {
	return len(s.statuses)
}

// Rows returns the number of rows read, including duplicates
func (s *Set) Rows() int {
	return s.rows
}

// Malformed returns the number of rows that were skipped while loading
func (s *Set) Malformed() int {
	return s.malformed
}

func (s *Set) add(item domain.WorkItem, status domain.Status) {
	s.statuses[item.Key()] = status
	s.rows++
}

// Load reads every row of the checkpoint file at path. A missing or empty file yields an
// empty set. Rows with fewer than len(fields) values and header rows are skipped. Rows
// without a status column, as added by hand to skip an item, still count as processed.
func Load(path string, fields []string) (*Set, error) {
	set := NewSet()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return set, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer f.Close()

	if err := set.read(f, fields); err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file %s: %w", path, err)
	}

	return set, nil
}

// byteOrderMark is prepended by spreadsheet CSV exports
const byteOrderMark = "\ufeff"

func (s *Set) read(r io.Reader, fields []string) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	for first := true; ; first = false {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				s.malformed++
				continue
			}
			return err
		}

		if first && len(row) > 0 {
			row[0] = strings.TrimPrefix(row[0], byteOrderMark)
		}

		if len(row) < len(fields) {
			s.malformed++
			continue
		}

		values := make([]string, len(fields))
		header := true
		for i, field := range fields {
			values[i] = strings.TrimSpace(row[i])
			if values[i] != field {
				header = false
			}
		}
		if header {
			continue
		}

		status := domain.StatusSuccess
		if len(row) > len(fields) {
			if st := domain.Status(strings.TrimSpace(row[len(fields)])); st != "" {
				status = st
			}
		}
		s.add(domain.NewWorkItem(values...), status)
	}
}

// Store appends records to a checkpoint file. It assumes a single writer.
type Store struct {
	path string
}

// NewStore creates a Store writing to path. The file is created on first append.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file path
func (s *Store) Path() string {
	return s.path
}

// Append writes one row per record and syncs the file before returning, so the rows
// survive the process being killed immediately afterwards.
func (s *Store) Append(_ context.Context, records ...domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint file: %w", err)
	}

	if err := terminateLastLine(f); err != nil {
		f.Close()
		return err
	}

	if err := write(f, records); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	return nil
}

// terminateLastLine adds the newline a hand edited file may be missing, so the
// next row does not merge into its last line.
func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat checkpoint file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}

	if _, err := f.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

func write(f *os.File, records []domain.Record) error {
	w := csv.NewWriter(f)
	for _, rec := range records {
		if err := w.Write(rec.Row()); err != nil {
			return fmt.Errorf("failed to write checkpoint row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush checkpoint rows: %w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	return nil
}
