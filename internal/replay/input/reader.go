// Package input parses operator-supplied CSV files into work items.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/cuongbtq/replay-tools/internal/replay/domain"
)

// Validator checks a single field value
type Validator func(value string) error

// Option configures Read
type Option func(*reader)

// WithValidator attaches a validator to the named field
func WithValidator(field string, v Validator) Option {
	return func(r *reader) {
		r.validators[field] = v
	}
}

// Integer rejects values that are not base-10 integers
func Integer(value string) error {
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return fmt.Errorf("%q is not an integer", value)
	}
	return nil
}

// byteOrderMark is prepended by spreadsheet CSV exports
const byteOrderMark = "\ufeff"

type reader struct {
	fields     []string
	validators map[string]Validator
}

// Read returns a lazy sequence of work items built from the first len(fields) columns of
// each row. A header row whose values equal the field names is skipped. Rows that cannot
// form an item are yielded as *domain.MalformedRowError and iteration continues; any other
// error is yielded once and ends the sequence.
func Read(src io.Reader, fields []string, opts ...Option) iter.Seq2[domain.WorkItem, error] {
	r := &reader{
		fields:     fields,
		validators: make(map[string]Validator),
	}
	for _, opt := range opts {
		opt(r)
	}

	return func(yield func(domain.WorkItem, error) bool) {
		cr := csv.NewReader(src)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true

		for first := true; ; first = false {
			row, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var parseErr *csv.ParseError
				if errors.As(err, &parseErr) {
					malformed := &domain.MalformedRowError{Line: parseErr.Line, Reason: parseErr.Err.Error()}
					if !yield(domain.WorkItem{}, malformed) {
						return
					}
					continue
				}
				yield(domain.WorkItem{}, fmt.Errorf("failed to read input: %w", err))
				return
			}

			if first && len(row) > 0 {
				row[0] = strings.TrimPrefix(row[0], byteOrderMark)
			}

			line, _ := cr.FieldPos(0)
			item, err := r.parse(row, line)
			if err != nil {
				if !yield(domain.WorkItem{}, err) {
					return
				}
				continue
			}
			if r.isHeader(item) {
				continue
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Collect drains a sequence, returning valid items and malformed-row errors separately.
// It stops at the first error that is not a *domain.MalformedRowError.
func Collect(seq iter.Seq2[domain.WorkItem, error]) ([]domain.WorkItem, []*domain.MalformedRowError, error) {
	var items []domain.WorkItem
	var malformed []*domain.MalformedRowError

	for item, err := range seq {
		if err != nil {
			var rowErr *domain.MalformedRowError
			if errors.As(err, &rowErr) {
				malformed = append(malformed, rowErr)
				continue
			}
			return items, malformed, err
		}
		items = append(items, item)
	}

	return items, malformed, nil
}

func (r *reader) parse(row []string, line int) (domain.WorkItem, error) {
	if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
		return domain.WorkItem{}, &domain.MalformedRowError{Line: line, Row: row, Reason: "empty row"}
	}
	if len(row) < len(r.fields) {
		return domain.WorkItem{}, &domain.MalformedRowError{
			Line:   line,
			Row:    row,
			Reason: fmt.Sprintf("expected %d fields (%s), got %d", len(r.fields), strings.Join(r.fields, ","), len(row)),
		}
	}

	values := make([]string, len(r.fields))
	for i, field := range r.fields {
		v := strings.TrimSpace(row[i])
		if v == "" {
			return domain.WorkItem{}, &domain.MalformedRowError{Line: line, Row: row, Reason: fmt.Sprintf("missing %s", field)}
		}
		values[i] = v
	}

	// a header row would fail integer validation
	item := domain.NewWorkItem(values...)
	if r.isHeader(item) {
		return item, nil
	}
	for i, field := range r.fields {
		if validate, ok := r.validators[field]; ok {
			if err := validate(values[i]); err != nil {
				return domain.WorkItem{}, &domain.MalformedRowError{Line: line, Row: row, Reason: fmt.Sprintf("%s: %v", field, err)}
			}
		}
	}

	return item, nil
}

func (r *reader) isHeader(item domain.WorkItem) bool {
	for i, field := range r.fields {
		if item.Value(i) != field {
			return false
		}
	}
	return true
}
