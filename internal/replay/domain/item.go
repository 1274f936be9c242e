package domain

import "strings"

// keySeparator is the ASCII unit separator, which does not occur in ids, hosts or uuids
const keySeparator = "\x1f"

// WorkItem is one unit of remote work, identified by an ordered tuple of field values
type WorkItem struct {
	values []string
}

// NewWorkItem creates a WorkItem from the given field values
func NewWorkItem(values ...string) WorkItem {
	v := make([]string, len(values))
	copy(v, values)
	return WorkItem{values: v}
}

// Values returns a copy of the item's field values
func (w WorkItem) Values() []string {
	v := make([]string, len(w.values))
	copy(v, w.values)
	return v
}

// Value returns the i-th field value, or "" when out of range
func (w WorkItem) Value(i int) string {
	if i < 0 || i >= len(w.values) {
		return ""
	}
	return w.values[i]
}

// Len returns the number of key fields
func (w WorkItem) Len() int {
	return len(w.values)
}

// Key returns the identity of the item. Two items are equal iff their keys are equal.
func (w WorkItem) Key() string {
	return strings.Join(w.values, keySeparator)
}

// Equal compares the full field tuple
func (w WorkItem) Equal(other WorkItem) bool {
	return w.Key() == other.Key()
}

// String renders the tuple for logs
func (w WorkItem) String() string {
	return "(" + strings.Join(w.values, ",") + ")"
}

// Record is one checkpoint row: a processed item and its outcome
type Record struct {
	Item   WorkItem
	Status Status
}

// Row renders the record as CSV fields: key fields followed by status
func (r Record) Row() []string {
	return append(r.Item.Values(), string(r.Status))
}

// ItemSet is a set of work items keyed by their full field tuple
type ItemSet map[string]struct{}

// Add inserts the item and reports whether it was newly added
func (s ItemSet) Add(item WorkItem) bool {
	k := item.Key()
	if _, ok := s[k]; ok {
		return false
	}
	s[k] = struct{}{}
	return true
}

// Contains reports whether the item is in the set
func (s ItemSet) Contains(item WorkItem) bool {
	_, ok := s[item.Key()]
	return ok
}
