// Package batch slices an ordered sequence into fixed-size groups.
package batch

import (
	"iter"
	"slices"

	"github.com/cuongbtq/replay-tools/internal/replay/domain"
)

// Slices returns a lazy sequence of batches holding at most size elements each. Only the
// final batch may be shorter. Concatenating the batches reproduces seq in order.
func Slices[T any](seq iter.Seq[T], size int) (iter.Seq[[]T], error) {
	if size <= 0 {
		return nil, domain.NewConfigError("batchsize", "must be greater than 0, got %d", size)
	}

	return func(yield func([]T) bool) {
		buf := make([]T, 0, size)
		for v := range seq {
			buf = append(buf, v)
			if len(buf) < size {
				continue
			}
			if !yield(buf) {
				return
			}
			buf = make([]T, 0, size)
		}
		if len(buf) > 0 {
			yield(buf)
		}
	}, nil
}

// Of batches an in-memory slice
func Of[T any](items []T, size int) (iter.Seq[[]T], error) {
	return Slices(slices.Values(items), size)
}

// Count returns the number of batches n items produce with the given size
func Count(n, size int) int {
	if size <= 0 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
