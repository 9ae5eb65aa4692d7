// Package frame is a small eager dataframe: an immutable set of typed rows
// split into partitions. Per-partition work runs on a bounded worker pool;
// operations that need to see all rows with the same key (dedup, join
// build) shuffle or index across partitions first.
//
// Row order inside and across partitions carries no meaning.
package frame

import (
	"runtime"

	"github.com/sourcegraph/conc/iter"
)

// Frame is an immutable, partitioned collection of rows of type T.
// Operations never modify the receiver; they return a new Frame.
type Frame[T any] struct {
	parts   [][]T
	workers int
}

// Option configures a Frame built by FromRows or FromPartitions.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers bounds the number of partitions processed concurrently.
// Values <= 0 mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// FromPartitions wraps already-partitioned rows. The outer slice is
// retained; callers must not modify it afterwards.
func FromPartitions[T any](parts [][]T, opts ...Option) *Frame[T] {
	o := buildOptions(opts)
	if len(parts) == 0 {
		parts = [][]T{nil}
	}
	return &Frame[T]{parts: parts, workers: o.workers}
}

// FromRows splits rows into n contiguous partitions whose sizes differ by
// at most one. n is capped at len(rows); no rows gives one empty partition.
func FromRows[T any](rows []T, n int, opts ...Option) *Frame[T] {
	if len(rows) == 0 {
		return FromPartitions[T](nil, opts...)
	}
	n = max(1, min(n, len(rows)))
	parts := make([][]T, 0, n)
	size, extra := len(rows)/n, len(rows)%n
	start := 0
	for i := range n {
		end := start + size
		if i < extra {
			end++
		}
		parts = append(parts, rows[start:end:end])
		start = end
	}
	return FromPartitions(parts, opts...)
}

// NumPartitions returns the number of partitions.
func (f *Frame[T]) NumPartitions() int {
	return len(f.parts)
}

// Partitions returns the partitions. The result must be treated as read-only.
func (f *Frame[T]) Partitions() [][]T {
	return f.parts
}

// Count returns the total number of rows.
func (f *Frame[T]) Count() int {
	n := 0
	for _, p := range f.parts {
		n += len(p)
	}
	return n
}

// Rows collects every row into a single slice.
func (f *Frame[T]) Rows() []T {
	out := make([]T, 0, f.Count())
	for _, p := range f.parts {
		out = append(out, p...)
	}
	return out
}

// Filter keeps rows for which pred returns true.
func (f *Frame[T]) Filter(pred func(T) bool) *Frame[T] {
	return MapPartitions(f, func(_ int, rows []T) []T {
		out := make([]T, 0, len(rows))
		for _, r := range rows {
			if pred(r) {
				out = append(out, r)
			}
		}
		return out
	})
}

// Project maps every row through fn. It covers select, rename and
// per-row derived columns.
func Project[T, U any](f *Frame[T], fn func(T) U) *Frame[U] {
	return MapPartitions(f, func(_ int, rows []T) []U {
		out := make([]U, len(rows))
		for i, r := range rows {
			out[i] = fn(r)
		}
		return out
	})
}

// MapPartitions runs fn once per partition, passing the partition index.
// Partition count is preserved.
func MapPartitions[T, U any](f *Frame[T], fn func(part int, rows []T) []U) *Frame[U] {
	indices := make([]int, len(f.parts))
	for i := range indices {
		indices[i] = i
	}
	mapper := iter.Mapper[int, []U]{MaxGoroutines: f.workers}
	parts := mapper.Map(indices, func(i *int) []U {
		return fn(*i, f.parts[*i])
	})
	return &Frame[U]{parts: parts, workers: f.workers}
}
