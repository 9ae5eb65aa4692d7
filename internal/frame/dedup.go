package frame

import (
	"hash/maphash"

	"github.com/sourcegraph/conc/iter"
)

// DedupExact removes rows that are equal in every column, keeping one row
// per distinct tuple. Rows are shuffled by a hash of the whole row so that
// equal rows land in the same output partition.
//
// Two rows that share a key column but differ anywhere else are both kept.
func DedupExact[T comparable](f *Frame[T]) *Frame[T] {
	n := f.NumPartitions()
	seed := maphash.MakeSeed()

	// Map side: drop local duplicates, then bucket by row hash. Each
	// partition of shuffled holds exactly n buckets.
	shuffled := MapPartitions(f, func(_ int, rows []T) [][]T {
		seen := make(map[T]struct{}, len(rows))
		buckets := make([][]T, n)
		for _, r := range rows {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			b := maphash.Comparable(seed, r) % uint64(n)
			buckets[b] = append(buckets[b], r)
		}
		return buckets
	})

	// Reduce side: bucket b of every map partition becomes output partition b.
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	mapper := iter.Mapper[int, []T]{MaxGoroutines: f.workers}
	parts := mapper.Map(indices, func(b *int) []T {
		seen := make(map[T]struct{})
		var out []T
		for _, buckets := range shuffled.parts {
			for _, r := range buckets[*b] {
				if _, ok := seen[r]; ok {
					continue
				}
				seen[r] = struct{}{}
				out = append(out, r)
			}
		}
		return out
	})
	return &Frame[T]{parts: parts, workers: f.workers}
}
