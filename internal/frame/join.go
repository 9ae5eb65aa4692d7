package frame

import "database/sql"

// NullKey adapts a nullable column to a join key.
func NullKey[V comparable](v sql.Null[V]) (V, bool) {
	return v.V, v.Valid
}

// index builds a hash table over the right side of a join.
func index[R any, K comparable](right *Frame[R], key func(R) (K, bool)) map[K][]R {
	idx := make(map[K][]R)
	for _, part := range right.parts {
		for _, r := range part {
			k, ok := key(r)
			if !ok {
				continue
			}
			idx[k] = append(idx[k], r)
		}
	}
	return idx
}

// Key functions return ok == false for a null key, which never matches.

// InnerJoin pairs every left row with every right row sharing its key.
// Left rows without a match are dropped; a left row with several matches
// appears once per match. The result keeps the left side's partitioning.
func InnerJoin[L, R any, K comparable, O any](left *Frame[L], right *Frame[R], leftKey func(L) (K, bool), rightKey func(R) (K, bool), combine func(L, R) O) *Frame[O] {
	idx := index(right, rightKey)
	return MapPartitions(left, func(_ int, rows []L) []O {
		out := make([]O, 0, len(rows))
		for _, l := range rows {
			k, ok := leftKey(l)
			if !ok {
				continue
			}
			for _, r := range idx[k] {
				out = append(out, combine(l, r))
			}
		}
		return out
	})
}

// LeftJoin is InnerJoin that also keeps unmatched left rows. For those,
// combine receives the zero R and matched == false.
func LeftJoin[L, R any, K comparable, O any](left *Frame[L], right *Frame[R], leftKey func(L) (K, bool), rightKey func(R) (K, bool), combine func(l L, r R, matched bool) O) *Frame[O] {
	idx := index(right, rightKey)
	return MapPartitions(left, func(_ int, rows []L) []O {
		out := make([]O, 0, len(rows))
		for _, l := range rows {
			var matches []R
			if k, ok := leftKey(l); ok {
				matches = idx[k]
			}
			if len(matches) == 0 {
				var zero R
				out = append(out, combine(l, zero, false))
				continue
			}
			for _, r := range matches {
				out = append(out, combine(l, r, true))
			}
		}
		return out
	})
}
