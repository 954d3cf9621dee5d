// Package freq provides the frequency aggregation used by the fraud
// detector and the spending-insights summarizer: key occurrence counting,
// deterministic ranking, top-N extraction and all-singletons detection.
package freq

import (
	"cmp"
	"slices"
)

// Count is one key with its occurrence count.
type Count[K cmp.Ordered] struct {
	Key K
	N   int64
}

// CountBy groups items by the extracted key and counts occurrences.
func CountBy[T any, K cmp.Ordered](items []T, key func(T) K) map[K]int64 {
	counts := make(map[K]int64, len(items))
	for _, item := range items {
		counts[key(item)]++
	}
	return counts
}

// Rank orders counts by occurrence descending. Ties break on ascending key
// so ranking is stable across runs regardless of map iteration order.
func Rank[K cmp.Ordered](counts map[K]int64) []Count[K] {
	ranked := make([]Count[K], 0, len(counts))
	for k, n := range counts {
		ranked = append(ranked, Count[K]{Key: k, N: n})
	}
	slices.SortFunc(ranked, func(a, b Count[K]) int {
		if a.N != b.N {
			return cmp.Compare(b.N, a.N)
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return ranked
}

// TopN returns up to n keys from ranked, keeping only entries whose count is
// at least minCount.
func TopN[K cmp.Ordered](ranked []Count[K], n int, minCount int64) []K {
	top := make([]K, 0, n)
	for _, c := range ranked {
		if len(top) == n {
			break
		}
		if c.N >= minCount {
			top = append(top, c.Key)
		}
	}
	return top
}

// AllSingletons reports whether every key occurs exactly once. An empty
// count set is not considered all-singletons.
func AllSingletons[K cmp.Ordered](counts map[K]int64) bool {
	if len(counts) == 0 {
		return false
	}
	for _, n := range counts {
		if n != 1 {
			return false
		}
	}
	return true
}
