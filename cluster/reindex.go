package cluster

import "sort"

// Reindex remaps raw cluster ids to 1..K ordered by descending
// prevalence, ties broken by first-encounter order. The mapping is a
// bijection on label identities and is idempotent once labels are
// already prevalence-ordered.
func Reindex(labels []int) []int {
	counts := make(map[int]int)
	var order []int
	for _, l := range labels {
		if counts[l] == 0 {
			order = append(order, l)
		}
		counts[l]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	old2new := make(map[int]int, len(order))
	for i, l := range order {
		old2new[l] = i + 1
	}

	out := make([]int, len(labels))
	for i, l := range labels {
		out[i] = old2new[l]
	}
	return out
}
