package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReindexPrevalenceOrder(t *testing.T) {
	labels := []int{7, 7, 3, 7, 3, 9}
	out := Reindex(labels)
	// 7 is most frequent, then 3, then 9
	require.Equal(t, []int{1, 1, 2, 1, 2, 3}, out)
}

func TestReindexTiesFirstEncounter(t *testing.T) {
	labels := []int{5, 2, 5, 2}
	out := Reindex(labels)
	require.Equal(t, []int{1, 2, 1, 2}, out)
}

func TestReindexBijectionAndIdempotence(t *testing.T) {
	labels := []int{4, 4, 0, 2, 2, 2, 0, 4, 4}
	once := Reindex(labels)

	// ids are exactly 1..K
	seen := map[int]bool{}
	for _, l := range once {
		seen[l] = true
	}
	require.Len(t, seen, 3)
	for i := 1; i <= 3; i++ {
		require.True(t, seen[i], "missing id %d", i)
	}

	// same input labels map to the same output everywhere
	fwd := map[int]int{}
	for i, l := range labels {
		if prev, ok := fwd[l]; ok {
			require.Equal(t, prev, once[i])
		} else {
			fwd[l] = once[i]
		}
	}

	require.Equal(t, once, Reindex(once))
}

func TestTrivial(t *testing.T) {
	labels := Trivial(5)
	require.Equal(t, []int{1, 1, 1, 1, 1}, labels)
}
