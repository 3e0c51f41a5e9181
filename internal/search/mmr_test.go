package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-6)
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	require.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	require.Equal(t, float32(0), cosineSimilarity(nil, []float32{1}))
	require.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

func TestMMRFirstPickIsMostRelevant(t *testing.T) {
	query := []float32{1, 0, 0}
	candidates := [][]float32{
		{0, 1, 0},
		{0.9, 0.436, 0},
		{0.5, 0.5, 0},
	}
	selected := mmrSelect(query, candidates, 3, 0.7)
	require.Equal(t, 1, selected[0])
}

func TestMMRPenalizesNearDuplicates(t *testing.T) {
	query := []float32{1, 0, 0}
	// Candidate 1 duplicates candidate 0 exactly; candidate 2 is slightly
	// less relevant but points in a different direction.
	candidates := [][]float32{
		{0.9, 0.436, 0},
		{0.9, 0.436, 0},
		{0.8, -0.6, 0},
	}
	selected := mmrSelect(query, candidates, 3, 0.7)
	require.Equal(t, []int{0, 2, 1}, selected)
}

func TestMMRBounds(t *testing.T) {
	require.Nil(t, mmrSelect([]float32{1}, nil, 3, 0.7))
	require.Nil(t, mmrSelect([]float32{1}, [][]float32{{1}}, 0, 0.7))

	// Asking for more than available returns everything once.
	selected := mmrSelect([]float32{1, 0}, [][]float32{{1, 0}, {0, 1}}, 10, 0.7)
	require.Len(t, selected, 2)
}
