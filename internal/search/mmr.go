package search

import "math"

// cosineSimilarity returns the cosine of the angle between two vectors, or 0
// when either vector is empty or zero-length.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// mmrSelect picks up to k candidate indices using maximal marginal relevance.
// The first pick is always the candidate most similar to the query; each
// subsequent pick maximizes lambda*relevance + (1-lambda)*diversity, where
// diversity is one minus the candidate's highest similarity to anything
// already selected. Near-duplicate chunks of the same passage score low on
// diversity and get pushed out.
func mmrSelect(queryVec []float32, candidates [][]float32, k int, lambda float32) []int {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}
	relevance := make([]float32, len(candidates))
	for i, vec := range candidates {
		relevance[i] = cosineSimilarity(queryVec, vec)
	}

	first := 0
	for i := 1; i < len(relevance); i++ {
		if relevance[i] > relevance[first] {
			first = i
		}
	}
	selected := []int{first}
	remaining := make([]int, 0, len(candidates)-1)
	for i := range candidates {
		if i != first {
			remaining = append(remaining, i)
		}
	}

	for len(selected) < k && len(remaining) > 0 {
		bestPos := -1
		var bestScore float32
		for pos, idx := range remaining {
			var maxSim float32 = -1
			for _, sel := range selected {
				if sim := cosineSimilarity(candidates[idx], candidates[sel]); sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*relevance[idx] + (1-lambda)*(1-maxSim)
			if bestPos == -1 || score > bestScore {
				bestPos = pos
				bestScore = score
			}
		}
		selected = append(selected, remaining[bestPos])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return selected
}
