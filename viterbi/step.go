package viterbi

import "math"

// Matrix holds transition scores indexed [to][from] in log space.
type Matrix [][]float64

// NewMatrix returns an n×n matrix with every transition unreachable.
func NewMatrix(n int) Matrix {
	m := make(Matrix, n)
	for i := range m {
		row := make([]float64, n)
		for j := range row {
			row[j] = math.Inf(-1)
		}
		m[i] = row
	}
	return m
}

// Step advances the trellis by one token. For every tag t it picks the
// predecessor p maximizing prev[p]+trans[t][p], and returns the resulting
// scores (with emission[t] added) together with the chosen predecessors.
//
// Equal candidates resolve to the lowest predecessor index. A tag with no
// reachable predecessor gets score -Inf and backpointer 0.
func Step(prev, emission []float64, trans Matrix) ([]float64, []int) {
	n := len(emission)
	scores := make([]float64, n)
	bptrs := make([]int, n)
	for curr := 0; curr < n; curr++ {
		maxScore := math.Inf(-1)
		bestPrev := 0
		row := trans[curr]
		for p, s := range prev {
			score := s + row[p]
			if score > maxScore {
				maxScore = score
				bestPrev = p
			}
		}
		scores[curr] = maxScore + emission[curr]
		bptrs[curr] = bestPrev
	}
	return scores, bptrs
}
