package viterbi

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatak/postag/tagset"
)

// nounVerb builds the dog/runs model: NOUN=0 VERB=1 START=2 END=3.
func nounVerb(t *testing.T) (*Decoder, map[string][]float64) {
	t.Helper()
	tags, err := tagset.Build([]string{"NOUN", "VERB"})
	require.NoError(t, err)

	const noun, verb = 0, 1
	start, end := tags.Start(), tags.End()
	trans := NewMatrix(tags.Len())
	trans[noun][start] = 0
	trans[verb][start] = -5
	trans[verb][noun] = 0
	trans[end][verb] = 0
	trans[end][noun] = -5

	d, err := New(tags, trans)
	require.NoError(t, err)

	emissions := map[string][]float64{
		"dog":  {0, -10, negInf, negInf},
		"runs": {-10, 0, negInf, negInf},
	}
	return d, emissions
}

type mapScorer map[string][]float64

func (m mapScorer) Emission(token string) ([]float64, error) {
	e, ok := m[token]
	if !ok {
		return nil, errors.New("no such token")
	}
	return e, nil
}

func TestDecode_DogRuns(t *testing.T) {
	d, em := nounVerb(t)

	res, err := d.DecodeTokens([]string{"dog", "runs"}, mapScorer(em))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, res.Path)
	assert.Equal(t, 0.0, res.Score)

	labels, err := res.Labels(d.Tags())
	require.NoError(t, err)
	assert.Equal(t, []string{"NOUN", "VERB"}, labels)
}

func TestDecode_ScorerError(t *testing.T) {
	d, em := nounVerb(t)

	_, err := d.DecodeTokens([]string{"dog", "cat"}, mapScorer(em))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"cat"`)
}

func TestDecode_Infeasible(t *testing.T) {
	d, _ := nounVerb(t)

	_, err := d.Decode([][]float64{{negInf, negInf, negInf, negInf}})
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestDecode_AllInfStepRecoversNothing(t *testing.T) {
	d, em := nounVerb(t)

	// middle token unreachable: the whole sentence is infeasible, no crash
	_, err := d.Decode([][]float64{em["dog"], {negInf, negInf, 0, 0}, em["runs"]})
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestDecode_Empty(t *testing.T) {
	d, _ := nounVerb(t)

	_, err := d.Decode(nil)
	assert.ErrorIs(t, err, ErrEmptySequence)
	assert.ErrorIs(t, err, ErrMalformedInput)

	tags := d.Tags()
	trans := NewMatrix(tags.Len())
	trans[tags.End()][tags.Start()] = -2
	d2, err := New(tags, trans)
	require.NoError(t, err)

	res, err := d2.Decode([][]float64{})
	require.NoError(t, err)
	assert.Empty(t, res.Path)
	assert.NotNil(t, res.Path)
	assert.Equal(t, -2.0, res.Score)
}

func TestDecode_Malformed(t *testing.T) {
	d, em := nounVerb(t)

	_, err := d.Decode([][]float64{em["dog"], {0, 0}})
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = d.Decode([][]float64{{0, math.NaN(), 0, 0}})
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = d.Decode([][]float64{{0, math.Inf(1), 0, 0}})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestDecode_Overflow(t *testing.T) {
	tags, err := tagset.Build([]string{"A"})
	require.NoError(t, err)

	trans := NewMatrix(tags.Len())
	trans[0][tags.Start()] = math.MaxFloat64
	trans[0][0] = math.MaxFloat64
	trans[tags.End()][0] = 0
	d, err := New(tags, trans)
	require.NoError(t, err)

	emit := []float64{0, negInf, negInf}
	_, err = d.Decode([][]float64{emit, emit})
	assert.ErrorIs(t, err, ErrMalformedInput)

	res, err := d.Decode([][]float64{emit})
	require.NoError(t, err)
	assert.Equal(t, math.MaxFloat64, res.Score)
}

func TestNew_Malformed(t *testing.T) {
	tags, err := tagset.Build([]string{"A"})
	require.NoError(t, err)

	_, err = New(tags, NewMatrix(2))
	assert.ErrorIs(t, err, ErrMalformedInput)

	ragged := NewMatrix(3)
	ragged[1] = ragged[1][:2]
	_, err = New(tags, ragged)
	assert.ErrorIs(t, err, ErrMalformedInput)

	nan := NewMatrix(3)
	nan[0][1] = math.NaN()
	_, err = New(tags, nan)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestDecode_BoundaryNeverEmitted(t *testing.T) {
	tags, err := tagset.Build([]string{"A", "B"})
	require.NoError(t, err)
	n := tags.Len()
	start, end := tags.Start(), tags.End()

	// every transition is open and the boundary tags look attractive
	trans := make(Matrix, n)
	for i := range trans {
		trans[i] = make([]float64, n)
	}
	trans[start][0] = 50
	trans[end][1] = 50
	trans[start][start] = 50
	trans[end][end] = 50
	d, err := New(tags, trans)
	require.NoError(t, err)

	row := []float64{-1, -2, 100, 100}
	res, err := d.Decode([][]float64{row, row, row})
	require.NoError(t, err)
	require.Len(t, res.Path, 3)
	for _, tag := range res.Path {
		assert.False(t, tags.IsBoundary(tag), "path %v", res.Path)
	}
	// caller rows stay untouched
	assert.Equal(t, []float64{-1, -2, 100, 100}, row)
}

func TestDecode_TieLowestIndex(t *testing.T) {
	tags, err := tagset.Build([]string{"A", "B", "C"})
	require.NoError(t, err)
	n := tags.Len()
	trans := make(Matrix, n)
	for i := range trans {
		trans[i] = make([]float64, n)
	}
	d, err := New(tags, trans)
	require.NoError(t, err)

	row := []float64{1, 1, 1, 0, 0}
	res, err := d.Decode([][]float64{row, row, row})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, res.Path)
	assert.Equal(t, 3.0, res.Score)
}

func TestDecode_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	d, emissions := randomProblem(rng, 3, 4)

	first, err1 := d.Decode(emissions)
	for range 20 {
		again, err2 := d.Decode(emissions)
		assert.Equal(t, err1, err2)
		assert.Equal(t, first, again)
	}
}

func TestDecode_MaskedTagNeverChosen(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for range 200 {
		d, emissions := randomProblem(rng, 3, 1+rng.IntN(4))
		masked := rng.IntN(3)
		for _, row := range emissions {
			row[masked] = negInf
		}
		res, err := d.Decode(emissions)
		if errors.Is(err, ErrInfeasible) {
			continue
		}
		require.NoError(t, err)
		assert.NotContains(t, res.Path, masked)
	}
}

func TestDecode_BruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1))
	for numTags := 1; numTags <= 3; numTags++ {
		for length := 1; length <= 4; length++ {
			for range 40 {
				d, emissions := randomProblem(rng, numTags, length)
				best, bestPaths := bruteForce(d, emissions, numTags)

				res, err := d.Decode(emissions)
				if math.IsInf(best, -1) {
					assert.ErrorIs(t, err, ErrInfeasible)
					continue
				}
				require.NoError(t, err)
				assert.Len(t, res.Path, length)
				assert.Equal(t, best, res.Score)
				assert.Equal(t, best, pathScore(d, emissions, res.Path))
				assert.Equal(t, tieRulePath(bestPaths), res.Path)
			}
		}
	}
}

// randomProblem draws integer scores so sums compare exactly; about one in
// six entries is unreachable.
func randomProblem(rng *rand.Rand, numTags, length int) (*Decoder, [][]float64) {
	labels := []string{"A", "B", "C"}[:numTags]
	tags, err := tagset.Build(labels)
	if err != nil {
		panic(err)
	}
	n := tags.Len()
	draw := func() float64 {
		if rng.IntN(6) == 0 {
			return negInf
		}
		return float64(rng.IntN(11) - 5)
	}

	trans := make(Matrix, n)
	for i := range trans {
		trans[i] = make([]float64, n)
		for j := range trans[i] {
			trans[i][j] = draw()
		}
	}
	d, err := New(tags, trans)
	if err != nil {
		panic(err)
	}

	emissions := make([][]float64, length)
	for i := range emissions {
		emissions[i] = make([]float64, n)
		for j := range emissions[i] {
			emissions[i][j] = draw()
		}
	}
	return d, emissions
}

func pathScore(d *Decoder, emissions [][]float64, path []int) float64 {
	tags := d.Tags()
	prev := tags.Start()
	total := 0.0
	for i, t := range path {
		total += d.trans[t][prev] + emissions[i][t]
		prev = t
	}
	return total + d.trans[tags.End()][prev]
}

// tieRulePath picks, among optimal paths, the one with the lowest last tag,
// then the lowest tag before it, and so on back to the first token.
func tieRulePath(paths [][]int) []int {
	best := paths[0]
	for _, p := range paths[1:] {
		for i := len(p) - 1; i >= 0; i-- {
			if p[i] != best[i] {
				if p[i] < best[i] {
					best = p
				}
				break
			}
		}
	}
	return best
}

func bruteForce(d *Decoder, emissions [][]float64, numTags int) (float64, [][]int) {
	best := negInf
	var bestPaths [][]int
	path := make([]int, len(emissions))
	var walk func(pos int)
	walk = func(pos int) {
		if pos == len(path) {
			s := pathScore(d, emissions, path)
			switch {
			case s > best:
				best = s
				bestPaths = [][]int{append([]int(nil), path...)}
			case s == best && !math.IsInf(s, -1):
				bestPaths = append(bestPaths, append([]int(nil), path...))
			}
			return
		}
		for t := 0; t < numTags; t++ {
			path[pos] = t
			walk(pos + 1)
		}
	}
	walk(0)
	return best, bestPaths
}
