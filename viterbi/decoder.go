package viterbi

import (
	"fmt"
	"math"

	"github.com/teatak/postag/tagset"
)

// Scorer supplies per-token emission scores indexed by tag.
type Scorer interface {
	Emission(token string) ([]float64, error)
}

// Result is the best tag sequence and its total score.
type Result struct {
	Score float64
	Path  []int
}

// Labels converts the index path to tag labels.
func (r Result) Labels(tags *tagset.Tagset) ([]string, error) {
	out := make([]string, len(r.Path))
	for i, t := range r.Path {
		l, err := tags.LabelOf(t)
		if err != nil {
			return nil, err
		}
		out[i] = l
	}
	return out, nil
}

// Decoder finds the highest scoring tag sequence for a sentence.
// It holds only read-only state and may be shared between goroutines.
type Decoder struct {
	tags  *tagset.Tagset
	trans Matrix
}

// New validates trans against tags and returns a Decoder.
// trans must not be modified afterwards.
func New(tags *tagset.Tagset, trans Matrix) (*Decoder, error) {
	n := tags.Len()
	if len(trans) != n {
		return nil, fmt.Errorf("%w: transition matrix has %d rows, want %d", ErrMalformedInput, len(trans), n)
	}
	for to, row := range trans {
		if len(row) != n {
			return nil, fmt.Errorf("%w: transition row %d has %d columns, want %d", ErrMalformedInput, to, len(row), n)
		}
		for from, v := range row {
			if !validScore(v) {
				return nil, fmt.Errorf("%w: transition[%d][%d] = %v", ErrMalformedInput, to, from, v)
			}
		}
	}
	return &Decoder{tags: tags, trans: trans}, nil
}

// Tags returns the tag set the decoder was built for.
func (d *Decoder) Tags() *tagset.Tagset { return d.tags }

// DecodeTokens looks up the emission vector of every token and decodes.
func (d *Decoder) DecodeTokens(tokens []string, s Scorer) (Result, error) {
	emissions := make([][]float64, len(tokens))
	for i, tok := range tokens {
		e, err := s.Emission(tok)
		if err != nil {
			return Result{}, fmt.Errorf("emission for token %d %q: %w", i, tok, err)
		}
		emissions[i] = e
	}
	return d.Decode(emissions)
}

// Decode runs Viterbi over an L×T emission matrix.
func (d *Decoder) Decode(emissions [][]float64) (Result, error) {
	n := d.tags.Len()
	start, end := d.tags.Start(), d.tags.End()

	for i, row := range emissions {
		if len(row) != n {
			return Result{}, fmt.Errorf("%w: emission row %d has %d scores, want %d", ErrMalformedInput, i, len(row), n)
		}
		for t, v := range row {
			if !validScore(v) {
				return Result{}, fmt.Errorf("%w: emission[%d][%d] = %v", ErrMalformedInput, i, t, v)
			}
		}
	}

	if len(emissions) == 0 {
		score := d.trans[end][start]
		if math.IsInf(score, -1) {
			return Result{}, ErrEmptySequence
		}
		return Result{Score: score, Path: []int{}}, nil
	}

	// scores at virtual position -1
	scores := make([]float64, n)
	for t := range scores {
		scores[t] = math.Inf(-1)
	}
	scores[start] = 0

	// path[i][tag] = best previous tag
	path := make([][]int, len(emissions))
	emit := make([]float64, n)
	for i, row := range emissions {
		copy(emit, row)
		emit[start] = math.Inf(-1)
		emit[end] = math.Inf(-1)
		scores, path[i] = Step(scores, emit, d.trans)
	}

	// Termination
	maxScore := math.Inf(-1)
	bestLast := 0
	for t, s := range scores {
		score := s + d.trans[end][t]
		if score > maxScore {
			maxScore = score
			bestLast = t
		}
	}
	if math.IsInf(maxScore, -1) {
		return Result{}, ErrInfeasible
	}
	// finite inputs can still overflow when summed
	if !validScore(maxScore) {
		return Result{}, fmt.Errorf("%w: path score overflows to %v", ErrMalformedInput, maxScore)
	}

	// Backtrack
	tags := make([]int, len(emissions))
	tags[len(tags)-1] = bestLast
	for i := len(tags) - 1; i > 0; i-- {
		tags[i-1] = path[i][tags[i]]
	}
	return Result{Score: maxScore, Path: tags}, nil
}

func validScore(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 1)
}
