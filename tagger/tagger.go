// Package tagger maps token sequences to part-of-speech tags using a
// loaded model and Viterbi decoding.
package tagger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teatak/postag/model"
	"github.com/teatak/postag/viterbi"
)

// Decode outcomes reported to the Observer.
const (
	OutcomeOK         = "ok"
	OutcomeFallback   = "fallback"
	OutcomeInfeasible = "infeasible"
	OutcomeError      = "error"
)

// Observer receives one notification per decoded sentence.
type Observer interface {
	ObserveDecode(tokens int, elapsed time.Duration, outcome string)
}

// Prediction is the tagging of one sentence.
type Prediction struct {
	Tokens []string
	Tags   []string
	// Score is -Inf when Fallback is set.
	Score    float64
	Fallback bool
}

// Tagger is safe for concurrent use.
type Tagger struct {
	model    *model.Model
	logger   *zap.Logger
	observer Observer
	fallback string
	hasFB    bool
}

// Option configures a Tagger.
type Option func(*Tagger)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tagger) { t.logger = l }
}

// WithObserver sets the decode observer.
func WithObserver(o Observer) Option {
	return func(t *Tagger) { t.observer = o }
}

// WithFallback tags every token of an infeasible sentence with label
// instead of failing.
func WithFallback(label string) Option {
	return func(t *Tagger) {
		t.fallback = label
		t.hasFB = true
	}
}

// New creates a tagger. It fails when the fallback label is not in the model.
func New(m *model.Model, opts ...Option) (*Tagger, error) {
	t := &Tagger{model: m, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	if t.hasFB {
		i, err := m.Tags.IndexOf(t.fallback)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		if m.Tags.IsBoundary(i) {
			return nil, fmt.Errorf("fallback: boundary tag %q", t.fallback)
		}
	}
	return t, nil
}

// Model returns the underlying model.
func (t *Tagger) Model() *model.Model { return t.model }

// Tag returns one tag per token.
func (t *Tagger) Tag(tokens []string) ([]string, error) {
	p, err := t.TagScored(tokens)
	if err != nil {
		return nil, err
	}
	return p.Tags, nil
}

// TagScored returns the tags together with the path score.
func (t *Tagger) TagScored(tokens []string) (Prediction, error) {
	start := time.Now()
	p, outcome, err := t.decode(tokens)
	elapsed := time.Since(start)
	if t.observer != nil {
		t.observer.ObserveDecode(len(tokens), elapsed, outcome)
	}
	if err != nil {
		t.logger.Debug("decode failed",
			zap.Int("tokens", len(tokens)),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return Prediction{}, err
	}
	t.logger.Debug("decoded",
		zap.Int("tokens", len(tokens)),
		zap.String("outcome", outcome),
		zap.Float64("score", p.Score),
		zap.Duration("elapsed", elapsed),
	)
	return p, nil
}

func (t *Tagger) decode(tokens []string) (Prediction, string, error) {
	res, err := t.model.Decoder().DecodeTokens(tokens, t.model)
	switch {
	case errors.Is(err, viterbi.ErrInfeasible) && t.hasFB:
		tags := make([]string, len(tokens))
		for i := range tags {
			tags[i] = t.fallback
		}
		return Prediction{Tokens: tokens, Tags: tags, Score: math.Inf(-1), Fallback: true}, OutcomeFallback, nil
	case errors.Is(err, viterbi.ErrInfeasible):
		return Prediction{}, OutcomeInfeasible, err
	case err != nil:
		return Prediction{}, OutcomeError, err
	}

	tags, err := res.Labels(t.model.Tags)
	if err != nil {
		return Prediction{}, OutcomeError, err
	}
	return Prediction{Tokens: tokens, Tags: tags, Score: res.Score}, OutcomeOK, nil
}

// TagBatch tags independent sentences on up to workers goroutines.
// Results keep input order. The first failure cancels the remaining work;
// ctx is checked between sentences, never inside a decode.
func (t *Tagger) TagBatch(ctx context.Context, sentences [][]string, workers int) ([]Prediction, error) {
	if workers <= 0 {
		workers = 1
	}
	out := make([]Prediction, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tokens := range sentences {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := t.TagScored(tokens)
			if err != nil {
				return fmt.Errorf("sentence %d: %w", i, err)
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
