package viterbi

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput signals emission or transition dimensions that do not
	// match the tag set, or scores that are NaN or +Inf.
	ErrMalformedInput = errors.New("malformed input")
	// ErrEmptySequence signals an empty sentence when START->END is unreachable.
	ErrEmptySequence = fmt.Errorf("%w: no valid empty-sequence transition", ErrMalformedInput)
	// ErrInfeasible signals that every tag sequence scores -Inf.
	ErrInfeasible = errors.New("no feasible tagging")
)
