package tagset

import (
	"errors"
	"fmt"
	"sort"
)

// Reserved boundary labels.
const (
	StartLabel = "<START>"
	EndLabel   = "<END>"
)

var (
	// ErrUnknownTag signals a label or index that is not part of the tag set.
	ErrUnknownTag = errors.New("unknown tag")
	// ErrReservedTag signals an attempt to register a boundary label as an ordinary tag.
	ErrReservedTag = errors.New("reserved tag")
	// ErrEmptyTag signals an empty label.
	ErrEmptyTag = errors.New("empty tag")
)

// Tagset is an immutable bijection between tag labels and dense indices.
// Ordinary tags occupy 0..Len()-3, START is Len()-2 and END is Len()-1.
type Tagset struct {
	labels []string
	index  map[string]int
}

// Build creates a tag set from ordinary labels. Duplicates collapse and the
// labels are sorted, so the same set always produces the same indices.
func Build(labels []string) (*Tagset, error) {
	seen := make(map[string]struct{}, len(labels))
	ordered := make([]string, 0, len(labels)+2)
	for _, l := range labels {
		switch l {
		case "":
			return nil, ErrEmptyTag
		case StartLabel, EndLabel:
			return nil, fmt.Errorf("%w: %q", ErrReservedTag, l)
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		ordered = append(ordered, l)
	}
	sort.Strings(ordered)
	ordered = append(ordered, StartLabel, EndLabel)

	index := make(map[string]int, len(ordered))
	for i, l := range ordered {
		index[l] = i
	}
	return &Tagset{labels: ordered, index: index}, nil
}

// Len returns the number of tags including START and END.
func (s *Tagset) Len() int { return len(s.labels) }

// Start returns the index of the START pseudo-tag.
func (s *Tagset) Start() int { return len(s.labels) - 2 }

// End returns the index of the END pseudo-tag.
func (s *Tagset) End() int { return len(s.labels) - 1 }

// IsBoundary reports whether i is START or END.
func (s *Tagset) IsBoundary(i int) bool {
	return i == s.Start() || i == s.End()
}

// IndexOf returns the index of label.
func (s *Tagset) IndexOf(label string) (int, error) {
	i, ok := s.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTag, label)
	}
	return i, nil
}

// LabelOf returns the label at index i.
func (s *Tagset) LabelOf(i int) (string, error) {
	if i < 0 || i >= len(s.labels) {
		return "", fmt.Errorf("%w: index %d", ErrUnknownTag, i)
	}
	return s.labels[i], nil
}

// Labels returns the ordinary labels in index order.
func (s *Tagset) Labels() []string {
	out := make([]string, len(s.labels)-2)
	copy(out, s.labels)
	return out
}
