package model

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/teatak/postag/tagset"
	"github.com/teatak/postag/viterbi"
)

// UnknownWord is the emission row used for words missing from the vocabulary.
const UnknownWord = "<UNK>"

var (
	// ErrSyntax signals an unparsable model line.
	ErrSyntax = errors.New("model syntax error")
	// ErrDimension signals an emission row whose length does not match the tag set.
	ErrDimension = errors.New("emission dimension mismatch")
)

// Model holds log-space emission and transition scores.
// It is read-only once constructed.
type Model struct {
	Tags *tagset.Tagset
	// Trans[to][from] = weight
	Trans viterbi.Matrix

	// emissions[word][tag] = weight
	emissions map[string][]float64
	unknown   []float64
	decoder   *viterbi.Decoder
}

// New creates a model. Every emission row must have tags.Len() entries.
// The model takes ownership of trans and emissions.
func New(tags *tagset.Tagset, trans viterbi.Matrix, emissions map[string][]float64) (*Model, error) {
	dec, err := viterbi.New(tags, trans)
	if err != nil {
		return nil, fmt.Errorf("transitions: %w", err)
	}
	for word, row := range emissions {
		if len(row) != tags.Len() {
			return nil, fmt.Errorf("%w: word %q has %d scores, want %d", ErrDimension, word, len(row), tags.Len())
		}
	}

	unknown, ok := emissions[UnknownWord]
	if !ok {
		unknown = make([]float64, tags.Len())
		for i := range unknown {
			unknown[i] = math.Inf(-1)
		}
	}
	return &Model{
		Tags:      tags,
		Trans:     trans,
		emissions: emissions,
		unknown:   unknown,
		decoder:   dec,
	}, nil
}

// Decoder returns the decoder bound to the model's transitions.
func (m *Model) Decoder() *viterbi.Decoder { return m.decoder }

// Emission returns the scores of token for every tag. Words outside the
// vocabulary use the UnknownWord row, or -Inf everywhere when the model has
// none. The returned slice must not be modified.
func (m *Model) Emission(token string) ([]float64, error) {
	if row, ok := m.emissions[token]; ok {
		return row, nil
	}
	return m.unknown, nil
}

// Known reports whether token has its own emission row.
func (m *Model) Known(token string) bool {
	_, ok := m.emissions[token]
	return ok
}

// Vocabulary returns the known words in sorted order.
func (m *Model) Vocabulary() []string {
	words := make([]string, 0, len(m.emissions))
	for w := range m.emissions {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

type record struct {
	line   int
	kind   string
	a, b   string
	weight float64
}

// Load loads a text model.
// Format lines:
// T from_tag to_tag weight
// F word tag weight
func Load(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	m, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Read parses a text model from r. Scores not listed are -Inf.
func Read(r io.Reader) (*Model, error) {
	var records []record
	labels := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 4 {
			return nil, fmt.Errorf("%w: line %d: want 4 fields, got %d", ErrSyntax, lineNo, len(parts))
		}
		weight, err := strconv.ParseFloat(parts[3], 64)
		if err != nil || math.IsNaN(weight) || math.IsInf(weight, 1) {
			return nil, fmt.Errorf("%w: line %d: bad weight %q", ErrSyntax, lineNo, parts[3])
		}

		rec := record{line: lineNo, kind: parts[0], a: parts[1], b: parts[2], weight: weight}
		switch rec.kind {
		case "T":
			addLabel(labels, rec.a)
			addLabel(labels, rec.b)
		case "F":
			if isBoundary(rec.b) {
				return nil, fmt.Errorf("%w: line %d: boundary tag %q cannot emit", ErrSyntax, lineNo, rec.b)
			}
			addLabel(labels, rec.b)
		default:
			return nil, fmt.Errorf("%w: line %d: unknown record kind %q", ErrSyntax, lineNo, rec.kind)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(labels))
	for l := range labels {
		names = append(names, l)
	}
	tags, err := tagset.Build(names)
	if err != nil {
		return nil, err
	}

	trans := viterbi.NewMatrix(tags.Len())
	emissions := make(map[string][]float64)
	for _, rec := range records {
		switch rec.kind {
		case "T":
			from, err := tags.IndexOf(rec.a)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", rec.line, err)
			}
			to, err := tags.IndexOf(rec.b)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", rec.line, err)
			}
			trans[to][from] = rec.weight
		case "F":
			tag, err := tags.IndexOf(rec.b)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", rec.line, err)
			}
			row := emissions[rec.a]
			if row == nil {
				row = make([]float64, tags.Len())
				for i := range row {
					row[i] = math.Inf(-1)
				}
				emissions[rec.a] = row
			}
			row[tag] = rec.weight
		}
	}
	return New(tags, trans, emissions)
}

// Save saves the model to a file.
func (m *Model) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return m.Write(file)
}

// Write writes the model in the text format. Unreachable scores are omitted.
func (m *Model) Write(w io.Writer) error {
	writer := bufio.NewWriter(w)
	n := m.Tags.Len()
	label := func(i int) string {
		l, _ := m.Tags.LabelOf(i)
		return l
	}

	// Save Transitions
	for from := 0; from < n; from++ {
		for to := 0; to < n; to++ {
			if v := m.Trans[to][from]; !math.IsInf(v, -1) {
				fmt.Fprintf(writer, "T %s %s %s\n", label(from), label(to), formatWeight(v))
			}
		}
	}

	// Save Emissions
	for _, word := range m.Vocabulary() {
		for tag, v := range m.emissions[word] {
			if !math.IsInf(v, -1) {
				fmt.Fprintf(writer, "F %s %s %s\n", word, label(tag), formatWeight(v))
			}
		}
	}
	return writer.Flush()
}

func formatWeight(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func addLabel(labels map[string]struct{}, l string) {
	if !isBoundary(l) {
		labels[l] = struct{}{}
	}
}

func isBoundary(l string) bool {
	return l == tagset.StartLabel || l == tagset.EndLabel
}
