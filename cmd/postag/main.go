package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teatak/postag/model"
	"github.com/teatak/postag/store"
	"github.com/teatak/postag/tagger"
	"github.com/teatak/postag/tagset"
	"github.com/teatak/postag/util"
)

// chunkSize bounds how many sentences the batch command holds in memory.
const chunkSize = 1000

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var modelPath string

	rootCmd := &cobra.Command{
		Use:          "postag",
		Short:        "Part-of-speech tagging with Viterbi decoding",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&modelPath, "model", "data/model.txt", "model file path")

	rootCmd.AddCommand(tagCmd(&modelPath))
	rootCmd.AddCommand(batchCmd(&modelPath))
	rootCmd.AddCommand(tagsCmd(&modelPath))
	rootCmd.AddCommand(historyCmd())
	return rootCmd
}

func loadTagger(path, fallback string) (*tagger.Tagger, error) {
	if !util.FileExists(path) {
		return nil, fmt.Errorf("model file not found at %s", path)
	}
	m, err := model.Load(path)
	if err != nil {
		return nil, err
	}
	var opts []tagger.Option
	if fallback != "" {
		opts = append(opts, tagger.WithFallback(fallback))
	}
	return tagger.New(m, opts...)
}

func tagCmd(modelPath *string) *cobra.Command {
	var (
		showScore bool
		fallback  string
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "tag [tokens...]",
		Short: "Tag tokens from arguments or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTagger(*modelPath, fallback)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			split := strings.Fields
			if raw {
				split = util.Tokenize
			}
			process := func(tokens []string) error {
				p, err := t.TagScored(tokens)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, formatPairs(p))
				if showScore {
					fmt.Fprintln(out, formatScore(p))
				}
				return nil
			}

			if len(args) > 0 {
				return process(split(strings.Join(args, " ")))
			}

			// Otherwise interactive mode; a bad line does not end the session
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				text := scanner.Text()
				if strings.TrimSpace(text) == "" {
					continue
				}
				if err := process(split(text)); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().BoolVar(&showScore, "score", false, "print the path score")
	cmd.Flags().StringVar(&fallback, "fallback", "", "tag used for every token of an infeasible sentence")
	cmd.Flags().BoolVar(&raw, "raw", false, "split punctuation off words before tagging")
	return cmd
}

func batchCmd(modelPath *string) *cobra.Command {
	var (
		inputPath  string
		outputPath string
		workers    int
		fallback   string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Tag a file with one whitespace-tokenized sentence per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTagger(*modelPath, fallback)
			if err != nil {
				return err
			}

			in, err := os.Open(inputPath)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer in.Close()

			out, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer out.Close()

			n, err := tagStream(cmd.Context(), t, in, out, workers)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Done. Tagged %d sentences. Saved to %s\n", n, outputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "data/sentences.txt", "input file path")
	cmd.Flags().StringVar(&outputPath, "output", "data/predictions.txt", "output file path")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "parallel decoders")
	cmd.Flags().StringVar(&fallback, "fallback", "", "tag used for every token of an infeasible sentence")
	return cmd
}

// tagStream tags r line by line and writes one tag per line to w with a blank
// line after each sentence. Blank input lines are skipped.
func tagStream(ctx context.Context, t *tagger.Tagger, r io.Reader, w io.Writer, workers int) (int, error) {
	writer := bufio.NewWriter(w)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		sentences [][]string
		lines     []int
		lineNo    int
		total     int
	)
	flush := func() error {
		if len(sentences) == 0 {
			return nil
		}
		preds, err := t.TagBatch(ctx, sentences, workers)
		if err != nil {
			return fmt.Errorf("batch starting at line %d: %w", lines[0], err)
		}
		for _, p := range preds {
			for _, tag := range p.Tags {
				fmt.Fprintln(writer, tag)
			}
			fmt.Fprintln(writer)
		}
		total += len(preds)
		sentences, lines = sentences[:0], lines[:0]
		return nil
	}

	for scanner.Scan() {
		lineNo++
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 {
			continue
		}
		sentences = append(sentences, tokens)
		lines = append(lines, lineNo)
		if len(sentences) == chunkSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, writer.Flush()
}

func tagsCmd(modelPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List the tag inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := model.Load(*modelPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, l := range m.Tags.Labels() {
				fmt.Fprintf(out, "%d\t%s\n", i, l)
			}
			fmt.Fprintf(out, "%d\t%s\n", m.Tags.Start(), tagset.StartLabel)
			fmt.Fprintf(out, "%d\t%s\n", m.Tags.End(), tagset.EndLabel)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent predictions from the prediction log",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.New(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			items, err := s.List(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No predictions yet.")
				return nil
			}
			for _, p := range items {
				score := "-inf"
				if p.Score != nil {
					score = fmt.Sprintf("%g", *p.Score)
				}
				fmt.Fprintf(out, "%s  %s  %s  %s\n",
					shortID(p.ID), p.CreatedAt.Format("2006-01-02 15:04:05"), score,
					formatPairs(tagger.Prediction{Tokens: p.Tokens, Tags: p.Tags}))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "data/predictions.db", "prediction log path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of predictions to show")
	return cmd
}

func formatPairs(p tagger.Prediction) string {
	pairs := make([]string, len(p.Tokens))
	for i, tok := range p.Tokens {
		pairs[i] = tok + "/" + p.Tags[i]
	}
	return strings.Join(pairs, " ")
}

func formatScore(p tagger.Prediction) string {
	if p.Fallback || math.IsInf(p.Score, -1) {
		return "score: -inf (fallback)"
	}
	return fmt.Sprintf("score: %g", p.Score)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
