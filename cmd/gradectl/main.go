// Command gradectl previews extraction, segmentation and scoring on local
// files without a database or server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noah-isme/autograde-api/internal/extractor"
	"github.com/noah-isme/autograde-api/internal/grading"
	"github.com/noah-isme/autograde-api/internal/segmenter"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gradectl",
		Short:         "Preview how documents are extracted, segmented and scored",
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("content-type", "", "Override the detected content type")
	root.PersistentFlags().Bool("debug", false, "Log debug output to stderr")

	root.AddCommand(extractCmd(), segmentCmd(), scoreCmd())
	return root
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract FILE",
		Short: "Print the text blocks extracted from a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := extractFile(cmd, args[0])
			if err != nil {
				return err
			}

			blocks := make([]extractor.Block, 0)
			for block, err := range doc.Blocks() {
				if err != nil {
					return err
				}
				blocks = append(blocks, block)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"content_type": doc.ContentType,
				"pages":        doc.NumPages(),
				"blocks":       blocks,
			})
		},
	}
}

func segmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment FILE",
		Short: "Detect questions, points and keywords in a solution document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seg, err := segmenterFor(cmd)
			if err != nil {
				return err
			}
			blocks, err := extractBlocks(cmd, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), seg.SegmentSolution(blocks))
		},
	}
	addGrammarFlags(cmd)
	return cmd
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score SOLUTION SUBMISSION",
		Short: "Grade a submission document against a solution document",
		Args:  cobra.ExactArgs(2),
		RunE:  runScore,
	}
	addGrammarFlags(cmd)
	f := cmd.Flags()
	f.Float64("keyword-weight", grading.DefaultWeights().Keyword, "Weight of keyword coverage")
	f.Float64("similarity-weight", grading.DefaultWeights().Similarity, "Weight of reference similarity")
	return cmd
}

func runScore(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	logger := loggerFor(cmd)

	seg, err := segmenterFor(cmd)
	if err != nil {
		return err
	}
	engine, err := grading.NewEngine(grading.Weights{
		Keyword:    v.GetFloat64("keyword-weight"),
		Similarity: v.GetFloat64("similarity-weight"),
	})
	if err != nil {
		return err
	}

	solutionBlocks, err := extractBlocks(cmd, args[0])
	if err != nil {
		return fmt.Errorf("solution: %w", err)
	}
	solution := seg.SegmentSolution(solutionBlocks)

	questions := make([]grading.Question, 0, len(solution.Questions))
	indices := make([]int, 0, len(solution.Questions))
	for _, q := range solution.Questions {
		questions = append(questions, grading.Question{
			ID:        uint(q.Index),
			Index:     q.Index,
			MaxPoints: q.MaxPoints,
			Reference: q.Reference,
			Keywords:  q.Keywords,
		})
		indices = append(indices, q.Index)
	}

	submissionBlocks, err := extractBlocks(cmd, args[1])
	if err != nil {
		return fmt.Errorf("submission: %w", err)
	}
	submission := seg.SegmentSubmission(submissionBlocks, indices)

	answers := make([]grading.Answer, 0, len(submission.Answers))
	for _, answer := range submission.Answers {
		if answer.Matched {
			answers = append(answers, grading.Answer{QuestionID: uint(answer.Index), Text: answer.Text})
		}
	}

	result, err := engine.Grade(questions, answers)
	if err != nil {
		return err
	}
	logger.Debug().Float64("total", result.Total).Float64("max_total", result.MaxTotal).Msg("submission scored")

	warnings := append(append([]string{}, solution.Warnings...), submission.Warnings...)
	return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
		"grammar_version": solution.GrammarVersion,
		"grade_total":     result.Total,
		"max_total":       result.MaxTotal,
		"breakdown":       result.Breakdown,
		"warnings":        warnings,
	})
}

func addGrammarFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("marker-pattern", "", "Regular expression matching question markers")
	f.String("points-pattern", "", "Regular expression matching point annotations")
	f.Int("keyword-count", segmenter.DefaultKeywordCount, "Keywords derived per question when none are listed")
	f.Float64("total-points", segmenter.DefaultTotalPoints, "Points shared by unannotated questions")
}

func segmenterFor(cmd *cobra.Command) (*segmenter.Segmenter, error) {
	v := viperForCmd(cmd)
	return segmenter.New(segmenter.Grammar{
		MarkerPattern: v.GetString("marker-pattern"),
		PointsPattern: v.GetString("points-pattern"),
		KeywordCount:  v.GetInt("keyword-count"),
		TotalPoints:   v.GetFloat64("total-points"),
	})
}

func extractFile(cmd *cobra.Command, path string) (*extractor.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	contentType := viperForCmd(cmd).GetString("content-type")
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	}

	logger := loggerFor(cmd)
	logger.Debug().Str("path", path).Str("content_type", contentType).Int("bytes", len(data)).Msg("extracting")
	return extractor.New(nil).Extract(context.Background(), data, contentType)
}

func extractBlocks(cmd *cobra.Command, path string) ([]extractor.Block, error) {
	doc, err := extractFile(cmd, path)
	if err != nil {
		return nil, err
	}
	var blocks []extractor.Block
	for block, err := range doc.Blocks() {
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// viperForCmd binds a command's flags and GRADER_ environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.InheritedFlags())

	v.SetEnvPrefix("GRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func loggerFor(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.InfoLevel
	if viperForCmd(cmd).GetBool("debug") {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()
}

func writeJSON(w io.Writer, value interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
