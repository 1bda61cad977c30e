package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/textproc"
)

// ErrInvalidThresholds indicates a threshold outside [0,1].
var ErrInvalidThresholds = errors.New("similarity thresholds must be within [0,1]")

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Thresholds decide when a pair is flagged. Either signal is sufficient.
type Thresholds struct {
	Semantic float64 `json:"semantic"`
	Jaccard  float64 `json:"jaccard"`
}

// DefaultThresholds returns 0.85 semantic and 0.6 lexical.
func DefaultThresholds() Thresholds {
	return Thresholds{Semantic: 0.85, Jaccard: 0.6}
}

// Validate checks both thresholds are probabilities.
func (t Thresholds) Validate() error {
	if t.Semantic < 0 || t.Semantic > 1 || t.Jaccard < 0 || t.Jaccard > 1 {
		return ErrInvalidThresholds
	}
	return nil
}

// Entry is one graded answer taking part in detection.
type Entry struct {
	SubmissionID  uint
	QuestionID    uint
	QuestionIndex int
	Text          string
}

// PairKey identifies a canonical pair: SubmissionA < SubmissionB.
type PairKey struct {
	QuestionID  uint `json:"question_id"`
	SubmissionA uint `json:"submission_a"`
	SubmissionB uint `json:"submission_b"`
}

// NewPairKey orders the two submissions.
func NewPairKey(questionID, a, b uint) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{QuestionID: questionID, SubmissionA: a, SubmissionB: b}
}

// Flag is a suspiciously similar pair of answers.
type Flag struct {
	PairKey
	QuestionIndex int     `json:"question_index"`
	Semantic      float64 `json:"semantic"`
	Jaccard       float64 `json:"jaccard"`
	Reason        string  `json:"reason"`
}

// Options narrow a detection run.
type Options struct {
	// Focus restricts comparison to pairs involving this submission when non-zero.
	Focus uint
	// Skip reports pairs that already carry a flag.
	Skip func(PairKey) bool
}

// Stats summarizes a detection run.
type Stats struct {
	Compared        int `json:"compared"`
	Skipped         int `json:"skipped"`
	Flagged         int `json:"flagged"`
	Failed          int `json:"failed"`
	EmbeddingErrors int `json:"embedding_errors"`
}

// Engine compares answers pairwise within each question.
type Engine struct {
	embedder   Embedder
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewEngine builds an engine. A nil embedder disables the semantic signal.
func NewEngine(embedder Embedder, thresholds Thresholds, logger zerolog.Logger) (*Engine, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		embedder:   embedder,
		thresholds: thresholds,
		logger:     logger.With().Str("component", "similarity_engine").Logger(),
	}, nil
}

// Thresholds returns the configured thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

type candidate struct {
	submissionID uint
	text         string
	tokens       textproc.TokenSet
	vector       []float32
}

// Detect compares every pair of entries that share a question. Per-pair
// failures are logged and counted; only context cancellation aborts the run.
func (e *Engine) Detect(ctx context.Context, entries []Entry, opts Options) ([]Flag, Stats, error) {
	var stats Stats
	flags := []Flag{}

	for _, group := range groupByQuestion(entries) {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		if len(group.candidates) < 2 {
			continue
		}
		if opts.Focus != 0 && !group.has(opts.Focus) {
			continue
		}

		if err := e.embed(ctx, group, &stats); err != nil {
			return nil, stats, err
		}

		for i := 0; i < len(group.candidates); i++ {
			for j := i + 1; j < len(group.candidates); j++ {
				a, b := group.candidates[i], group.candidates[j]
				if opts.Focus != 0 && a.submissionID != opts.Focus && b.submissionID != opts.Focus {
					continue
				}

				key := NewPairKey(group.questionID, a.submissionID, b.submissionID)
				if opts.Skip != nil && opts.Skip(key) {
					stats.Skipped++
					continue
				}

				flag, flagged, err := e.compare(key, group.index, a, b)
				if err != nil {
					stats.Failed++
					e.logger.Warn().Err(err).
						Uint("question_id", key.QuestionID).
						Uint("submission_a", key.SubmissionA).
						Uint("submission_b", key.SubmissionB).
						Msg("pair comparison failed")
					continue
				}
				stats.Compared++
				if flagged {
					stats.Flagged++
					flags = append(flags, flag)
				}
			}
		}
	}

	sort.SliceStable(flags, func(i, j int) bool {
		if flags[i].QuestionIndex != flags[j].QuestionIndex {
			return flags[i].QuestionIndex < flags[j].QuestionIndex
		}
		if flags[i].SubmissionA != flags[j].SubmissionA {
			return flags[i].SubmissionA < flags[j].SubmissionA
		}
		return flags[i].SubmissionB < flags[j].SubmissionB
	})
	return flags, stats, nil
}

// embed computes vectors for every non-empty answer of the group in a single
// batch. Embedding failures leave the semantic signal at zero.
func (e *Engine) embed(ctx context.Context, group *questionGroup, stats *Stats) error {
	if e.embedder == nil {
		return nil
	}

	var (
		texts   []string
		targets []int
	)
	for i, c := range group.candidates {
		if c.text == "" {
			continue
		}
		texts = append(texts, c.text)
		targets = append(targets, i)
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		stats.EmbeddingErrors++
		e.logger.Warn().Err(err).Uint("question_id", group.questionID).Msg("embedding unavailable; semantic signal disabled")
		return nil
	}
	if len(vectors) != len(texts) {
		stats.EmbeddingErrors++
		e.logger.Warn().
			Int("expected", len(texts)).
			Int("received", len(vectors)).
			Uint("question_id", group.questionID).
			Msg("embedding count mismatch; semantic signal disabled")
		return nil
	}
	for i, target := range targets {
		group.candidates[target].vector = vectors[i]
	}
	return nil
}

func (e *Engine) compare(key PairKey, index int, a, b *candidate) (Flag, bool, error) {
	jaccard := 0.0
	// Blank or stopword-only answers are not evidence of copying.
	if len(a.tokens) > 0 && len(b.tokens) > 0 {
		jaccard = textproc.Jaccard(a.tokens, b.tokens)
	}

	semantic := 0.0
	if len(a.vector) > 0 && len(b.vector) > 0 {
		cos, err := Cosine(a.vector, b.vector)
		if err != nil {
			return Flag{}, false, err
		}
		semantic = clamp01((cos + 1) / 2)
	}

	var reasons []string
	if semantic >= e.thresholds.Semantic && semantic > 0 {
		reasons = append(reasons, fmt.Sprintf("semantic %.2f >= %.2f", semantic, e.thresholds.Semantic))
	}
	if jaccard >= e.thresholds.Jaccard && jaccard > 0 {
		reasons = append(reasons, fmt.Sprintf("jaccard %.2f >= %.2f", jaccard, e.thresholds.Jaccard))
	}
	if len(reasons) == 0 {
		return Flag{}, false, nil
	}

	return Flag{
		PairKey:       key,
		QuestionIndex: index,
		Semantic:      round4(semantic),
		Jaccard:       round4(jaccard),
		Reason:        fmt.Sprintf("Q%d: %s", index, strings.Join(reasons, "; ")),
	}, true, nil
}

// Cosine returns the cosine similarity of two equal-length vectors. Zero
// vectors have similarity 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions differ: %d != %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, cos)), nil
}

type questionGroup struct {
	questionID uint
	index      int
	candidates []*candidate
}

func (g *questionGroup) has(submissionID uint) bool {
	for _, c := range g.candidates {
		if c.submissionID == submissionID {
			return true
		}
	}
	return false
}

// groupByQuestion buckets entries per question, joining repeated entries of
// one submission, with candidates ordered by submission id.
func groupByQuestion(entries []Entry) []*questionGroup {
	groups := map[uint]*questionGroup{}
	texts := map[uint]map[uint][]string{}
	for _, entry := range entries {
		group, ok := groups[entry.QuestionID]
		if !ok {
			group = &questionGroup{questionID: entry.QuestionID, index: entry.QuestionIndex}
			groups[entry.QuestionID] = group
			texts[entry.QuestionID] = map[uint][]string{}
		}
		texts[entry.QuestionID][entry.SubmissionID] = append(texts[entry.QuestionID][entry.SubmissionID], entry.Text)
	}

	out := make([]*questionGroup, 0, len(groups))
	for questionID, group := range groups {
		for submissionID, parts := range texts[questionID] {
			text := strings.TrimSpace(strings.Join(parts, "\n"))
			group.candidates = append(group.candidates, &candidate{
				submissionID: submissionID,
				text:         text,
				tokens:       textproc.NewTokenSet(text),
			})
		}
		sort.Slice(group.candidates, func(i, j int) bool {
			return group.candidates[i].submissionID < group.candidates[j].submissionID
		})
		out = append(out, group)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].index != out[j].index {
			return out[i].index < out[j].index
		}
		return out[i].questionID < out[j].questionID
	})
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
