package grading

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/noah-isme/autograde-api/internal/textproc"
)

var (
	// ErrNotGradable indicates there is no usable question set to grade against.
	ErrNotGradable = errors.New("submission is not gradable")
	// ErrInvalidWeights indicates weights outside [0,1] or not summing to 1.
	ErrInvalidWeights = errors.New("grading weights must be within [0,1] and sum to 1")
)

const weightTolerance = 1e-6

// Weights balance keyword coverage against reference similarity.
type Weights struct {
	Keyword    float64 `json:"keyword"`
	Similarity float64 `json:"similarity"`
}

// DefaultWeights returns 0.4 keyword coverage and 0.6 reference similarity.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.4, Similarity: 0.6}
}

// Validate checks the weights form a convex combination.
func (w Weights) Validate() error {
	if w.Keyword < 0 || w.Keyword > 1 || w.Similarity < 0 || w.Similarity > 1 {
		return ErrInvalidWeights
	}
	if math.Abs(w.Keyword+w.Similarity-1) > weightTolerance {
		return ErrInvalidWeights
	}
	return nil
}

// Question is the answer key of one question.
type Question struct {
	ID        uint
	Index     int
	MaxPoints float64
	Reference string
	Keywords  []string
}

// Answer is a student's text for one question.
type Answer struct {
	QuestionID uint
	Text       string
}

// QuestionScore is one line of the grade breakdown.
type QuestionScore struct {
	Index           int      `json:"index"`
	QuestionID      uint     `json:"question_id"`
	Awarded         float64  `json:"awarded"`
	MaxPoints       float64  `json:"max_points"`
	Coverage        float64  `json:"coverage"`
	Similarity      float64  `json:"similarity"`
	MatchedKeywords []string `json:"matched_keywords"`
	MissingKeywords []string `json:"missing_keywords"`
	Answered        bool     `json:"answered"`
}

// Result is the outcome of grading one submission.
type Result struct {
	Total     float64         `json:"total"`
	MaxTotal  float64         `json:"max_total"`
	Breakdown []QuestionScore `json:"breakdown"`
}

// Engine scores answers against answer keys. It is stateless and safe for
// concurrent use.
type Engine struct {
	weights Weights
}

// NewEngine validates weights and returns an engine.
func NewEngine(weights Weights) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: weights}, nil
}

// Weights returns the configured weights.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Grade scores every question. Questions without an answer score zero.
func (e *Engine) Grade(questions []Question, answers []Answer) (Result, error) {
	if len(questions) == 0 {
		return Result{}, fmt.Errorf("no questions: %w", ErrNotGradable)
	}

	texts := make(map[uint][]string, len(answers))
	for _, answer := range answers {
		texts[answer.QuestionID] = append(texts[answer.QuestionID], answer.Text)
	}

	ordered := make([]Question, len(questions))
	copy(ordered, questions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	result := Result{Breakdown: make([]QuestionScore, 0, len(ordered))}
	total, maxTotal := 0.0, 0.0
	for _, q := range ordered {
		if q.MaxPoints <= 0 || math.IsNaN(q.MaxPoints) || math.IsInf(q.MaxPoints, 0) {
			return Result{}, fmt.Errorf("question %d has invalid max points %v: %w", q.Index, q.MaxPoints, ErrNotGradable)
		}
		score := e.Score(q, strings.Join(texts[q.ID], "\n"))
		result.Breakdown = append(result.Breakdown, score)
		total += score.Awarded
		maxTotal += q.MaxPoints
	}

	result.Total = Round2(total)
	result.MaxTotal = Round2(maxTotal)
	return result, nil
}

// Score grades a single answer text against q.
func (e *Engine) Score(q Question, text string) QuestionScore {
	keywords := textproc.NormalizeKeywords(q.Keywords)
	score := QuestionScore{
		Index:           q.Index,
		QuestionID:      q.ID,
		MaxPoints:       q.MaxPoints,
		MatchedKeywords: []string{},
		MissingKeywords: []string{},
	}

	if strings.TrimSpace(text) == "" {
		score.MissingKeywords = append(score.MissingKeywords, keywords...)
		return score
	}
	score.Answered = true

	answerTokens := textproc.NewTokenSet(text)
	for _, keyword := range keywords {
		if answerTokens.Has(keyword) {
			score.MatchedKeywords = append(score.MatchedKeywords, keyword)
		} else {
			score.MissingKeywords = append(score.MissingKeywords, keyword)
		}
	}

	coverage := 1.0
	if len(keywords) > 0 {
		coverage = float64(len(score.MatchedKeywords)) / float64(len(keywords))
	}
	similarity := textproc.Jaccard(answerTokens, textproc.NewTokenSet(q.Reference))

	fraction := clamp01(e.weights.Keyword*coverage + e.weights.Similarity*similarity)
	score.Coverage = round4(coverage)
	score.Similarity = round4(similarity)
	score.Awarded = math.Min(Round2(q.MaxPoints*fraction), q.MaxPoints)
	return score
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
