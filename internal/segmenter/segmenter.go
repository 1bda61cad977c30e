package segmenter

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/autograde-api/internal/extractor"
	"github.com/noah-isme/autograde-api/internal/textproc"
)

// QuestionSegment is one question detected in a solution document.
type QuestionSegment struct {
	Index            int      `json:"index"`
	Prompt           string   `json:"prompt"`
	Reference        string   `json:"reference"`
	Keywords         []string `json:"keywords"`
	MaxPoints        float64  `json:"max_points"`
	ExplicitPoints   bool     `json:"explicit_points"`
	ExplicitKeywords bool     `json:"explicit_keywords"`
	Page             int      `json:"page"`
	Position         int      `json:"position"`
}

// SolutionResult is the outcome of solution-mode segmentation.
type SolutionResult struct {
	GrammarVersion string            `json:"grammar_version"`
	Questions      []QuestionSegment `json:"questions"`
	TotalPoints    float64           `json:"total_points"`
	Warnings       []string          `json:"warnings"`
}

// AnswerSegment is the student text detected for one question label. Matched is
// false when the label is not a question index of the exam.
type AnswerSegment struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Matched  bool   `json:"matched"`
	Page     int    `json:"page"`
	Position int    `json:"position"`
}

// SubmissionResult is the outcome of submission-mode segmentation.
type SubmissionResult struct {
	GrammarVersion string          `json:"grammar_version"`
	Answers        []AnswerSegment `json:"answers"`
	Warnings       []string        `json:"warnings"`
}

// Segmenter partitions extracted blocks into per-question units. It never
// fails; anything it cannot interpret is reported as a warning.
type Segmenter struct {
	grammar *compiledGrammar
}

// New compiles grammar, filling unset fields with defaults.
func New(grammar Grammar) (*Segmenter, error) {
	compiled, err := compile(grammar.withDefaults())
	if err != nil {
		return nil, err
	}
	return &Segmenter{grammar: compiled}, nil
}

// NewDefault returns a segmenter using the built-in grammar.
func NewDefault() *Segmenter {
	s, err := New(DefaultGrammar())
	if err != nil {
		panic(err)
	}
	return s
}

// Grammar returns the effective grammar.
func (s *Segmenter) Grammar() Grammar {
	return s.grammar.Grammar
}

type segment struct {
	index    int
	page     int
	position int
	lines    []string
}

func (s *Segmenter) split(blocks []extractor.Block) ([]string, []segment) {
	var (
		preamble []string
		segments []segment
	)
	for _, block := range blocks {
		if m, ok := s.grammar.matchMarker(block.Text); ok {
			segments = append(segments, newSegment(m, block))
			continue
		}
		if len(segments) == 0 {
			preamble = append(preamble, block.Text)
			continue
		}
		last := &segments[len(segments)-1]
		last.lines = append(last.lines, block.Text)
	}
	return preamble, segments
}

// splitAnswers partitions a student document. The first accepted label fixes
// the labeling style; a later label opens a new answer only when it has that
// style and either names a question not answered yet or continues past every
// label seen so far. Other label-like lines, such as numbered lists inside an
// answer, stay in the current answer's text.
func (s *Segmenter) splitAnswers(blocks []extractor.Block, known map[int]struct{}) ([]string, []segment, []string) {
	var (
		preamble []string
		segments []segment
		warnings []string
		style    string
	)

	anyKnown := false
	for _, block := range blocks {
		if m, ok := s.grammar.matchMarker(block.Text); ok {
			if _, hit := known[m.index]; hit {
				anyKnown = true
				break
			}
		}
	}

	opened := make(map[int]bool)
	highest := 0
	for _, block := range blocks {
		m, ok := s.grammar.matchMarker(block.Text)
		if ok {
			_, isQuestion := known[m.index]
			if len(segments) == 0 {
				ok = isQuestion || !anyKnown
			} else {
				ok = m.style == style && !opened[m.index] && (isQuestion || m.index > highest)
				if !ok {
					current := segments[len(segments)-1].index
					warnings = append(warnings,
						fmt.Sprintf("kept label %d at position %d as text of answer %d", m.index, block.Position, current))
				}
			}
		}
		if ok {
			if len(segments) == 0 {
				style = m.style
			}
			opened[m.index] = true
			highest = max(highest, m.index)
			segments = append(segments, newSegment(m, block))
			continue
		}
		if len(segments) == 0 {
			preamble = append(preamble, block.Text)
			continue
		}
		last := &segments[len(segments)-1]
		last.lines = append(last.lines, block.Text)
	}
	return preamble, segments, warnings
}

func newSegment(m marker, block extractor.Block) segment {
	seg := segment{index: m.index, page: block.Page, position: block.Position}
	if m.rest != "" {
		seg.lines = append(seg.lines, m.rest)
	}
	return seg
}

// mergeRepeated folds segments sharing an index into the first occurrence.
func mergeRepeated(segments []segment) ([]segment, []int) {
	seen := make(map[int]int, len(segments))
	merged := make([]segment, 0, len(segments))
	var repeated []int
	for _, seg := range segments {
		if at, ok := seen[seg.index]; ok {
			merged[at].lines = append(merged[at].lines, seg.lines...)
			if !slices.Contains(repeated, seg.index) {
				repeated = append(repeated, seg.index)
			}
			continue
		}
		seen[seg.index] = len(merged)
		merged = append(merged, seg)
	}
	return merged, repeated
}

// SegmentSolution detects questions, point values, answer keys and keywords.
func (s *Segmenter) SegmentSolution(blocks []extractor.Block) SolutionResult {
	result := SolutionResult{GrammarVersion: s.grammar.Version, Questions: []QuestionSegment{}, Warnings: []string{}}

	preamble, segments := s.split(blocks)
	switch {
	case len(segments) == 0 && len(preamble) == 0:
		result.Warnings = append(result.Warnings, "document contains no text")
		return result
	case len(segments) == 0:
		first := blocks[0]
		segments = []segment{{index: 1, page: first.Page, position: first.Position, lines: preamble}}
		result.Warnings = append(result.Warnings, "no question markers found; treated the document as a single question")
	case len(preamble) > 0:
		result.Warnings = append(result.Warnings, fmt.Sprintf("ignored %d line(s) before the first question", len(preamble)))
	}

	segments, repeated := mergeRepeated(segments)
	for _, index := range repeated {
		result.Warnings = append(result.Warnings, fmt.Sprintf("question %d appears more than once; parts were merged", index))
	}

	for _, seg := range segments {
		question, warnings := s.parseQuestion(seg)
		result.Questions = append(result.Questions, question)
		result.Warnings = append(result.Warnings, warnings...)
	}

	s.assignPoints(result.Questions)
	sort.SliceStable(result.Questions, func(i, j int) bool {
		return result.Questions[i].Index < result.Questions[j].Index
	})

	total := 0.0
	for _, q := range result.Questions {
		total += q.MaxPoints
	}
	result.TotalPoints = round2(total)
	return result
}

func (s *Segmenter) parseQuestion(seg segment) (QuestionSegment, []string) {
	g := s.grammar
	question := QuestionSegment{Index: seg.index, Page: seg.page, Position: seg.position}
	var warnings []string

	body := strings.Join(seg.lines, "\n")

	// The last annotation carries the points; earlier matches such as
	// "List 3 points" belong to the prompt.
	if locs := g.points.FindAllStringSubmatchIndex(body, -1); len(locs) > 0 {
		loc := locs[len(locs)-1]
		raw := body[loc[2*g.pointsGroup]:loc[2*g.pointsGroup+1]]
		value, err := strconv.ParseFloat(raw, 64)
		if err == nil && value > 0 {
			question.MaxPoints = value
			question.ExplicitPoints = true
		} else {
			warnings = append(warnings, fmt.Sprintf("question %d: ignored non-positive points annotation", seg.index))
		}
		body = body[:loc[0]] + " " + body[loc[1]:]
	}

	var rawKeywords []string
	for _, match := range g.keywords.FindAllStringSubmatch(body, -1) {
		rawKeywords = append(rawKeywords, commaKeywords(match[g.keywordGroup])...)
	}
	if len(rawKeywords) > 0 {
		body = g.keywords.ReplaceAllLiteralString(body, "")
	}

	var prompt, reference string
	if loc := g.answer.FindStringIndex(body); loc != nil {
		prompt, reference = body[:loc[0]], body[loc[1]:]
	} else {
		prompt, reference = splitPrompt(body)
	}
	question.Prompt = collapse(prompt)
	question.Reference = collapse(reference)
	if question.Prompt == "" {
		question.Prompt = question.Reference
	}

	if keywords := textproc.NormalizeKeywords(rawKeywords); len(keywords) > 0 {
		question.Keywords = keywords
		question.ExplicitKeywords = true
	} else {
		question.Keywords = textproc.TopKeywords(question.Reference, g.KeywordCount)
	}
	if question.Keywords == nil {
		question.Keywords = []string{}
	}

	if question.Reference == "" {
		warnings = append(warnings, fmt.Sprintf("question %d has an empty answer key", seg.index))
	}
	return question, warnings
}

// assignPoints distributes the points left over by explicit annotations
// evenly across unannotated questions.
func (s *Segmenter) assignPoints(questions []QuestionSegment) {
	explicit, unannotated := 0.0, 0
	for _, q := range questions {
		if q.ExplicitPoints {
			explicit += q.MaxPoints
		} else {
			unannotated++
		}
	}
	if unannotated == 0 {
		return
	}

	remaining := s.grammar.TotalPoints - explicit
	share := remaining / float64(unannotated)
	if remaining <= 0 {
		share = s.grammar.TotalPoints / float64(len(questions))
	}
	share = round2(share)
	if share <= 0 {
		share = 0.01
	}
	for i := range questions {
		if !questions[i].ExplicitPoints {
			questions[i].MaxPoints = share
		}
	}
}

// SegmentSubmission splits a student document into answers aligned to the
// exam's question indices.
func (s *Segmenter) SegmentSubmission(blocks []extractor.Block, questionIndices []int) SubmissionResult {
	result := SubmissionResult{GrammarVersion: s.grammar.Version, Answers: []AnswerSegment{}, Warnings: []string{}}

	known := make(map[int]struct{}, len(questionIndices))
	for _, index := range questionIndices {
		known[index] = struct{}{}
	}

	preamble, segments, kept := s.splitAnswers(blocks, known)
	if len(segments) == 0 {
		text := s.answerText(preamble)
		if text == "" {
			result.Warnings = append(result.Warnings, "submission contains no text")
			return result
		}

		target := 1
		if len(questionIndices) > 0 {
			target = slices.Min(questionIndices)
		}
		if len(questionIndices) > 1 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("no answer markers found; assigned the whole text to question %d", target))
		}
		_, matched := known[target]
		result.Answers = append(result.Answers, AnswerSegment{
			Index:    target,
			Text:     text,
			Matched:  matched,
			Page:     blocks[0].Page,
			Position: blocks[0].Position,
		})
		if !matched {
			result.Warnings = append(result.Warnings, fmt.Sprintf("answer labeled %d matches no question", target))
		}
		return result
	}

	if len(preamble) > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("ignored %d line(s) before the first answer", len(preamble)))
	}
	result.Warnings = append(result.Warnings, kept...)

	for _, seg := range segments {
		_, matched := known[seg.index]
		if !matched {
			result.Warnings = append(result.Warnings, fmt.Sprintf("answer labeled %d matches no question", seg.index))
		}
		result.Answers = append(result.Answers, AnswerSegment{
			Index:    seg.index,
			Text:     s.answerText(seg.lines),
			Matched:  matched,
			Page:     seg.page,
			Position: seg.position,
		})
	}

	sort.SliceStable(result.Answers, func(i, j int) bool {
		return result.Answers[i].Index < result.Answers[j].Index
	})
	return result
}

// answerText joins lines and drops a leading "Answer:" label.
func (s *Segmenter) answerText(lines []string) string {
	text := collapse(strings.Join(lines, "\n"))
	if loc := s.grammar.answer.FindStringIndex(text); loc != nil && loc[0] == 0 {
		text = strings.TrimSpace(text[loc[1]:])
	}
	return text
}

// splitPrompt separates the prompt from the reference answer: up to the first
// question mark, else the first line. A single sentence serves as both.
func splitPrompt(body string) (string, string) {
	trimmed := strings.TrimSpace(body)
	if i := strings.Index(trimmed, "?"); i >= 0 {
		if rest := strings.TrimSpace(trimmed[i+1:]); rest != "" {
			return trimmed[:i+1], rest
		}
	}

	var lines []string
	for _, line := range strings.Split(trimmed, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > 1 {
		return lines[0], strings.Join(lines[1:], "\n")
	}
	return trimmed, trimmed
}

func commaKeywords(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
