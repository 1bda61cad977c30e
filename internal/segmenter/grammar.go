package segmenter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Default grammar patterns. A marker either carries a Q/Question/Part prefix or
// a separator; the label must be followed by whitespace or the end of the line
// so "3.14" or "I think" are not mistaken for question labels.
const (
	DefaultGrammarVersion = "2024.1"

	DefaultMarkerPattern = `^(?:(?i:q|question|part)\s*(?P<index>\d+|[ivxlcdmIVXLCDM]+)(?:\s*[).:]|\s+-)?` +
		`|(?P<index_bare>\d+|[IVXLCDM]+|[ivxlcdm]+)(?:\s*[).:]|\s+-))(?:\s+|$)`

	DefaultPointsPattern = `(?i)[(\[]?\s*(?P<points>\d+(?:\.\d+)?)\s*(?:pts?|points?|marks?)\b\.?\s*[)\]]?`

	DefaultKeywordsPattern = `(?i)\bkey\s*words?\s*:\s*(?P<keywords>[^\n]*)`

	DefaultAnswerPattern = `(?i)\b(?:answer|solution|ans)\s*:\s*`

	DefaultKeywordCount = 8
	DefaultTotalPoints  = 100.0
)

var (
	// ErrInvalidGrammar reports a grammar whose patterns do not compile or lack
	// the required capture groups.
	ErrInvalidGrammar = errors.New("invalid segmentation grammar")
)

// Grammar is the declared, versioned configuration of question detection.
// Capture groups whose names start with "index" hold the marker label; the
// points and keywords patterns must define "points" and "keywords" groups.
type Grammar struct {
	Version         string  `json:"version" mapstructure:"version"`
	MarkerPattern   string  `json:"marker_pattern" mapstructure:"marker_pattern"`
	PointsPattern   string  `json:"points_pattern" mapstructure:"points_pattern"`
	KeywordsPattern string  `json:"keywords_pattern" mapstructure:"keywords_pattern"`
	AnswerPattern   string  `json:"answer_pattern" mapstructure:"answer_pattern"`
	KeywordCount    int     `json:"keyword_count" mapstructure:"keyword_count"`
	TotalPoints     float64 `json:"total_points" mapstructure:"total_points"`
}

// DefaultGrammar returns the built-in grammar.
func DefaultGrammar() Grammar {
	return Grammar{
		Version:         DefaultGrammarVersion,
		MarkerPattern:   DefaultMarkerPattern,
		PointsPattern:   DefaultPointsPattern,
		KeywordsPattern: DefaultKeywordsPattern,
		AnswerPattern:   DefaultAnswerPattern,
		KeywordCount:    DefaultKeywordCount,
		TotalPoints:     DefaultTotalPoints,
	}
}

// withDefaults fills empty fields from the default grammar.
func (g Grammar) withDefaults() Grammar {
	def := DefaultGrammar()
	if strings.TrimSpace(g.Version) == "" {
		g.Version = def.Version
	}
	if strings.TrimSpace(g.MarkerPattern) == "" {
		g.MarkerPattern = def.MarkerPattern
	}
	if strings.TrimSpace(g.PointsPattern) == "" {
		g.PointsPattern = def.PointsPattern
	}
	if strings.TrimSpace(g.KeywordsPattern) == "" {
		g.KeywordsPattern = def.KeywordsPattern
	}
	if strings.TrimSpace(g.AnswerPattern) == "" {
		g.AnswerPattern = def.AnswerPattern
	}
	if g.KeywordCount <= 0 {
		g.KeywordCount = def.KeywordCount
	}
	if g.TotalPoints <= 0 {
		g.TotalPoints = def.TotalPoints
	}
	return g
}

// Validate compiles the grammar and reports the first problem found.
func (g Grammar) Validate() error {
	_, err := compile(g.withDefaults())
	return err
}

type compiledGrammar struct {
	Grammar
	marker       *regexp.Regexp
	markerGroups []int
	points       *regexp.Regexp
	pointsGroup  int
	keywords     *regexp.Regexp
	keywordGroup int
	answer       *regexp.Regexp
}

func compile(g Grammar) (*compiledGrammar, error) {
	marker, err := regexp.Compile(g.MarkerPattern)
	if err != nil {
		return nil, fmt.Errorf("marker pattern: %v: %w", err, ErrInvalidGrammar)
	}
	var markerGroups []int
	for i, name := range marker.SubexpNames() {
		if strings.HasPrefix(name, "index") {
			markerGroups = append(markerGroups, i)
		}
	}
	if len(markerGroups) == 0 {
		return nil, fmt.Errorf("marker pattern needs an index group: %w", ErrInvalidGrammar)
	}

	points, err := regexp.Compile(g.PointsPattern)
	if err != nil {
		return nil, fmt.Errorf("points pattern: %v: %w", err, ErrInvalidGrammar)
	}
	pointsGroup := points.SubexpIndex("points")
	if pointsGroup < 0 {
		return nil, fmt.Errorf("points pattern needs a points group: %w", ErrInvalidGrammar)
	}

	keywords, err := regexp.Compile(g.KeywordsPattern)
	if err != nil {
		return nil, fmt.Errorf("keywords pattern: %v: %w", err, ErrInvalidGrammar)
	}
	keywordGroup := keywords.SubexpIndex("keywords")
	if keywordGroup < 0 {
		return nil, fmt.Errorf("keywords pattern needs a keywords group: %w", ErrInvalidGrammar)
	}

	answer, err := regexp.Compile(g.AnswerPattern)
	if err != nil {
		return nil, fmt.Errorf("answer pattern: %v: %w", err, ErrInvalidGrammar)
	}

	return &compiledGrammar{
		Grammar:      g,
		marker:       marker,
		markerGroups: markerGroups,
		points:       points,
		pointsGroup:  pointsGroup,
		keywords:     keywords,
		keywordGroup: keywordGroup,
		answer:       answer,
	}, nil
}

// marker is a detected question label. style identifies how the label was
// written, e.g. "bare:digit:)" for "1)" or "prefixed:digit" for "Q1.".
type marker struct {
	index int
	rest  string
	style string
}

// matchMarker returns the label at the start of line and the text following it.
func (c *compiledGrammar) matchMarker(line string) (marker, bool) {
	loc := c.marker.FindStringSubmatchIndex(line)
	if loc == nil {
		return marker{}, false
	}
	for _, group := range c.markerGroups {
		start, end := loc[2*group], loc[2*group+1]
		if start < 0 || end <= start {
			continue
		}
		label := line[start:end]
		index, ok := parseLabel(label)
		if !ok {
			return marker{}, false
		}
		return marker{
			index: index,
			rest:  strings.TrimSpace(line[loc[1]:]),
			style: markerStyle(line[loc[0]:start], label, line[end:loc[1]]),
		}, true
	}
	return marker{}, false
}

func markerStyle(prefix, label, separator string) string {
	kind := "roman"
	if label[0] >= '0' && label[0] <= '9' {
		kind = "digit"
	}
	if strings.TrimSpace(prefix) != "" {
		return "prefixed:" + kind
	}
	return "bare:" + kind + ":" + strings.TrimSpace(separator)
}

func parseLabel(label string) (int, bool) {
	if label == "" {
		return 0, false
	}
	if label[0] >= '0' && label[0] <= '9' {
		n := 0
		for _, r := range label {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int(r-'0')
			if n > 10000 {
				return 0, false
			}
		}
		return n, n > 0
	}
	return parseRoman(label)
}

var romanValues = map[byte]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000}

// parseRoman accepts canonical roman numerals only, so words such as "civil" or
// "mild" are not read as labels.
func parseRoman(label string) (int, bool) {
	upper := strings.ToUpper(label)
	total, prev := 0, 0
	for i := len(upper) - 1; i >= 0; i-- {
		v, ok := romanValues[upper[i]]
		if !ok {
			return 0, false
		}
		if v < prev {
			total -= v
		} else {
			total += v
			prev = v
		}
	}
	if total <= 0 || toRoman(total) != upper {
		return 0, false
	}
	return total, true
}

var romanTable = []struct {
	value  int
	symbol string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

func toRoman(n int) string {
	var sb strings.Builder
	for _, entry := range romanTable {
		for n >= entry.value {
			sb.WriteString(entry.symbol)
			n -= entry.value
		}
	}
	return sb.String()
}
