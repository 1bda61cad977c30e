package textproc

import (
	"sort"
	"strings"
	"unicode"
)

// TokenSet is a set of normalized tokens.
type TokenSet map[string]struct{}

// Words splits text into lowercase word tokens. Punctuation separates tokens;
// apostrophes inside a word are dropped so "don't" becomes "dont".
func Words(text string) []string {
	if text == "" {
		return nil
	}

	words := make([]string, 0, len(text)/5)
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		case r == '\'' || r == '’':
			continue
		default:
			flush()
		}
	}
	flush()

	return words
}

// Tokens returns the content words of text: lowercase, punctuation stripped,
// stopwords removed.
func Tokens(text string) []string {
	words := Words(text)
	out := words[:0]
	for _, w := range words {
		if IsStopword(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// NewTokenSet builds the normalized token set of text.
func NewTokenSet(text string) TokenSet {
	set := TokenSet{}
	for _, token := range Tokens(text) {
		set[token] = struct{}{}
	}
	return set
}

// SetOf builds a token set from already normalized tokens.
func SetOf(tokens ...string) TokenSet {
	set := make(TokenSet, len(tokens))
	for _, token := range tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token != "" {
			set[token] = struct{}{}
		}
	}
	return set
}

// Has reports whether token is in the set.
func (s TokenSet) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Sorted returns the members in lexical order.
func (s TokenSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for token := range s {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// Jaccard returns |A∩B| / |A∪B|. Two empty sets are identical (1.0); exactly one
// empty set shares nothing (0.0).
func Jaccard(a, b TokenSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	intersection := 0
	for token := range small {
		if large.Has(token) {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// NormalizeKeywords lowercases, tokenizes and deduplicates keyword phrases,
// preserving first-seen order. Multi-word phrases contribute each content word.
func NormalizeKeywords(raw []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(raw))
	for _, phrase := range raw {
		for _, token := range Tokens(phrase) {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			out = append(out, token)
		}
	}
	return out
}

// TopKeywords returns the n most frequent content words of text. Ties are broken
// alphabetically so the result is reproducible.
func TopKeywords(text string, n int) []string {
	if n <= 0 {
		return nil
	}

	counts := map[string]int{}
	for _, token := range Tokens(text) {
		if len([]rune(token)) < 2 || isNumeric(token) {
			continue
		}
		counts[token]++
	}

	ranked := make([]string, 0, len(counts))
	for token := range counts {
		ranked = append(ranked, token)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func isNumeric(token string) bool {
	for _, r := range token {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
