package textproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokensStripsPunctuationAndStopwords(t *testing.T) {
	tokens := Tokens("TCP is a reliable, ORDERED protocol; it doesn't drop data!")
	require.Equal(t, []string{"tcp", "reliable", "ordered", "protocol", "doesnt", "drop", "data"}, tokens)
}

func TestJaccardProperties(t *testing.T) {
	a := NewTokenSet("reliable ordered stream")
	b := NewTokenSet("ordered datagram stream")

	require.InDelta(t, 0.5, Jaccard(a, b), 1e-9)
	require.Equal(t, Jaccard(a, b), Jaccard(b, a))
	require.Equal(t, 1.0, Jaccard(TokenSet{}, TokenSet{}))
	require.Equal(t, 0.0, Jaccard(a, TokenSet{}))
	require.Equal(t, 0.0, Jaccard(TokenSet{}, a))
	require.Equal(t, 1.0, Jaccard(a, a))
}

func TestJaccardOfStopwordOnlyTextIsEmptySet(t *testing.T) {
	require.Empty(t, NewTokenSet("the and of"))
	require.Equal(t, 1.0, Jaccard(NewTokenSet("the and"), NewTokenSet("")))
}

func TestNormalizeKeywordsDeduplicatesCaseInsensitively(t *testing.T) {
	got := NormalizeKeywords([]string{"Reliable", " ordered ", "reliable", "three-way handshake", ""})
	require.Equal(t, []string{"reliable", "ordered", "three", "way", "handshake"}, got)
}

func TestTopKeywordsIsDeterministic(t *testing.T) {
	text := "Packets packets packets arrive in order. Order matters; routers forward packets and routers drop 42 frames."
	require.Equal(t, []string{"packets", "order", "routers"}, TopKeywords(text, 3))
	require.Equal(t, TopKeywords(text, 5), TopKeywords(text, 5))
	require.Nil(t, TopKeywords(text, 0))
}
