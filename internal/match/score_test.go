package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokensDropsShortWords(t *testing.T) {
	assert.Equal(t, []string{"calm", "forest", "dawn"}, Tokens("A calm Forest at dawn"))
	assert.Nil(t, Tokens("a of in"))
	assert.Nil(t, Tokens("   "))
	assert.Nil(t, Tokens(""))
}

func TestRankEmptyQueryReturnsNothing(t *testing.T) {
	candidates := [][]string{{"forest"}, {"city"}}
	assert.Nil(t, Rank("a of", candidates, 5))
	assert.Nil(t, Rank("", candidates, 5))
}

func TestScoreOnePointPerQueryToken(t *testing.T) {
	tokens := Tokens("forest trees")
	// "forest" matches two stored terms but still counts once.
	assert.Equal(t, 1, Score(tokens, []string{"forest", "rainforest"}))
	assert.Equal(t, 2, Score(tokens, []string{"forest", "trees"}))
	assert.Equal(t, 0, Score(tokens, []string{"city", "street"}))
}

func TestScoreSubstringBothDirections(t *testing.T) {
	// Query token contained in stored term.
	assert.Equal(t, 1, Score(Tokens("rain"), []string{"rainforest"}))
	// Stored term contained in query token.
	assert.Equal(t, 1, Score(Tokens("rainforest"), []string{"rain"}))
}

func TestRankOrdersByScoreStable(t *testing.T) {
	candidates := [][]string{
		{"city", "night"},           // 1 point
		{"calm", "forest", "dawn"},  // 3 points
		{"forest", "dawn"},          // 2 points
		{"dawn"},                    // 1 point, after city on tie
		{"desert"},                  // 0 points, dropped
	}
	got := Rank("calm forest dawn city", candidates, 10)
	assert.Equal(t, []int{1, 2, 0, 3}, got)
}

func TestRankTruncatesToLimit(t *testing.T) {
	candidates := [][]string{{"sky"}, {"sky"}, {"sky"}, {"sky"}, {"sky"}, {"sky"}, {"sky"}}
	assert.Len(t, Rank("sky", candidates, 0), DefaultLimit)
	assert.Len(t, Rank("sky", candidates, 2), 2)
}
