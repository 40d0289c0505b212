// Package match ranks cached media entries against free-text queries by
// word overlap. The scoring is deliberately fuzzy: a query token matches a
// stored term when either contains the other, so partial and compound
// search phrases still hit without a full-text index.
package match

import (
	"sort"
	"strings"
)

// DefaultLimit is how many ranked entries a lookup returns unless the
// caller asks for more.
const DefaultLimit = 5

// minTokenLen filters out words too short to carry meaning ("a", "of", "in").
const minTokenLen = 3

// Tokens normalizes a query into significant lowercase tokens. Tokens
// shorter than three runes are dropped.
func Tokens(query string) []string {
	var toks []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(f)) >= minTokenLen {
			toks = append(toks, f)
		}
	}
	return toks
}

// Score counts how many query tokens overlap the candidate's stored terms.
// Each query token contributes at most one point no matter how many terms
// it matches.
func Score(tokens, terms []string) int {
	score := 0
	for _, tok := range tokens {
		for _, term := range terms {
			t := strings.ToLower(term)
			if strings.Contains(t, tok) || strings.Contains(tok, t) {
				score++
				break
			}
		}
	}
	return score
}

// Rank scores every candidate term set against the query and returns the
// indices of the best matches, best first, at most limit entries. Zero-score
// candidates are discarded. Ties keep insertion order. A query with no
// significant tokens ranks nothing.
func Rank(query string, candidates [][]string, limit int) []int {
	tokens := Tokens(query)
	if len(tokens) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	type scored struct {
		idx   int
		score int
	}
	var hits []scored
	for i, terms := range candidates {
		if s := Score(tokens, terms); s > 0 {
			hits = append(hits, scored{idx: i, score: s})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.idx)
	}
	return out
}
