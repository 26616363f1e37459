// Package exact scores chunks by lexical overlap with the query. It catches
// literal policy vocabulary (section numbers, defined terms) that embedding
// and TF-IDF retrieval can both miss.
package exact

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

// maxResults bounds how many overlap matches a single query can contribute.
const maxResults = 10

// Match returns chunks sharing at least one term with the query, scored by
// the fraction of query terms present in the chunk. Ties keep corpus order.
func Match(query string, chunks []domain.Chunk) []domain.RetrievalResult {
	queryTerms := termSet(query)
	if len(queryTerms) == 0 {
		return []domain.RetrievalResult{}
	}

	out := make([]domain.RetrievalResult, 0, maxResults)
	for _, c := range chunks {
		chunkTerms := termSet(c.Text)
		matched := make([]string, 0, len(queryTerms))
		for term := range queryTerms {
			if _, ok := chunkTerms[term]; ok {
				matched = append(matched, term)
			}
		}
		if len(matched) == 0 {
			continue
		}
		sort.Strings(matched)
		out = append(out, domain.RetrievalResult{
			ID:           c.ID,
			Score:        float64(len(matched)) / float64(len(queryTerms)),
			Method:       domain.MethodExact,
			Text:         c.Text,
			MatchedTerms: matched,
			Metadata:     c.Metadata,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

func termSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
