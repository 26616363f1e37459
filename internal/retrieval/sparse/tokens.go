package sparse

import (
	"strings"
	"unicode"
)

// tokenizeAlphaNum lowercases text and splits it into runs of letters and
// digits.
func tokenizeAlphaNum(text string) []string {
	lowered := strings.ToLower(text)
	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// defaultStopwords is the common English list used when fitting vocabularies.
func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "been", "but", "by",
		"for", "from", "had", "has", "have", "he", "her", "his", "if",
		"in", "into", "is", "it", "its", "of", "on", "or", "s", "she",
		"so", "such", "t", "that", "the", "their", "then", "there",
		"these", "they", "this", "to", "was", "were", "will", "with",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
