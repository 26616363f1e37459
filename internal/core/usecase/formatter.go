package usecase

import (
	"math"
	"regexp"
	"strings"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

const (
	snippetLen = 200
	detailLen  = 100
)

var waitingPeriodRe = regexp.MustCompile(`(\d+)\s*(day|month|year)`)

// FormatStructuredResponse shapes the final QA payload from the ranked
// retrieval results and the generated answer. Pure function: no I/O, same
// inputs always give the same output.
func FormatStructuredResponse(question string, answer domain.GeneratedAnswer, retrieved []domain.RetrievalResult, parsed domain.ParsedQuery) *domain.StructuredResponse {
	return &domain.StructuredResponse{
		Question:         question,
		Answer:           answer.Answer,
		Justification:    answer.Justification,
		ConfidenceScore:  confidenceScore(retrieved),
		ResponseType:     classifyResponseType(parsed.Intent),
		ClauseReferences: clauseReferences(retrieved),
		CoverageDetails:  extractCoverageDetails(answer.Answer, retrieved),
		QueryAnalysis: domain.QueryAnalysis{
			Intent:        parsed.Intent,
			ClauseType:    parsed.ClauseType,
			PolicySection: parsed.PolicySection,
			SpecificTerms: specificTerms(parsed),
		},
		RetrievalMetadata: retrievalMetadata(retrieved),
	}
}

// confidenceScore summarizes retrieval quality: the average result score,
// halved when the average is weak (< 0.3), plus 0.1 per distinct retrieval
// method capped at 0.3, clamped to 1.0 and rounded to 3 decimals.
func confidenceScore(retrieved []domain.RetrievalResult) float64 {
	if len(retrieved) == 0 {
		return 0.0
	}

	var sum float64
	methods := make(map[domain.RetrievalMethod]struct{})
	for _, r := range retrieved {
		sum += r.Score
		methods[r.Method] = struct{}{}
	}
	avg := sum / float64(len(retrieved))
	if avg < 0.3 {
		avg *= 0.5
	}
	bonus := math.Min(float64(len(methods))*0.1, 0.3)

	confidence := math.Min(avg+bonus, 1.0)
	return math.Round(confidence*1000) / 1000
}

func classifyResponseType(intent string) string {
	switch {
	case strings.Contains(intent, "coverage"):
		return "coverage_decision"
	case strings.Contains(intent, "waiting"):
		return "waiting_period_info"
	case strings.Contains(intent, "exclusion"):
		return "exclusion_check"
	case strings.Contains(intent, "benefit"):
		return "benefit_calculation"
	default:
		return "general_inquiry"
	}
}

func clauseReferences(retrieved []domain.RetrievalResult) []domain.ClauseReference {
	refs := make([]domain.ClauseReference, 0, len(retrieved))
	for _, r := range retrieved {
		refs = append(refs, domain.ClauseReference{
			ChunkID:      r.ID,
			Score:        r.Score,
			SearchMethod: r.Method,
			Metadata:     r.Metadata,
			TextSnippet:  snippet(r.Text, snippetLen),
		})
	}
	return refs
}

// extractCoverageDetails applies keyword heuristics over the answer text and
// the retrieved chunk texts. Negative phrasing is checked before positive so
// that "not covered" is not mistaken for coverage.
func extractCoverageDetails(answer string, retrieved []domain.RetrievalResult) domain.CoverageDetails {
	details := domain.CoverageDetails{
		Limitations:  []string{},
		Requirements: []string{},
		Exclusions:   []string{},
	}
	answerLower := strings.ToLower(answer)

	switch {
	case containsAny(answerLower, "not covered", "no", "excluded"):
		details.IsCovered = boolPtr(false)
	case containsAny(answerLower, "covered", "yes", "eligible"):
		details.IsCovered = boolPtr(true)
	}

	if m := waitingPeriodRe.FindStringSubmatch(answerLower); m != nil {
		details.WaitingPeriod = m[1] + " " + m[2] + "s"
	}

	for _, r := range retrieved {
		text := strings.ToLower(r.Text)
		if containsAny(text, "limit", "maximum") {
			details.Limitations = append(details.Limitations, truncate(r.Text, detailLen))
		}
		if containsAny(text, "require", "must") {
			details.Requirements = append(details.Requirements, truncate(r.Text, detailLen))
		}
		if containsAny(text, "exclude", "not covered") {
			details.Exclusions = append(details.Exclusions, truncate(r.Text, detailLen))
		}
	}
	return details
}

func retrievalMetadata(retrieved []domain.RetrievalResult) domain.RetrievalMetadata {
	meta := domain.RetrievalMetadata{
		TotalChunksRetrieved: len(retrieved),
		SearchMethodsUsed:    []string{},
	}
	seen := make(map[domain.RetrievalMethod]struct{})
	for _, r := range retrieved {
		if _, ok := seen[r.Method]; !ok {
			seen[r.Method] = struct{}{}
			meta.SearchMethodsUsed = append(meta.SearchMethodsUsed, string(r.Method))
		}
		if r.Score > meta.TopChunkScore {
			meta.TopChunkScore = r.Score
		}
	}
	return meta
}

func specificTerms(parsed domain.ParsedQuery) []string {
	if parsed.SpecificTerms == nil {
		return []string{}
	}
	return parsed.SpecificTerms
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// snippet truncates on rune boundaries and marks the cut with an ellipsis.
func snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func boolPtr(b bool) *bool { return &b }
