package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

func buildParsePrompt(question string) string {
	return `You are an insurance policy query analyzer.
Return a strict JSON object with keys:
intent (string, one of coverage_inquiry, waiting_period, exclusion_check, benefit_amount, general),
clause_type (string), policy_section (string), specific_terms (array of strings).
No markdown, no extra keys.

Question:
` + question
}

func buildAnswerPrompt(question string, parsed domain.ParsedQuery, contexts []domain.RetrievalResult) string {
	var contextBuilder strings.Builder
	for idx, c := range contexts {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] chunk=%s section=%s method=%s score=%.3f\n%s\n\n",
			idx+1,
			c.ID,
			c.Metadata.Section,
			c.Method,
			c.Score,
			c.Text,
		))
	}

	return fmt.Sprintf(`You answer questions about an insurance policy using only the clauses below.
Detected intent: %s.
Return a strict JSON object with keys: answer (string), justification (string citing clause numbers).
If the clauses do not contain the answer, say so in the answer field.

Question:
%s

Clauses:
%s`, parsed.Intent, question, contextBuilder.String())
}
