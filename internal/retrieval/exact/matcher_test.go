package exact

import (
	"math"
	"testing"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

func chunk(id, text string) domain.Chunk {
	return domain.Chunk{ID: id, Text: text}
}

func TestMatchScoresQueryTermFraction(t *testing.T) {
	chunks := []domain.Chunk{
		chunk("both", "The waiting period for maternity is 24 months."),
		chunk("one", "A waiting room is provided at the clinic."),
		chunk("none", "Ambulance charges are reimbursed at actuals."),
	}

	results := Match("waiting period", chunks)
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if results[0].ID != "both" || math.Abs(results[0].Score-1.0) > 1e-9 {
		t.Fatalf("expected full overlap first with score 1.0, got %s %f", results[0].ID, results[0].Score)
	}
	if results[1].ID != "one" || math.Abs(results[1].Score-0.5) > 1e-9 {
		t.Fatalf("expected partial overlap score 0.5, got %s %f", results[1].ID, results[1].Score)
	}
	if results[0].Method != domain.MethodExact {
		t.Fatalf("expected exact method tag, got %s", results[0].Method)
	}
}

func TestMatchReportsSortedMatchedTerms(t *testing.T) {
	results := Match("period waiting", []domain.Chunk{
		chunk("c", "waiting period clause"),
	})
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	got := results[0].MatchedTerms
	if len(got) != 2 || got[0] != "period" || got[1] != "waiting" {
		t.Fatalf("expected sorted matched terms, got %v", got)
	}
}

func TestMatchIgnoresCaseAndPunctuation(t *testing.T) {
	results := Match("GRACE-PERIOD?", []domain.Chunk{
		chunk("c", "Grace period: thirty days."),
	})
	if len(results) != 1 || results[0].Score != 1.0 {
		t.Fatalf("expected case and punctuation insensitive full match, got %+v", results)
	}
}

func TestMatchEmptyQueryReturnsEmpty(t *testing.T) {
	if got := Match("  ...  ", []domain.Chunk{chunk("c", "anything")}); len(got) != 0 {
		t.Fatalf("expected no matches for termless query, got %d", len(got))
	}
}

func TestMatchCapsResultsAndKeepsCorpusOrderOnTies(t *testing.T) {
	chunks := make([]domain.Chunk, 0, maxResults+3)
	for i := 0; i < maxResults+3; i++ {
		chunks = append(chunks, domain.Chunk{
			ID:      string(rune('a' + i)),
			Ordinal: i,
			Text:    "deductible applies",
		})
	}

	results := Match("deductible", chunks)
	if len(results) != maxResults {
		t.Fatalf("expected %d results, got %d", maxResults, len(results))
	}
	for i, r := range results {
		if r.ID != chunks[i].ID {
			t.Fatalf("tie at %d broke corpus order: got %s want %s", i, r.ID, chunks[i].ID)
		}
	}
}
