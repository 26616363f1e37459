// Package chunking splits extracted policy text into retrieval passages.
// Documents are first cut at clause headings (PART I, ARTICLE 12.) so a
// passage never spans two clauses, then each section is windowed with
// overlap.
package chunking

import (
	"regexp"
	"strings"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

var headingRe = regexp.MustCompile(`(?m)^(PART [IVXLC]+|ARTICLE\s+\d+[A-Z]?\.)`)

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []domain.Passage {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []domain.Passage
	for _, sec := range splitSections(text) {
		for _, window := range s.window(sec.text) {
			out = append(out, domain.Passage{Section: sec.title, Text: window})
		}
	}
	return out
}

type section struct {
	title string
	text  string
}

// splitSections cuts the document at clause headings. Text before the first
// heading (title page, preamble) becomes an untitled section.
func splitSections(text string) []section {
	locs := headingRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []section{{text: text}}
	}

	var out []section
	if preamble := strings.TrimSpace(text[:locs[0][0]]); preamble != "" {
		out = append(out, section{text: preamble})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		title := strings.TrimSpace(text[loc[0]:loc[1]])
		body := strings.TrimSpace(text[loc[1]:end])
		if body == "" {
			continue
		}
		out = append(out, section{title: title, text: body})
	}
	return out
}

func (s *Splitter) window(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
