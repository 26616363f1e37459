package chunking

import (
	"strings"
	"testing"
)

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(100, 20)
	if got := s.Split("   "); got != nil {
		t.Fatalf("expected nil for blank text, got %v", got)
	}
}

func TestSplitWithoutHeadings(t *testing.T) {
	s := NewSplitter(1000, 0)
	passages := s.Split("This policy covers hospitalization expenses.")
	if len(passages) != 1 {
		t.Fatalf("expected 1 passage, got %d", len(passages))
	}
	if passages[0].Section != "" {
		t.Fatalf("expected untitled section, got %q", passages[0].Section)
	}
}

func TestSplitCutsAtClauseHeadings(t *testing.T) {
	text := "Preamble text.\n" +
		"PART I\nDefinitions of terms used in this policy.\n" +
		"ARTICLE 12.\nMaternity benefits and waiting periods.\n"
	s := NewSplitter(1000, 0)

	passages := s.Split(text)
	if len(passages) != 3 {
		t.Fatalf("expected 3 passages, got %d: %+v", len(passages), passages)
	}
	if passages[0].Section != "" {
		t.Fatalf("preamble must be untitled, got %q", passages[0].Section)
	}
	if passages[1].Section != "PART I" {
		t.Fatalf("section = %q, want PART I", passages[1].Section)
	}
	if passages[2].Section != "ARTICLE 12." {
		t.Fatalf("section = %q, want ARTICLE 12.", passages[2].Section)
	}
	if !strings.Contains(passages[2].Text, "Maternity") {
		t.Fatalf("clause body lost: %q", passages[2].Text)
	}
}

func TestSplitWindowsLongSections(t *testing.T) {
	body := strings.Repeat("waiting period clause text ", 50)
	s := NewSplitter(200, 40)

	passages := s.Split("PART I\n" + body)
	if len(passages) < 2 {
		t.Fatalf("expected long section windowed into several passages, got %d", len(passages))
	}
	for i, p := range passages {
		if p.Section != "PART I" {
			t.Fatalf("passage %d lost section title: %q", i, p.Section)
		}
		if len([]rune(p.Text)) > 200 {
			t.Fatalf("passage %d exceeds chunk size: %d", i, len([]rune(p.Text)))
		}
	}
}

func TestSplitOverlapRepeatsTailText(t *testing.T) {
	body := strings.Repeat("abcdefghij", 30)
	s := NewSplitter(100, 50)

	passages := s.Split(body)
	if len(passages) < 3 {
		t.Fatalf("expected overlapping windows, got %d", len(passages))
	}
	// Each window starts 50 runes after the previous, so consecutive
	// windows share half their text.
	first := passages[0].Text
	second := passages[1].Text
	if !strings.HasPrefix(second, first[50:]) {
		t.Fatalf("expected 50-rune overlap between windows")
	}
}
