// Package doctext extracts plain text from stored policy documents. PDF
// bodies go through the pdf parser, DOCX archives through the OOXML reader;
// anything that is already valid UTF-8 is passed through as-is.
package doctext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/policy-qa/internal/core/domain"
	"github.com/kirillkom/policy-qa/internal/core/ports"
)

type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}

	switch {
	case isPDF(raw):
		text, err := extractPDF(raw)
		if err != nil {
			return "", fmt.Errorf("parse pdf %s: %w", doc.Filename, err)
		}
		return text, nil
	case isZipArchive(raw):
		text, err := extractDOCX(raw)
		if err != nil {
			return "", fmt.Errorf("parse docx %s: %w", doc.Filename, err)
		}
		return text, nil
	}

	if !utf8.Valid(raw) {
		return "", fmt.Errorf("unsupported binary format: %s", doc.Filename)
	}
	return strings.TrimSpace(string(raw)), nil
}

func isPDF(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte("%PDF-"))
}

func extractPDF(raw []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", pageNum, err)
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}
