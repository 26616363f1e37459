package doctext

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const wordDocumentEntry = "word/document.xml"

func isZipArchive(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte("PK\x03\x04"))
}

// extractDOCX pulls the paragraph text out of the OOXML main document part.
func extractDOCX(raw []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != wordDocumentEntry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", wordDocumentEntry, err)
		}
		defer rc.Close()
		return parseDocumentXML(rc)
	}
	return "", errors.New("archive has no " + wordDocumentEntry)
}

// parseDocumentXML streams the document part, collecting the contents of w:t
// runs. Paragraph ends become newlines, explicit tabs and breaks whitespace,
// so the section-heading chunker still sees headings at line starts.
func parseDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	var inText bool

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", wordDocumentEntry, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteString("\t")
			case "br":
				sb.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
