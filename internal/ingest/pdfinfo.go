package ingest

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDFPageCounter counts the pages in a PDF file. The coordinator depends on
// this capability rather than calling pdfcpu directly so tests can inject a
// fake counter without needing a byte-accurate PDF fixture.
type PDFPageCounter interface {
	PageCount(path string) (int, error)
}

// PDFCPUCounter is the production PDFPageCounter, backed by pdfcpu's
// metadata reader rather than a full parse.
type PDFCPUCounter struct{}

func (PDFCPUCounter) PageCount(path string) (int, error) {
	return api.PageCountFile(path)
}

// PDFTextExtractor reads back whatever text layer a PDF page carries.
// Handwritten-notebook PDFs are almost always pure raster scans with
// nothing to extract; an empty string with a nil error is the expected,
// common result, not a failure.
type PDFTextExtractor interface {
	ExtractPageText(pdfPath string, pageNum int) (string, error)
}

// PDFCPUTextExtractor is the production PDFTextExtractor. pdfcpu itself
// has no "give me the plain text" call — it extracts raw page content
// streams (the PDF operator sequence), not decoded text — so this reads
// those streams back and pulls the literal strings out of the Tj/TJ
// show-text operators by hand. No library anywhere in the example pack
// decodes PDF content streams into text, so this one step is standard
// library beyond the pdfcpu extraction call itself.
type PDFCPUTextExtractor struct{}

func (PDFCPUTextExtractor) ExtractPageText(pdfPath string, pageNum int) (string, error) {
	tmpDir, err := os.MkdirTemp("", "doodledoc-content-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	selector := []string{strconv.Itoa(pageNum + 1)} // pdfcpu page selectors are 1-based
	if err := api.ExtractContentFile(pdfPath, tmpDir, selector, nil); err != nil {
		return "", err
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil || len(entries) == 0 {
		return "", nil // no content stream extracted: treat as an empty text layer
	}

	var sb strings.Builder
	for _, e := range entries {
		raw, err := os.ReadFile(filepath.Join(tmpDir, e.Name()))
		if err != nil {
			continue
		}
		sb.WriteString(decodeShowTextLiterals(raw))
	}
	return strings.TrimSpace(sb.String()), nil
}

// parenLiteral matches a PDF literal string, "(...)", honoring \( \) \\
// escapes. Best-effort: it does not track nesting depth or distinguish
// show-text operands from other parenthesized operands in the stream,
// but content streams are overwhelmingly Tj/TJ/' show-text calls wherever
// a PDF carries a real text layer at all.
var parenLiteral = regexp.MustCompile(`\(((?:\\.|[^()\\])*)\)`)

func decodeShowTextLiterals(content []byte) string {
	matches := parenLiteral.FindAllSubmatch(content, -1)
	if matches == nil {
		return ""
	}
	var sb strings.Builder
	for _, m := range matches {
		sb.Write(unescapePDFLiteral(m[1]))
		sb.WriteByte(' ')
	}
	return sb.String()
}

func unescapePDFLiteral(lit []byte) []byte {
	out := make([]byte, 0, len(lit))
	for i := 0; i < len(lit); i++ {
		if lit[i] != '\\' || i+1 >= len(lit) {
			out = append(out, lit[i])
			continue
		}
		i++
		switch lit[i] {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		default:
			out = append(out, lit[i])
		}
	}
	return out
}
