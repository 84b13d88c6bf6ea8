package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageText is the extracted text of a single page.
type PageText struct {
	Number int
	Text   string
}

// Extractor pulls text content out of PDF files page by page using pdfcpu.
type Extractor struct {
	conf    *model.Configuration
	tempDir string
}

// NewExtractor creates an extractor with a scratch directory for
// per-page content files.
func NewExtractor() (*Extractor, error) {
	tempDir := filepath.Join(os.TempDir(), "finreporter-pdf")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pdf temp dir: %w", err)
	}
	return &Extractor{
		conf:    model.NewDefaultConfiguration(),
		tempDir: tempDir,
	}, nil
}

// PageCount returns the number of pages in the PDF at path.
func (e *Extractor) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	return n, nil
}

// Placeholder is the text recorded for a page whose extraction failed.
// Individual page failures never abort the document.
func Placeholder(page int) string {
	return fmt.Sprintf("[Page %d: extraction failed]", page)
}

// ExtractPages extracts text for the 1-indexed inclusive page range
// [first, last]. Pages that yield no content get placeholder text.
func (e *Extractor) ExtractPages(path string, first, last int) ([]PageText, error) {
	if first < 1 || last < first {
		return nil, fmt.Errorf("invalid page range: %d-%d", first, last)
	}

	outDir, err := os.MkdirTemp(e.tempDir, "pages-")
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	sel := []string{fmt.Sprintf("%d-%d", first, last)}
	if err := api.ExtractContentFile(path, outDir, sel, e.conf); err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}

	// pdfcpu writes one content file per page with the page number embedded
	// in the file name.
	pageRaw := make(map[int][]byte)
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		num, ok := pageNumber(entry.Name())
		if !ok {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		pageRaw[num] = raw
	}

	pages := make([]PageText, 0, last-first+1)
	for n := first; n <= last; n++ {
		raw, ok := pageRaw[n]
		if !ok {
			pages = append(pages, PageText{Number: n, Text: Placeholder(n)})
			continue
		}
		text := decodeContent(raw)
		if strings.TrimSpace(text) == "" {
			text = Placeholder(n)
		}
		pages = append(pages, PageText{Number: n, Text: text})
	}
	return pages, nil
}

// pageNumber parses the page number out of an extracted content file name,
// e.g. "report_Content_page_12.txt".
func pageNumber(name string) (int, bool) {
	idx := strings.LastIndex(name, "page_")
	if idx < 0 {
		return 0, false
	}
	digits := strings.TrimSuffix(name[idx+len("page_"):], filepath.Ext(name))
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// decodeContent scrapes the text-show operands out of a raw PDF content
// stream. Literal strings appear parenthesized with backslash escapes; hex
// strings are skipped since they are rarely plain text.
func decodeContent(raw []byte) string {
	var b strings.Builder
	depth := 0
	escaped := false

	for i := 0; i < len(raw); i++ {
		c := raw[i]

		if depth > 0 {
			if escaped {
				switch c {
				case 'n':
					b.WriteByte('\n')
				case 't':
					b.WriteByte('\t')
				case '(', ')', '\\':
					b.WriteByte(c)
				case '0', '1', '2', '3', '4', '5', '6', '7':
					// Octal escape, up to three digits
					val := int(c - '0')
					for j := 0; j < 2 && i+1 < len(raw); j++ {
						next := raw[i+1]
						if next < '0' || next > '7' {
							break
						}
						val = val*8 + int(next-'0')
						i++
					}
					if val >= 32 && val < 127 {
						b.WriteByte(byte(val))
					}
				}
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '(':
				depth++
				b.WriteByte(c)
			case ')':
				depth--
				if depth > 0 {
					b.WriteByte(c)
				}
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch c {
		case '(':
			depth = 1
		case 'T':
			// Newline on text-positioning operators keeps lines apart
			if i+1 < len(raw) && (raw[i+1] == 'd' || raw[i+1] == 'D' || raw[i+1] == '*') {
				b.WriteByte('\n')
				i++
			}
		}
	}

	return collapseBlankRuns(b.String())
}

// collapseBlankRuns reduces runs of blank lines to one.
func collapseBlankRuns(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
