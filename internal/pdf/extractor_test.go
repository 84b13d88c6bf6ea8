package pdf

import (
	"strings"
	"testing"
)

func TestPageNumber(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		want   int
		wantOK bool
	}{
		{"standard content file", "report_Content_page_12.txt", 12, true},
		{"single digit", "doc_Content_page_1.txt", 1, true},
		{"no page marker", "report_Content.txt", 0, false},
		{"non-numeric suffix", "report_Content_page_abc.txt", 0, false},
		{"zero page", "report_Content_page_0.txt", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pageNumber(tt.file)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("pageNumber(%q) = %d, %v; want %d, %v", tt.file, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDecodeContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"plain literal",
			`BT /F1 12 Tf (Hello world) Tj ET`,
			"Hello world",
		},
		{
			"escaped parens",
			`(balance \(net\)) Tj`,
			"balance (net)",
		},
		{
			"line break on positioning operator",
			`(Revenue) Tj 0 -14 Td (grew 12%) Tj`,
			"Revenue\ngrew 12%",
		},
		{
			"octal escape",
			`(cost\055plus) Tj`,
			"cost-plus",
		},
		{
			"nested parens",
			`((inner)) Tj`,
			"(inner)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.TrimSpace(decodeContent([]byte(tt.raw)))
			if got != tt.want {
				t.Errorf("decodeContent(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCollapseBlankRuns(t *testing.T) {
	in := "line one\n\n\n\nline two\n\nline three"
	want := "line one\n\nline two\n\nline three"
	if got := collapseBlankRuns(in); got != want {
		t.Errorf("collapseBlankRuns = %q, want %q", got, want)
	}
}

func TestPlaceholder(t *testing.T) {
	if got := Placeholder(7); !strings.Contains(got, "7") {
		t.Errorf("Placeholder(7) = %q", got)
	}
}
