// Package grounding proves that generated claims are verbatim-traceable to the source document.
package grounding

import (
	"regexp"
	"strings"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
)

var quoteReplacer = strings.NewReplacer(
	"\u2018", "'",
	"\u2019", "'",
	"\u201a", "'",
	"\u201b", "'",
	"\u2032", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u201e", `"`,
	"\u201f", `"`,
	"\u2033", `"`,
)

// Soft hyphen and zero-width characters.
var invisibleReplacer = strings.NewReplacer(
	"\u00ad", "",
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\u2060", "",
	"\ufeff", "",
)

// A letter, a hyphen, a line break (with optional horizontal padding), a letter.
var pdfLineBreakHyphen = regexp.MustCompile(`(\p{L})-[ \t]*\n[ \t]*(\p{L})`)

// Normalize canonicalizes text so grounding survives re-flow but not paraphrase.
// It must be applied identically to document text and to every quote checked against it.
func Normalize(text string, kind documents.SourceKind) string {
	if text == "" {
		return ""
	}
	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = quoteReplacer.Replace(s)
	s = invisibleReplacer.Replace(s)
	if kind == documents.SourcePDF {
		s = rejoinHyphenated(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

// rejoinHyphenated applies the replacement until stable so chains like "a-\nb-\nc" fully collapse.
func rejoinHyphenated(s string) string {
	for {
		next := pdfLineBreakHyphen.ReplaceAllString(s, "$1$2")
		if next == s {
			return s
		}
		s = next
	}
}
