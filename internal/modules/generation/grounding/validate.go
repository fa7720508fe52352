package grounding

import (
	"fmt"
	"strings"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/generr"
)

// Kinds a homework study guide may never contain.
var integrityBlockedKinds = map[string]bool{
	"answer":   true,
	"solution": true,
}

type violation struct {
	code   string
	detail string
}

// Validate checks every claim against doc and accepts all of them or none.
// The returned *generr.ValidationError carries the first violation's code and every violation as details.
func Validate(claims []documents.Claim, doc *documents.Document) error {
	if doc == nil {
		return generr.NewValidation(generr.CodeSchemaValidationFailed, "no source document")
	}
	if len(claims) == 0 {
		return generr.NewValidation(generr.CodeSchemaValidationFailed, "artifact contains no items")
	}

	docKind := doc.SourceKind()
	haystack := Normalize(doc.ExtractedText, docKind)
	count := doc.LocatorCount()

	var found []violation
	for _, c := range claims {
		found = append(found, checkClaim(c, doc, docKind, haystack, count)...)
	}
	if len(found) == 0 {
		return nil
	}

	details := make([]string, 0, len(found))
	for _, v := range found {
		details = append(details, v.detail)
	}
	return generr.NewValidation(found[0].code, messageFor(found[0].code), details...)
}

func checkClaim(c documents.Claim, doc *documents.Document, docKind documents.SourceKind, haystack string, count int) []violation {
	var out []violation
	quote := Normalize(c.SupportingQuote, docKind)
	if quote == "" || !strings.Contains(haystack, quote) {
		out = append(out, violation{
			code:   generr.CodeQuoteNotFound,
			detail: fmt.Sprintf("item %s: supporting_quote not found in document: %q", c.ItemID, clip(c.SupportingQuote)),
		})
	}

	for i, cit := range c.Citations {
		label := fmt.Sprintf("item %s citation %d", c.ItemID, i+1)
		excerpt := Normalize(cit.Excerpt, cit.SourceType)
		if excerpt == "" || !strings.Contains(haystack, excerpt) {
			out = append(out, violation{
				code:   generr.CodeCitationExcerptNotFound,
				detail: fmt.Sprintf("%s: excerpt not found in document: %q", label, clip(cit.Excerpt)),
			})
		}
		if cit.SourceType != docKind {
			out = append(out, violation{
				code:   generr.CodeCitationOutOfRange,
				detail: fmt.Sprintf("%s: source_type %s does not match %s document", label, cit.SourceType, docKind),
			})
			continue
		}
		if loc := cit.Locator(); loc < 1 || loc > count {
			out = append(out, violation{
				code:   generr.CodeCitationOutOfRange,
				detail: fmt.Sprintf("%s: %s %d outside [1, %d]", label, locatorName(docKind), loc, count),
			})
		}
	}

	if doc.DocumentType == documents.DocumentTypeHomework && integrityBlockedKinds[strings.ToLower(strings.TrimSpace(c.Kind))] {
		out = append(out, violation{
			code:   generr.CodeAcademicIntegrityViolation,
			detail: fmt.Sprintf("item %s: %s items are not allowed for homework", c.ItemID, c.Kind),
		})
	}
	return out
}

func locatorName(kind documents.SourceKind) string {
	if kind == documents.SourceDOCX {
		return "paragraph"
	}
	return "page"
}

func messageFor(code string) string {
	switch code {
	case generr.CodeQuoteNotFound:
		return "supporting quote is not verbatim from the document"
	case generr.CodeCitationExcerptNotFound:
		return "citation excerpt is not verbatim from the document"
	case generr.CodeCitationOutOfRange:
		return "citation does not point inside the document"
	case generr.CodeAcademicIntegrityViolation:
		return "artifact answers graded work"
	default:
		return "artifact failed validation"
	}
}

func clip(s string) string {
	const max = 120
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
