package grounding

import (
	"errors"
	"strings"
	"testing"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/generr"
)

func intPtr(v int) *int { return &v }

func pdfDoc(text string, pages int) *documents.Document {
	return &documents.Document{
		FileType:      documents.FileTypePDF,
		DocumentType:  documents.DocumentTypeLecture,
		ExtractedText: text,
		PageCount:     pages,
	}
}

func docxDoc(text string, paragraphs int) *documents.Document {
	return &documents.Document{
		FileType:       documents.FileTypeDOCX,
		DocumentType:   documents.DocumentTypeLecture,
		ExtractedText:  text,
		ParagraphCount: paragraphs,
	}
}

func pdfCite(page int, excerpt string) documents.Citation {
	return documents.Citation{SourceType: documents.SourcePDF, Page: intPtr(page), Excerpt: excerpt}
}

func validationCode(t *testing.T, err error) string {
	t.Helper()
	var ve *generr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *generr.ValidationError, got %T (%v)", err, err)
	}
	return ve.Code
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		kind documents.SourceKind
		want string
	}{
		{"pdf hyphen rejoin", "an exam-\nple here", documents.SourcePDF, "an example here"},
		{"pdf hyphen with padding", "exam- \r\n  ple", documents.SourcePDF, "example"},
		{"pdf chain", "a-\nb-\nc", documents.SourcePDF, "abc"},
		{"docx keeps hyphen", "an exam-\nple here", documents.SourceDOCX, "an exam- ple here"},
		{"pdf keeps real dash", "well - known", documents.SourcePDF, "well - known"},
		{"curly quotes", "\u201cit\u2019s\u201d", documents.SourceDOCX, `"it's"`},
		{"zero width and soft hyphen", "pho\u200bto\u00adsynthesis\ufeff", documents.SourcePDF, "photosynthesis"},
		{"whitespace collapse", "  a\t\tb \n\n c  ", documents.SourceDOCX, "a b c"},
		{"empty", "", documents.SourcePDF, ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in, tc.kind); got != tc.want {
			t.Fatalf("%s: Normalize(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := "Mito-\nchondria \u201cpower\u201d  the cell.\r\n"
	once := Normalize(in, documents.SourcePDF)
	if twice := Normalize(once, documents.SourcePDF); twice != once {
		t.Fatalf("normalize not idempotent: %q vs %q", once, twice)
	}
}

const lecture = "Photosynthesis converts light energy into chemi-\ncal energy.\n\nThe Calvin cycle fixes carbon dioxide."

func TestValidateAcceptsGroundedClaims(t *testing.T) {
	doc := pdfDoc(lecture, 3)
	claims := []documents.Claim{{
		ItemID:          "i1",
		SupportingQuote: "converts light energy into chemical energy",
		Citations:       []documents.Citation{pdfCite(1, "The  Calvin cycle\nfixes carbon dioxide.")},
	}}
	if err := Validate(claims, doc); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateRejectsParaphrase(t *testing.T) {
	doc := pdfDoc(lecture, 3)
	claims := []documents.Claim{{
		ItemID:          "i1",
		SupportingQuote: "turns light into chemical energy",
		Citations:       []documents.Citation{pdfCite(1, "Calvin cycle")},
	}}
	if code := validationCode(t, Validate(claims, doc)); code != generr.CodeQuoteNotFound {
		t.Fatalf("expected QUOTE_NOT_FOUND, got %s", code)
	}
}

func TestValidateExcerptNotFound(t *testing.T) {
	doc := pdfDoc(lecture, 3)
	claims := []documents.Claim{{
		ItemID:          "i1",
		SupportingQuote: "Calvin cycle",
		Citations:       []documents.Citation{pdfCite(2, "Krebs cycle")},
	}}
	if code := validationCode(t, Validate(claims, doc)); code != generr.CodeCitationExcerptNotFound {
		t.Fatalf("expected CITATION_EXCERPT_NOT_FOUND, got %s", code)
	}
}

func TestValidatePageOutOfRange(t *testing.T) {
	doc := pdfDoc(lecture, 3)
	for _, page := range []int{0, 4} {
		claims := []documents.Claim{{
			ItemID:          "i1",
			SupportingQuote: "Calvin cycle",
			Citations:       []documents.Citation{pdfCite(page, "Calvin cycle")},
		}}
		if code := validationCode(t, Validate(claims, doc)); code != generr.CodeCitationOutOfRange {
			t.Fatalf("page %d: expected CITATION_OUT_OF_RANGE, got %s", page, code)
		}
	}
}

func TestValidateDocxCitationOnPDF(t *testing.T) {
	doc := pdfDoc(lecture, 3)
	claims := []documents.Claim{{
		ItemID:          "i1",
		SupportingQuote: "Calvin cycle",
		Citations: []documents.Citation{{
			SourceType: documents.SourceDOCX,
			AnchorType: documents.AnchorParagraph,
			Paragraph:  intPtr(1),
			Excerpt:    "Calvin cycle",
		}},
	}}
	if code := validationCode(t, Validate(claims, doc)); code != generr.CodeCitationOutOfRange {
		t.Fatalf("expected CITATION_OUT_OF_RANGE, got %s", code)
	}
}

func TestValidateDocxParagraphRange(t *testing.T) {
	doc := docxDoc("First paragraph.\nSecond paragraph.", 2)
	cite := func(p int) documents.Citation {
		return documents.Citation{SourceType: documents.SourceDOCX, AnchorType: documents.AnchorParagraph, Paragraph: intPtr(p), Excerpt: "Second paragraph."}
	}
	ok := []documents.Claim{{ItemID: "a", SupportingQuote: "First paragraph.", Citations: []documents.Citation{cite(2)}}}
	if err := Validate(ok, doc); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	bad := []documents.Claim{{ItemID: "a", SupportingQuote: "First paragraph.", Citations: []documents.Citation{cite(3)}}}
	if code := validationCode(t, Validate(bad, doc)); code != generr.CodeCitationOutOfRange {
		t.Fatalf("expected CITATION_OUT_OF_RANGE, got %s", code)
	}
}

func TestValidateDocxDoesNotRejoinHyphens(t *testing.T) {
	doc := docxDoc("chemi-\ncal energy", 1)
	claims := []documents.Claim{{
		ItemID:          "a",
		SupportingQuote: "chemical energy",
		Citations: []documents.Citation{{
			SourceType: documents.SourceDOCX, AnchorType: documents.AnchorParagraph, Paragraph: intPtr(1), Excerpt: "energy",
		}},
	}}
	if code := validationCode(t, Validate(claims, doc)); code != generr.CodeQuoteNotFound {
		t.Fatalf("expected QUOTE_NOT_FOUND, got %s", code)
	}
}

func TestValidateEnumeratesEveryClaim(t *testing.T) {
	doc := pdfDoc(lecture, 3)
	claims := []documents.Claim{
		{ItemID: "good", SupportingQuote: "Calvin cycle", Citations: []documents.Citation{pdfCite(1, "Calvin cycle")}},
		{ItemID: "bad-quote", SupportingQuote: "made up", Citations: []documents.Citation{pdfCite(1, "Calvin cycle")}},
		{ItemID: "bad-page", SupportingQuote: "Calvin cycle", Citations: []documents.Citation{pdfCite(9, "Calvin cycle")}},
	}
	err := Validate(claims, doc)
	var ve *generr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Code != generr.CodeQuoteNotFound {
		t.Fatalf("expected first violation code QUOTE_NOT_FOUND, got %s", ve.Code)
	}
	if len(ve.Details) != 2 {
		t.Fatalf("expected 2 details, got %d: %v", len(ve.Details), ve.Details)
	}
	if !strings.Contains(ve.Details[1], "bad-page") {
		t.Fatalf("expected bad-page detail, got %q", ve.Details[1])
	}
}

func TestValidateHomeworkIntegrity(t *testing.T) {
	doc := pdfDoc(lecture, 3)
	doc.DocumentType = documents.DocumentTypeHomework
	claims := []documents.Claim{{
		ItemID:          "s1",
		Kind:            "Solution",
		SupportingQuote: "Calvin cycle",
		Citations:       []documents.Citation{pdfCite(1, "Calvin cycle")},
	}}
	if code := validationCode(t, Validate(claims, doc)); code != generr.CodeAcademicIntegrityViolation {
		t.Fatalf("expected ACADEMIC_INTEGRITY_VIOLATION, got %s", code)
	}

	doc.DocumentType = documents.DocumentTypeLecture
	if err := Validate(claims, doc); err != nil {
		t.Fatalf("lecture documents allow solution items, got %v", err)
	}
}

func TestValidateEmptyArtifact(t *testing.T) {
	if code := validationCode(t, Validate(nil, pdfDoc(lecture, 1))); code != generr.CodeSchemaValidationFailed {
		t.Fatalf("expected SCHEMA_VALIDATION_FAILED, got %s", code)
	}
}
