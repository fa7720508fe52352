// Package artifacts decodes raw provider output into study guide and quiz values.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/generr"
)

// Artifact is a decoded, structurally valid generation result.
type Artifact interface {
	Claims() []documents.Claim
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(citationLevel, documents.Citation{})
	v.RegisterStructValidation(questionLevel, documents.Question{})
	return v
}

func citationLevel(sl validator.StructLevel) {
	c := sl.Current().Interface().(documents.Citation)
	switch c.SourceType {
	case documents.SourcePDF:
		if c.Page == nil {
			sl.ReportError(c.Page, "page", "Page", "required_for_pdf", "")
		}
		if c.Paragraph != nil || c.AnchorType != "" {
			sl.ReportError(c.Paragraph, "paragraph", "Paragraph", "excluded_for_pdf", "")
		}
	case documents.SourceDOCX:
		if c.AnchorType != documents.AnchorParagraph {
			sl.ReportError(c.AnchorType, "anchor_type", "AnchorType", "eq_paragraph", "")
		}
		if c.Paragraph == nil {
			sl.ReportError(c.Paragraph, "paragraph", "Paragraph", "required_for_docx", "")
		}
		if c.Page != nil {
			sl.ReportError(c.Page, "page", "Page", "excluded_for_docx", "")
		}
	}
}

func questionLevel(sl validator.StructLevel) {
	q := sl.Current().Interface().(documents.Question)
	if len(q.Options) > 0 && q.AnswerIndex >= len(q.Options) {
		sl.ReportError(q.AnswerIndex, "answer_index", "AnswerIndex", "lt_options", "")
	}
}

// Decode parses raw into the artifact type owned by flow and validates its structure.
// Every failure is a SCHEMA_VALIDATION_FAILED validation error.
func Decode(flow documents.Flow, raw string) (Artifact, error) {
	switch flow {
	case documents.FlowStudyGuide:
		var g documents.StudyGuide
		if err := decodeStrict(raw, &g); err != nil {
			return nil, err
		}
		return g, nil
	case documents.FlowQuiz:
		var q documents.Quiz
		if err := decodeStrict(raw, &q); err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("artifacts: unknown flow %q", flow)
	}
}

func decodeStrict(raw string, dst any) error {
	body := stripCodeFence(raw)
	if body == "" {
		return schemaError("empty output")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return schemaError("invalid JSON", err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return schemaError("trailing data after JSON object")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return schemaError("structure check failed", err.Error())
		}
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fmt.Sprintf("%s: failed %s", fieldPath(fe.Namespace()), fe.Tag()))
		}
		return schemaError("artifact does not match schema", details...)
	}
	return nil
}

func schemaError(message string, details ...string) error {
	return generr.NewValidation(generr.CodeSchemaValidationFailed, message, details...)
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// stripCodeFence tolerates models that wrap JSON in a markdown fence.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
