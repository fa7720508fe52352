package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
)

func TestLoadEmbedded(t *testing.T) {
	t.Setenv(promptsFileEnv, "")
	set, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	doc := &documents.Document{
		FileType:      documents.FileTypePDF,
		DocumentType:  documents.DocumentTypeLecture,
		ExtractedText: "The Calvin cycle fixes carbon dioxide.",
		PageCount:     7,
	}
	for _, f := range documents.AllFlows {
		p, err := set.Render(f, doc)
		if err != nil {
			t.Fatalf("Render(%s): %v", f, err)
		}
		if !strings.Contains(p.User, doc.ExtractedText) {
			t.Fatalf("%s: user prompt missing document text", f)
		}
		if !strings.Contains(p.System, "page between 1 and 7") {
			t.Fatalf("%s: system prompt missing pdf citation shape: %s", f, p.System)
		}
		if p.MaxTokens <= 0 {
			t.Fatalf("%s: expected max tokens", f)
		}
	}
}

func TestRenderHomeworkAndDocx(t *testing.T) {
	set, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	doc := &documents.Document{
		FileType:       documents.FileTypeDOCX,
		DocumentType:   documents.DocumentTypeHomework,
		ExtractedText:  "Question 1. Explain osmosis.",
		ParagraphCount: 3,
	}
	p, err := set.Render(documents.FlowStudyGuide, doc)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(p.System, `"anchor_type": "paragraph"`) {
		t.Fatalf("expected docx citation shape, got %s", p.System)
	}
	if !strings.Contains(p.System, "graded homework") {
		t.Fatalf("expected homework guard in system prompt")
	}
	if !strings.Contains(p.User, "3 paragraphs") {
		t.Fatalf("expected paragraph count in user prompt, got %s", p.User)
	}
}

func TestWithRepairHint(t *testing.T) {
	p := Prompt{System: "base\n"}
	if got := p.WithRepairHint("  ").System; got != "base\n" {
		t.Fatalf("empty hint changed prompt: %q", got)
	}
	if got := p.WithRepairHint("fix QUOTE_NOT_FOUND").System; got != "base\n\nfix QUOTE_NOT_FOUND" {
		t.Fatalf("unexpected system prompt: %q", got)
	}
}

func TestParseRequiresEveryFlow(t *testing.T) {
	data := []byte("version: 1\nflows:\n  QUIZ:\n    system: s\n    user: u\n")
	if _, err := Parse(data); err == nil || !strings.Contains(err.Error(), "STUDY_GUIDE") {
		t.Fatalf("expected missing STUDY_GUIDE error, got %v", err)
	}
	if _, err := Parse([]byte("version: 2\nflows: {}\n")); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestLoadOverrideFallsBackOnError(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("version: 1\nflows:\n  SUMMARY:\n    system: s\n    user: u\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(promptsFileEnv, bad)
	set, err := Load(nil)
	if err != nil {
		t.Fatalf("expected embedded fallback, got %v", err)
	}
	if _, ok := set.flows[documents.FlowQuiz]; !ok {
		t.Fatalf("expected embedded quiz prompt")
	}

	good := filepath.Join(dir, "good.yaml")
	body := "version: 1\nflows:\n  STUDY_GUIDE:\n    system: custom guide\n    user: \"{{ .Text }}\"\n  QUIZ:\n    system: custom quiz\n    user: \"{{ .Text }}\"\n    max_tokens: 100\n"
	if err := os.WriteFile(good, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(promptsFileEnv, good)
	set, err = Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := set.Render(documents.FlowQuiz, &documents.Document{FileType: documents.FileTypePDF, ExtractedText: "hello", PageCount: 1})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if p.System != "custom quiz" || p.User != "hello" || p.MaxTokens != 100 {
		t.Fatalf("unexpected prompt: %+v", p)
	}
}
