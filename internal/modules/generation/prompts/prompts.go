// Package prompts loads and renders the per-flow generation prompts.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

const promptsFileEnv = "GENERATION_PROMPTS_YAML"

//go:embed prompts.yaml
var promptsFS embed.FS

type yamlPromptFile struct {
	Version int                       `yaml:"version"`
	Flows   map[string]yamlFlowPrompt `yaml:"flows"`
}

type yamlFlowPrompt struct {
	System      string   `yaml:"system"`
	User        string   `yaml:"user"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

type flowTemplate struct {
	system      *template.Template
	user        *template.Template
	maxTokens   int
	temperature float64
}

// Set holds the parsed templates for every flow.
type Set struct {
	flows map[documents.Flow]flowTemplate
}

// Prompt is a rendered request for one generation attempt.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// WithRepairHint appends hint to the system message. An empty hint is a no-op.
func (p Prompt) WithRepairHint(hint string) Prompt {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return p
	}
	p.System = strings.TrimRight(p.System, "\n") + "\n\n" + hint
	return p
}

// Load reads GENERATION_PROMPTS_YAML when set and falls back to the embedded file if that fails.
func Load(log *logger.Logger) (*Set, error) {
	if path := strings.TrimSpace(os.Getenv(promptsFileEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			var set *Set
			if set, err = Parse(data); err == nil {
				return set, nil
			}
		}
		if log != nil {
			log.Warn("prompts: override load failed; using embedded prompts", "path", path, "error", err)
		}
	}
	data, err := promptsFS.ReadFile("prompts.yaml")
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse builds a Set from YAML and requires a template for every flow.
func Parse(data []byte) (*Set, error) {
	var file yamlPromptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if file.Version != 1 {
		return nil, fmt.Errorf("unsupported prompts version: %d", file.Version)
	}
	if len(file.Flows) == 0 {
		return nil, errors.New("no flows defined")
	}

	set := &Set{flows: make(map[documents.Flow]flowTemplate, len(file.Flows))}
	for key, fp := range file.Flows {
		flow, ok := documents.ParseFlow(key)
		if !ok {
			return nil, fmt.Errorf("unknown flow: %s", key)
		}
		if strings.TrimSpace(fp.System) == "" || strings.TrimSpace(fp.User) == "" {
			return nil, fmt.Errorf("flow %s: system and user are required", flow)
		}
		sys, err := template.New(string(flow) + ".system").Option("missingkey=error").Parse(fp.System)
		if err != nil {
			return nil, fmt.Errorf("flow %s: system: %w", flow, err)
		}
		usr, err := template.New(string(flow) + ".user").Option("missingkey=error").Parse(fp.User)
		if err != nil {
			return nil, fmt.Errorf("flow %s: user: %w", flow, err)
		}
		ft := flowTemplate{system: sys, user: usr, maxTokens: fp.MaxTokens, temperature: 0.2}
		if ft.maxTokens <= 0 {
			ft.maxTokens = 4096
		}
		if fp.Temperature != nil {
			ft.temperature = *fp.Temperature
		}
		set.flows[flow] = ft
	}
	for _, f := range documents.AllFlows {
		if _, ok := set.flows[f]; !ok {
			return nil, fmt.Errorf("missing prompt for flow %s", f)
		}
	}
	return set, nil
}

type renderData struct {
	DocumentType  string
	FileType      string
	LocatorCount  int
	LocatorName   string
	CitationShape string
	Homework      bool
	Text          string
}

// Render builds the prompt for flow over doc.
func (s *Set) Render(flow documents.Flow, doc *documents.Document) (Prompt, error) {
	ft, ok := s.flows[flow]
	if !ok {
		return Prompt{}, fmt.Errorf("no prompt for flow %s", flow)
	}
	data := renderData{
		DocumentType: doc.DocumentType,
		FileType:     doc.FileType,
		LocatorCount: doc.LocatorCount(),
		Homework:     doc.DocumentType == documents.DocumentTypeHomework,
		Text:         doc.ExtractedText,
	}
	if doc.SourceKind() == documents.SourceDOCX {
		data.LocatorName = "paragraph"
		data.CitationShape = fmt.Sprintf(`CITATION is {"source_type": "docx", "anchor_type": "paragraph", "paragraph": int, "excerpt": string} with paragraph between 1 and %d.`, data.LocatorCount)
	} else {
		data.LocatorName = "page"
		data.CitationShape = fmt.Sprintf(`CITATION is {"source_type": "pdf", "page": int, "excerpt": string} with page between 1 and %d.`, data.LocatorCount)
	}

	var sys, usr bytes.Buffer
	if err := ft.system.Execute(&sys, data); err != nil {
		return Prompt{}, fmt.Errorf("render %s system prompt: %w", flow, err)
	}
	if err := ft.user.Execute(&usr, data); err != nil {
		return Prompt{}, fmt.Errorf("render %s user prompt: %w", flow, err)
	}
	return Prompt{
		System:      sys.String(),
		User:        usr.String(),
		MaxTokens:   ft.maxTokens,
		Temperature: ft.temperature,
	}, nil
}
