package documents

// SourceKind is the citation source_type vocabulary.
type SourceKind string

const (
	SourcePDF  SourceKind = "pdf"
	SourceDOCX SourceKind = "docx"
)

const AnchorParagraph = "paragraph"

// Citation is either {source_type: pdf, page, excerpt} or
// {source_type: docx, anchor_type: paragraph, paragraph, excerpt}.
type Citation struct {
	SourceType SourceKind `json:"source_type" validate:"required,oneof=pdf docx"`
	Page       *int       `json:"page,omitempty"`
	AnchorType string     `json:"anchor_type,omitempty"`
	Paragraph  *int       `json:"paragraph,omitempty"`
	Excerpt    string     `json:"excerpt" validate:"required"`
}

// Locator returns the page or paragraph number the citation points at, or 0.
func (c Citation) Locator() int {
	switch c.SourceType {
	case SourcePDF:
		if c.Page != nil {
			return *c.Page
		}
	case SourceDOCX:
		if c.Paragraph != nil {
			return *c.Paragraph
		}
	}
	return 0
}

type ExtractionItem struct {
	ID              string     `json:"id" validate:"required"`
	Label           string     `json:"label" validate:"required"`
	Kind            string     `json:"kind,omitempty"`
	SupportingQuote string     `json:"supporting_quote" validate:"required"`
	Citations       []Citation `json:"citations" validate:"required,min=1,dive"`
}

type StudySection struct {
	ID      string           `json:"id" validate:"required"`
	Heading string           `json:"heading" validate:"required"`
	Items   []ExtractionItem `json:"items" validate:"required,min=1,dive"`
}

type StudyGuide struct {
	Title    string         `json:"title" validate:"required"`
	Overview string         `json:"overview"`
	Sections []StudySection `json:"sections" validate:"required,min=1,dive"`
}

type Question struct {
	ID              string     `json:"id" validate:"required"`
	Prompt          string     `json:"prompt" validate:"required"`
	Options         []string   `json:"options" validate:"min=2,max=6,dive,required"`
	AnswerIndex     int        `json:"answer_index" validate:"gte=0"`
	Explanation     string     `json:"explanation"`
	SupportingQuote string     `json:"supporting_quote" validate:"required"`
	Citations       []Citation `json:"citations" validate:"required,min=1,dive"`
}

type Quiz struct {
	Questions []Question `json:"questions" validate:"required,min=1,dive"`
}

// Claim is one grounded statement in a generated artifact.
type Claim struct {
	ItemID          string
	Kind            string
	SupportingQuote string
	Citations       []Citation
}

func (g StudyGuide) Claims() []Claim {
	out := make([]Claim, 0)
	for _, s := range g.Sections {
		for _, it := range s.Items {
			out = append(out, Claim{
				ItemID:          it.ID,
				Kind:            it.Kind,
				SupportingQuote: it.SupportingQuote,
				Citations:       it.Citations,
			})
		}
	}
	return out
}

func (q Quiz) Claims() []Claim {
	out := make([]Claim, 0, len(q.Questions))
	for _, qq := range q.Questions {
		out = append(out, Claim{
			ItemID:          qq.ID,
			SupportingQuote: qq.SupportingQuote,
			Citations:       qq.Citations,
		})
	}
	return out
}
