package documents

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Flow names one of the two generation pipelines tracked per document.
type Flow string

const (
	FlowStudyGuide Flow = "STUDY_GUIDE"
	FlowQuiz       Flow = "QUIZ"
)

var AllFlows = []Flow{FlowStudyGuide, FlowQuiz}

func ParseFlow(raw string) (Flow, bool) {
	switch Flow(strings.ToUpper(strings.TrimSpace(raw))) {
	case FlowStudyGuide:
		return FlowStudyGuide, true
	case FlowQuiz:
		return FlowQuiz, true
	default:
		return "", false
	}
}

func (f Flow) Valid() bool {
	return f == FlowStudyGuide || f == FlowQuiz
}

// Namespace prefixes code with the flow name, e.g. QUIZ:QUOTE_NOT_FOUND.
func (f Flow) Namespace(code string) string {
	return string(f) + ":" + code
}

// InProgressMarker is the only error code a processing flow may carry.
func (f Flow) InProgressMarker() string {
	return f.Namespace("IN_PROGRESS")
}

// StripNamespace removes any "<FLOW>:" prefix from a stored error code.
func StripNamespace(code string) string {
	for _, f := range AllFlows {
		if p := string(f) + ":"; strings.HasPrefix(code, p) {
			return strings.TrimPrefix(code, p)
		}
	}
	return code
}

type FlowStatus string

const (
	StatusIdle       FlowStatus = "idle"
	StatusProcessing FlowStatus = "processing"
	StatusReady      FlowStatus = "ready"
	StatusFailed     FlowStatus = "failed"
)

// FlowColumns names the column group owned by a single flow.
type FlowColumns struct {
	Status       string
	ErrorCode    string
	ErrorMessage string
	Artifact     string
	RunID        string
	Attempts     string
	UpdatedAt    string
}

var flowColumns = map[Flow]FlowColumns{
	FlowStudyGuide: {
		Status:       "study_guide_status",
		ErrorCode:    "study_guide_error_code",
		ErrorMessage: "study_guide_error_message",
		Artifact:     "study_guide",
		RunID:        "study_guide_run_id",
		Attempts:     "study_guide_attempts",
		UpdatedAt:    "study_guide_updated_at",
	},
	FlowQuiz: {
		Status:       "quiz_status",
		ErrorCode:    "quiz_error_code",
		ErrorMessage: "quiz_error_message",
		Artifact:     "quiz",
		RunID:        "quiz_run_id",
		Attempts:     "quiz_attempts",
		UpdatedAt:    "quiz_updated_at",
	},
}

// Columns panics on an unknown flow; callers validate flows at the edge.
func (f Flow) Columns() FlowColumns {
	cols, ok := flowColumns[f]
	if !ok {
		panic("documents: unknown flow " + string(f))
	}
	return cols
}

// FlowRecord is a read-only view of one flow's columns.
type FlowRecord struct {
	Flow         Flow
	Status       FlowStatus
	ErrorCode    *string
	ErrorMessage *string
	Artifact     datatypes.JSON
	RunID        *uuid.UUID
	Attempts     int
	UpdatedAt    *time.Time
}

func (r FlowRecord) HasArtifact() bool {
	s := strings.TrimSpace(string(r.Artifact))
	return s != "" && s != "null" && s != "{}"
}

func (r FlowRecord) ErrorCodeValue() string {
	if r.ErrorCode == nil {
		return ""
	}
	return *r.ErrorCode
}
