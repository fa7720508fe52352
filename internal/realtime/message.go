package realtime

import (
	"time"

	"github.com/google/uuid"
)

type Event string

const (
	EventFlowStatusChanged Event = "FlowStatusChanged"
)

type Message struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
	Data    any    `json:"data,omitempty"`
}

// FlowStatus is the payload of EventFlowStatusChanged. ErrorCode is already stripped of its flow prefix.
type FlowStatus struct {
	DocumentID uuid.UUID `json:"document_id"`
	Flow       string    `json:"flow"`
	Status     string    `json:"status"`
	ErrorCode  string    `json:"error_code,omitempty"`
	At         time.Time `json:"at"`
}

// UserChannel is the channel every stream of userID subscribes to.
func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}
