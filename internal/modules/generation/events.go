package generation

import (
	"context"
	"time"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/flowstate"
	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
	"github.com/dipteshhh/learnease-backend/internal/realtime"
	"github.com/dipteshhh/learnease-backend/internal/realtime/bus"
)

const publishTimeout = 2 * time.Second

// EventPublisher returns a flowstate listener that publishes every transition to the owner's channel.
// Publishing is best effort; a failure is logged and counted, never returned.
func EventPublisher(log *logger.Logger, b bus.Bus, metrics *observability.Metrics) flowstate.Listener {
	log = log.With("service", "FlowEventPublisher")
	return func(ctx context.Context, t flowstate.Transition) {
		if b == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		code := ""
		if t.Status == documents.StatusFailed {
			code = documents.StripNamespace(t.ErrorCode)
		}
		err := b.Publish(ctx, realtime.Message{
			Channel: realtime.UserChannel(t.OwnerUserID),
			Event:   realtime.EventFlowStatusChanged,
			Data: realtime.FlowStatus{
				DocumentID: t.DocumentID,
				Flow:       string(t.Flow),
				Status:     string(t.Status),
				ErrorCode:  code,
				At:         t.At,
			},
		})
		metrics.IncEventPublished(err == nil)
		if err != nil {
			log.Warn("flow event publish failed", "document_id", t.DocumentID, "flow", t.Flow, "status", t.Status, "error", err)
		}
	}
}
