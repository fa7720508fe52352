package app

import (
	"fmt"

	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
	"github.com/dipteshhh/learnease-backend/internal/platform/openai"
	"github.com/dipteshhh/learnease-backend/internal/realtime/bus"
)

type Clients struct {
	EventBus bus.Bus
	OpenAI   openai.Client
}

func wireClients(log *logger.Logger, cfg Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")

	// Event bus
	eventBus, err := bus.New(log, cfg.Redis)
	if err != nil {
		return Clients{}, fmt.Errorf("init event bus: %w", err)
	}

	// Openai
	openaiClient, err := openai.NewClient(log, metrics, cfg.OpenAI)
	if err != nil {
		_ = eventBus.Close()
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	return Clients{
		EventBus: eventBus,
		OpenAI:   openaiClient,
	}, nil
}
