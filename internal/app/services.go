package app

import (
	"context"
	"fmt"

	"github.com/dipteshhh/learnease-backend/internal/modules/generation"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/flowstate"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/prompts"
	"github.com/dipteshhh/learnease-backend/internal/modules/generation/reliability"
	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
	"github.com/dipteshhh/learnease-backend/internal/services"
)

type Services struct {
	Flows      *flowstate.Machine
	Generation *generation.Orchestrator
	Documents  services.DocumentService
}

// wireServices builds the generation stack. Background runs derive from runCtx.
func wireServices(runCtx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics, reposet Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	promptSet, err := prompts.Load(log)
	if err != nil {
		return Services{}, fmt.Errorf("load prompts: %w", err)
	}

	flows := flowstate.New(log, reposet.Document,
		flowstate.WithMetrics(metrics),
		flowstate.WithListener(generation.EventPublisher(log, clients.EventBus, metrics)),
	)
	breaker := reliability.NewBreaker(cfg.Breaker, reliability.WithBreakerMetrics(metrics))
	policy := reliability.NewPolicy(log, clients.OpenAI, breaker, cfg.Policy, reliability.WithPolicyMetrics(metrics))
	orchestrator := generation.NewOrchestrator(log, reposet.Document, flows, policy, promptSet,
		generation.WithBaseContext(runCtx),
		generation.WithMetrics(metrics),
	)

	return Services{
		Flows:      flows,
		Generation: orchestrator,
		Documents:  services.NewDocumentService(log, reposet.Document, flows),
	}, nil
}
