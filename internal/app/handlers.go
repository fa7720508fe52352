package app

import (
	"gorm.io/gorm"

	httpH "github.com/dipteshhh/learnease-backend/internal/http/handlers"
	httpMW "github.com/dipteshhh/learnease-backend/internal/http/middleware"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
	"github.com/dipteshhh/learnease-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health     *httpH.HealthHandler
	Document   *httpH.DocumentHandler
	Generation *httpH.GenerationHandler
	Realtime   *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, cfg Config, db *gorm.DB, services Services, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(log, db),
		Document:   httpH.NewDocumentHandler(services.Documents),
		Generation: httpH.NewGenerationHandler(log, services.Generation, cfg.RetryAfterSeconds),
		Realtime:   httpH.NewRealtimeHandler(log, hub),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
	}
}
