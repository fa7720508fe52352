package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
	httpH "github.com/dipteshhh/learnease-backend/internal/http/handlers"
	httpMW "github.com/dipteshhh/learnease-backend/internal/http/middleware"
	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler     *httpH.HealthHandler
	DocumentHandler   *httpH.DocumentHandler
	GenerationHandler *httpH.GenerationHandler
	RealtimeHandler   *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachRequestContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log, "/healthcheck", "/metrics"))
	}
	r.Use(httpMW.Metrics(cfg.Metrics, "/api/events"))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/events", cfg.RealtimeHandler.Stream)
		}

		// Documents
		if cfg.DocumentHandler != nil {
			protected.POST("/documents", cfg.DocumentHandler.CreateDocument)
			protected.GET("/documents", cfg.DocumentHandler.ListDocuments)
			protected.GET("/documents/:id", cfg.DocumentHandler.GetDocument)
			protected.DELETE("/documents/:id", cfg.DocumentHandler.DeleteDocument)
		}

		// Generation
		if h := cfg.GenerationHandler; h != nil {
			for _, route := range []struct {
				path string
				flow documents.Flow
			}{
				{"/documents/:id/study-guide", documents.FlowStudyGuide},
				{"/documents/:id/quiz", documents.FlowQuiz},
			} {
				protected.POST(route.path, h.Create(route.flow))
				protected.POST(route.path+"/retry", h.Retry(route.flow))
				protected.GET(route.path, h.Status(route.flow))
			}
		}
	}

	return r
}
