package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/candidate-intel-backend/internal/http/handlers"
	httpMW "github.com/yungbote/candidate-intel-backend/internal/http/middleware"
	"github.com/yungbote/candidate-intel-backend/internal/observability"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	Metrics        *observability.Metrics
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler   *httpH.HealthHandler
	ProfileHandler  *httpH.ProfileHandler
	JobHandler      *httpH.JobHandler
	SearchHandler   *httpH.SearchHandler
	ChatHandler     *httpH.ChatHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log, "/healthcheck"))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Any authenticated caller
	if cfg.JobHandler != nil {
		api.GET("/jobs/:id", cfg.JobHandler.GetJob)
	}
	if cfg.RealtimeHandler != nil {
		api.GET("/realtime/stream", cfg.RealtimeHandler.SSEStream)
	}

	// Professionals
	professional := api.Group("/")
	if cfg.AuthMiddleware != nil {
		professional.Use(cfg.AuthMiddleware.RequireRole(services.RoleProfessional))
	}
	if cfg.ProfileHandler != nil {
		professional.POST("/profile", cfg.ProfileHandler.SaveProfile)
	}

	// Recruiters
	recruiter := api.Group("/")
	if cfg.AuthMiddleware != nil {
		recruiter.Use(cfg.AuthMiddleware.RequireRole(services.RoleRecruiter))
	}
	if cfg.SearchHandler != nil {
		recruiter.GET("/recruiter/search", cfg.SearchHandler.Search)
		recruiter.GET("/recruiter/candidates/:candidateId/summary", cfg.SearchHandler.GetSummary)
	}
	if cfg.JobHandler != nil {
		recruiter.GET("/recruiter/candidates/:candidateId/generation", cfg.JobHandler.GetCandidateGeneration)
	}
	if cfg.ChatHandler != nil {
		recruiter.GET("/ai/stream", cfg.ChatHandler.Stream)
		recruiter.GET("/ai/history", cfg.ChatHandler.History)
	}

	return r
}
