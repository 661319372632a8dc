package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/sfbulk/internal/api/handler"
	"github.com/timmy/sfbulk/internal/api/middleware"
	"github.com/timmy/sfbulk/internal/config"
	"github.com/timmy/sfbulk/internal/logger"
	"github.com/timmy/sfbulk/internal/service"
)

// Dependencies bundles what the router needs. Ledger may be nil.
type Dependencies struct {
	Runner *service.JobRunner
	Ledger service.JobLedger
	Checks map[string]handler.Pinger
	Logger *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *Dependencies, cfg *config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(deps.Checks)
	jobHandler := handler.NewJobHandler(deps.Runner, deps.Ledger)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		jobs.GET("", jobHandler.ListJobs)
		jobs.POST("/query", jobHandler.RunQuery)
		jobs.POST("/ingest", jobHandler.RunIngest)
		jobs.GET("/:kind/:id", jobHandler.GetJob)
		jobs.GET("/:kind/:id/results/:category", jobHandler.GetResults)
	}

	return r
}
