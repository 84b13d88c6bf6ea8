package api

import (
	"github.com/gin-gonic/gin"

	"github.com/marlow/finreporter/internal/api/handler"
	"github.com/marlow/finreporter/internal/api/middleware"
	"github.com/marlow/finreporter/internal/config"
	"github.com/marlow/finreporter/internal/logger"
	"github.com/marlow/finreporter/internal/service"
	"github.com/marlow/finreporter/internal/storage"
	"github.com/marlow/finreporter/internal/store"
)

// Version is reported by the health endpoint; overridden at build time.
var Version = "dev"

// Deps bundles everything the router needs.
type Deps struct {
	Store     store.Store
	Objects   storage.ObjectStorage
	Uploads   *service.UploadService
	Tracker   *service.StatusTracker
	Pipeline  *service.Pipeline
	Market    *service.MarketService
	Forecasts *service.ForecastService
	Logger    *logger.Logger
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(cfg *config.ServerConfig, deps Deps) *gin.Engine {
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
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(Version)
	reportHandler := handler.NewReportHandler(deps.Uploads, deps.Tracker, deps.Pipeline, deps.Store, deps.Objects)
	marketHandler := handler.NewMarketHandler(deps.Market)
	forecastHandler := handler.NewForecastHandler(deps.Forecasts)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		reports := v1.Group("/reports")
		{
			reports.POST("/upload", reportHandler.Upload)
			reports.GET("", reportHandler.List)
			reports.GET("/:id", reportHandler.Get)
			reports.PUT("/:id/status", reportHandler.UpdateStatus)
			reports.PUT("/:id", reportHandler.Update)
			reports.DELETE("/:id", reportHandler.Delete)
			reports.POST("/:id/analyze", reportHandler.Analyze)
		}

		v1.GET("/financial-data", marketHandler.List)
		v1.GET("/financial-data/:id", marketHandler.GetByID)
		v1.GET("/forecast/:ticker", forecastHandler.Get)
	}

	return r
}
