package api

import (
	"github.com/gin-gonic/gin"

	"github.com/machinemate/machinemate/internal/api/handler"
	"github.com/machinemate/machinemate/internal/api/middleware"
	"github.com/machinemate/machinemate/internal/config"
	"github.com/machinemate/machinemate/internal/repository"
	"github.com/machinemate/machinemate/internal/service"
	"github.com/machinemate/machinemate/internal/storage"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	pipeline *service.Pipeline,
	machines *repository.MachineRepository,
	archive *storage.PhotoArchive,
	cfg *config.ServerConfig,
) *gin.Engine {
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
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler()
	identifyHandler := handler.NewIdentifyHandler(pipeline, archive)
	machineHandler := handler.NewMachineHandler(machines)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Identification
		v1.POST("/identify", identifyHandler.Identify)

		// Machine catalog
		v1.GET("/machines", machineHandler.ListMachines)
		v1.GET("/machines/:id", machineHandler.GetMachine)
	}

	return r
}
