// routes.go - Route registration helpers
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/manager-data-agent/backend/internal/config"
	"github.com/manager-data-agent/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store     storage.Store
	Router    Router
	Inspector DatasetInspector
	Config    *config.AppConfig
	Version   string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Analyze AnalyzeHandler
	Files   FileHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	cfg := deps.Config
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, cfg.Assistant.Provider),
		Analyze: NewAnalyzeHandler(deps.Router),
		Files: NewFileHandler(deps.Store, deps.Inspector, FileOptions{
			AllowedExtensions: cfg.AllowedExtensions(),
			AllowDeletion:     cfg.Security.AllowFileDeletion,
			PreviewRows:       cfg.Dataset.PreviewRows,
		}),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/health", handlers.Health.HandleHealth)

	e.POST("/api/analyze", handlers.Analyze.HandleAnalyze)
	e.POST("/api/analyze/chain", handlers.Analyze.HandleChain)
	e.POST("/api/invoke", handlers.Analyze.HandleInvoke)

	files := e.Group("/api/files")
	files.POST("/upload", handlers.Files.HandleUploadFile)
	files.POST("/upload/binary", handlers.Files.HandleUploadBinary)
	files.GET("/recent", handlers.Files.HandleGetRecentFiles)
	files.GET("/:id", handlers.Files.HandleGetFile)
	files.GET("/:id/preview", handlers.Files.HandlePreviewFile)
	files.PUT("/:id", handlers.Files.HandleRenameFile)
	files.DELETE("/:id", handlers.Files.HandleDeleteFile)
}

// SetupMiddleware configures the error handler and common middleware
func SetupMiddleware(e *echo.Echo, cfg config.ServerConfig) {
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
	}))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))

	if cfg.EnableRequestLogging {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/api/health"
			},
		}))
	}

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if cfg.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
			Skipper: func(c echo.Context) bool {
				return strings.Contains(c.Request().URL.Path, "/upload")
			},
		}))
	}

	if cfg.EnableCORS {
		var origins []string
		for _, o := range strings.Split(cfg.AllowOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}
}
