// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/manager-data-agent/backend/internal/models"
)

// AnalyzeHandler handles analysis turns
type AnalyzeHandler interface {
	HandleAnalyze(c echo.Context) error
	HandleChain(c echo.Context) error
	HandleInvoke(c echo.Context) error
}

// FileHandler handles dataset upload operations
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandlePreviewFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Router runs analysis turns. Implemented by *conversation.Router.
type Router interface {
	Handle(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error)
	Chain(ctx context.Context, req models.AnalyzeRequest) (*models.ChainResult, error)
}

// DatasetInspector reads datasets for the preview endpoint. Implemented by *dataset.Loader.
type DatasetInspector interface {
	Preview(ctx context.Context, path string, rows int) (string, error)
	Describe(ctx context.Context, path string) (*models.DatasetSummary, error)
}
