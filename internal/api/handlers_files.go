// handlers_files.go - Dataset upload and management handlers
package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/manager-data-agent/backend/internal/models"
	"github.com/manager-data-agent/backend/internal/storage"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// FileOptions configures the file handler
type FileOptions struct {
	AllowedExtensions []string
	AllowDeletion     bool
	PreviewRows       int
}

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store     storage.Store
	inspector DatasetInspector
	opts      FileOptions
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(store storage.Store, inspector DatasetInspector, opts FileOptions) FileHandler {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 5
	}
	return &FileHandlerImpl{
		store:     store,
		inspector: inspector,
		opts:      opts,
	}
}

// HandleUploadFile accepts a dataset as base64 JSON and saves it to storage
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	var req uploadFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}
	if err := h.checkExtension(req.Name); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	info, err := h.store.SaveBytes(req.Name, decoded)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleUploadBinary accepts a multipart/form-data upload in the "file" field
func (h *FileHandlerImpl) HandleUploadBinary(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}
	if err := h.checkExtension(file.Filename); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleGetRecentFiles returns the most recently uploaded datasets
func (h *FileHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	limit := defaultRecentLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = min(n, maxRecentLimit)
	}

	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	if files == nil {
		files = []*models.FileInfo{}
	}

	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific dataset
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandlePreviewFile returns the first rows of a dataset as text plus its schema
func (h *FileHandlerImpl) HandlePreviewFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	rows := h.opts.PreviewRows
	if raw := c.QueryParam("rows"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("rows")
		}
		rows = n
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}
	path, err := h.store.GetFilePath(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	ctx := c.Request().Context()
	text, err := h.inspector.Preview(ctx, path, rows)
	if err != nil {
		return NewDataUnavailableError("dataset could not be read", err)
	}
	summary, err := h.inspector.Describe(ctx, path)
	if err != nil {
		return NewDataUnavailableError("dataset could not be read", err)
	}

	return respond(c, http.StatusOK, &models.DatasetPreview{
		File:    info,
		Rows:    rows,
		Text:    text,
		Summary: summary,
	})
}

// HandleDeleteFile deletes a dataset
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	if !h.opts.AllowDeletion {
		return NewForbiddenError("file deletion is disabled")
	}

	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("file", id)
		}
		return NewInternalError("failed to delete file", err)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleRenameFile updates the display name of a dataset
func (h *FileHandlerImpl) HandleRenameFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if req.Name == "" {
		return NewValidationError("name")
	}
	if err := h.checkExtension(req.Name); err != nil {
		return err
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("file", id)
		}
		return NewInternalError("failed to rename file", err)
	}

	return c.JSON(http.StatusOK, info)
}

// checkExtension rejects names whose extension is not an allowed dataset type.
// An empty allow list accepts everything.
func (h *FileHandlerImpl) checkExtension(name string) error {
	if len(h.opts.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range h.opts.AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return NewBadRequestError("unsupported file type: "+ext, nil)
}

// Request types

type uploadFileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded content
}

func (r *uploadFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type renameFileRequest struct {
	Name string `json:"name"`
}
