// handlers_analyze.go - Analysis turn handlers
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/manager-data-agent/backend/internal/logging"
	"github.com/manager-data-agent/backend/internal/models"
	"github.com/manager-data-agent/backend/internal/render"
	"github.com/sirupsen/logrus"
)

// AnalyzeHandlerImpl implements the AnalyzeHandler interface
type AnalyzeHandlerImpl struct {
	router Router
	log    *logrus.Entry
}

// NewAnalyzeHandler creates a new analyze handler
func NewAnalyzeHandler(router Router) AnalyzeHandler {
	return &AnalyzeHandlerImpl{
		router: router,
		log:    logging.For("api"),
	}
}

// HandleAnalyze runs one turn of the manager/analyst protocol
func (h *AnalyzeHandlerImpl) HandleAnalyze(c echo.Context) error {
	var req models.AnalyzeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	resp, err := h.router.Handle(c.Request().Context(), req)
	if err != nil {
		return FromError(err)
	}

	if wantsHTML(c) {
		if err := addHTML(resp); err != nil {
			return err
		}
	}

	return respond(c, http.StatusOK, resp)
}

// HandleChain runs the initial and follow-up turns in one request
func (h *AnalyzeHandlerImpl) HandleChain(c echo.Context) error {
	var req models.AnalyzeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.router.Chain(c.Request().Context(), req)
	if err != nil {
		return FromError(err)
	}

	if wantsHTML(c) {
		if err := addHTML(result.Final); err != nil {
			return err
		}
	}

	return respond(c, http.StatusOK, result)
}

// HandleInvoke accepts a cloud-function style event and always answers with
// an envelope; failures are reported through the envelope's statusCode.
func (h *AnalyzeHandlerImpl) HandleInvoke(c echo.Context) error {
	var event models.InvokeEvent
	if err := c.Bind(&event); err != nil {
		h.log.WithError(err).Warn("invoke event rejected")
		return c.JSON(http.StatusOK, envelope(NewBadRequestError("invalid event", err)))
	}

	result := h.invoke(c.Request().Context(), event)
	return c.JSON(http.StatusOK, result)
}

func (h *AnalyzeHandlerImpl) invoke(ctx context.Context, event models.InvokeEvent) *models.InvokeResult {
	var req models.AnalyzeRequest
	if body := strings.TrimSpace(event.Body); body != "" {
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return envelope(NewBadRequestError("event body is not a JSON object", err))
		}
	}
	if event.Stage != "" {
		req.Stage = event.Stage
	}

	resp, err := h.router.Handle(ctx, req)
	if err != nil {
		apiErr := FromError(err)
		h.log.WithFields(logrus.Fields{"status": apiErr.Status, "code": apiErr.Code}).
			WithError(err).Warn("invoke failed")
		return envelope(apiErr)
	}
	return envelope(resp)
}

// envelope wraps a response or an *APIError into an InvokeResult.
func envelope(v interface{}) *models.InvokeResult {
	status := http.StatusOK
	if apiErr, ok := v.(*APIError); ok {
		status = apiErr.Status
	}

	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(NewInternalError("failed to encode response", err))
	}

	return &models.InvokeResult{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{echo.HeaderContentType: echo.MIMEApplicationJSON},
	}
}

func wantsHTML(c echo.Context) bool {
	return strings.EqualFold(c.QueryParam("render"), "html")
}

func addHTML(resp *models.AnalyzeResponse) error {
	html, err := render.Markdown(resp.Answer)
	if err != nil {
		return NewInternalError("failed to render answer", err)
	}
	resp.AnswerHTML = html
	return nil
}
