package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/manager-data-agent/backend/internal/assistant"
	"github.com/manager-data-agent/backend/internal/conversation"
	"github.com/manager-data-agent/backend/internal/models"
	"github.com/manager-data-agent/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const stocksPreview = "ticker  close\n  AAPL 185.64"

func newAnalyzeHandler(capability *testutil.StubCapability) AnalyzeHandler {
	loader := testutil.NewStubLoader(map[string]string{"stocks.csv": stocksPreview})
	router := conversation.NewRouter(loader, nil, capability, conversation.Options{})
	return NewAnalyzeHandler(router)
}

func postJSON(target, body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

func TestAnalyzeHandler_HandleAnalyze(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		respond    func(models.AnalysisTask) (*models.StructuredAnswer, error)
		wantStatus int
		errCode    string
	}{
		{
			name:       "initial turn",
			body:       `{"file_path":"stocks.csv","question":"What is the average close price?"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "follow-up turn",
			body:       `{"stage":"followUp","answer":"Compute df['close'].mean()","file_path":"stocks.csv","question":"What is the average close price?"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing question",
			body:       `{"file_path":"stocks.csv"}`,
			wantStatus: http.StatusBadRequest,
			errCode:    "BAD_REQUEST",
		},
		{
			name:       "malformed body",
			body:       `{"file_path":`,
			wantStatus: http.StatusBadRequest,
			errCode:    "BAD_REQUEST",
		},
		{
			name:       "missing dataset",
			body:       `{"file_path":"missing.csv","question":"q"}`,
			wantStatus: http.StatusUnprocessableEntity,
			errCode:    "DATA_UNAVAILABLE",
		},
		{
			name: "capability failure",
			body: `{"file_path":"stocks.csv","question":"q"}`,
			respond: func(models.AnalysisTask) (*models.StructuredAnswer, error) {
				return nil, assistant.ErrUnavailable
			},
			wantStatus: http.StatusBadGateway,
			errCode:    "ANALYSIS_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capability := &testutil.StubCapability{Respond: tt.respond}
			h := newAnalyzeHandler(capability)

			e := echo.New()
			req, rec := postJSON("/api/analyze", tt.body)
			err := h.HandleAnalyze(e.NewContext(req, rec))

			if tt.errCode != "" {
				apiErr, ok := err.(*APIError)
				require.True(t, ok, "expected APIError, got %T", err)
				assert.Equal(t, tt.wantStatus, apiErr.Status)
				assert.Equal(t, tt.errCode, apiErr.Code)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "followUp", resp["stage"])
			assert.Equal(t, "stocks.csv", resp["file_path"])
			assert.Equal(t, "What is the average close price?", resp["question"])
			assert.NotEmpty(t, resp["answer"])
			assert.NotContains(t, resp, "answer_html")
			assert.Equal(t, 1, capability.Calls())
		})
	}
}

func TestAnalyzeHandler_RenderHTML(t *testing.T) {
	capability := &testutil.StubCapability{Respond: func(models.AnalysisTask) (*models.StructuredAnswer, error) {
		return &models.StructuredAnswer{Answer: "**278.26**"}, nil
	}}
	h := newAnalyzeHandler(capability)

	e := echo.New()
	req, rec := postJSON("/api/analyze?render=html", `{"file_path":"stocks.csv","question":"q"}`)
	require.NoError(t, h.HandleAnalyze(e.NewContext(req, rec)))

	var resp models.AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "**278.26**", resp.Answer)
	assert.Contains(t, resp.AnswerHTML, "<strong>278.26</strong>")
}

func TestAnalyzeHandler_Msgpack(t *testing.T) {
	h := newAnalyzeHandler(&testutil.StubCapability{})

	body, err := msgpack.Marshal(&models.AnalyzeRequest{FilePath: "stocks.csv", Question: "q"})
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, MIMEApplicationMsgpack)
	req.Header.Set(echo.HeaderAccept, MIMEApplicationMsgpack)
	rec := httptest.NewRecorder()

	require.NoError(t, h.HandleAnalyze(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MIMEApplicationMsgpack, rec.Header().Get(echo.HeaderContentType))

	var resp models.AnalyzeResponse
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.StageFollowUp, resp.Stage)
	assert.Equal(t, "stocks.csv", resp.FilePath)
}

func TestAnalyzeHandler_HandleChain(t *testing.T) {
	capability := &testutil.StubCapability{}
	capability.Respond = func(task models.AnalysisTask) (*models.StructuredAnswer, error) {
		if strings.Contains(task.Prompt, "Do not answer the question yourself") {
			return &models.StructuredAnswer{Answer: "Average the close column"}, nil
		}
		return &models.StructuredAnswer{Answer: "185.64"}, nil
	}
	h := newAnalyzeHandler(capability)

	e := echo.New()
	req, rec := postJSON("/api/analyze/chain", `{"file_path":"stocks.csv","question":"q"}`)
	require.NoError(t, h.HandleChain(e.NewContext(req, rec)))

	var result models.ChainResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "Average the close column", result.Instructions.Answer)
	assert.Equal(t, "185.64", result.Final.Answer)
	assert.Equal(t, 2, capability.Calls())
}

func TestAnalyzeHandler_HandleInvoke(t *testing.T) {
	tests := []struct {
		name       string
		event      models.InvokeEvent
		respond    func(models.AnalysisTask) (*models.StructuredAnswer, error)
		wantStatus int
		wantCode   string
		wantPrompt string
	}{
		{
			name:       "success",
			event:      models.InvokeEvent{Body: `{"file_path":"stocks.csv","question":"q"}`},
			wantStatus: http.StatusOK,
			wantPrompt: "data scientist",
		},
		{
			name:       "top-level stage overrides body",
			event:      models.InvokeEvent{Body: `{"stage":"initial","answer":"carried","file_path":"stocks.csv","question":"q"}`, Stage: models.StageFollowUp},
			wantStatus: http.StatusOK,
			wantPrompt: "carried",
		},
		{
			name:       "body is not JSON",
			event:      models.InvokeEvent{Body: "not json"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "empty body",
			event:      models.InvokeEvent{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "missing dataset",
			event:      models.InvokeEvent{Body: `{"file_path":"nope.csv","question":"q"}`},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "DATA_UNAVAILABLE",
		},
		{
			name:  "capability failure",
			event: models.InvokeEvent{Body: `{"file_path":"stocks.csv","question":"q"}`},
			respond: func(models.AnalysisTask) (*models.StructuredAnswer, error) {
				return nil, assistant.ErrRateLimited
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   "ANALYSIS_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capability := &testutil.StubCapability{Respond: tt.respond}
			h := newAnalyzeHandler(capability)

			payload, err := json.Marshal(tt.event)
			require.NoError(t, err)

			e := echo.New()
			req, rec := postJSON("/api/invoke", string(payload))
			require.NoError(t, h.HandleInvoke(e.NewContext(req, rec)))
			assert.Equal(t, http.StatusOK, rec.Code, "the envelope itself is always delivered")

			var result models.InvokeResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.Equal(t, tt.wantStatus, result.StatusCode)
			assert.Equal(t, "application/json", result.Headers["Content-Type"])

			if tt.wantCode != "" {
				var apiErr APIError
				require.NoError(t, json.Unmarshal([]byte(result.Body), &apiErr))
				assert.Equal(t, tt.wantCode, apiErr.Code)
				return
			}

			var resp models.AnalyzeResponse
			require.NoError(t, json.Unmarshal([]byte(result.Body), &resp))
			assert.Equal(t, models.StageFollowUp, resp.Stage)
			assert.Contains(t, capability.LastPrompt(), tt.wantPrompt)
		})
	}
}

func TestAnalyzeHandler_HandleInvoke_UndecodableEvent(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"body sent as an object", `{"body":{"file_path":"stocks.csv","question":"q"}}`},
		{"not JSON", `body=stocks.csv`},
		{"truncated", `{"body":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capability := &testutil.StubCapability{}
			h := newAnalyzeHandler(capability)

			e := echo.New()
			req, rec := postJSON("/api/invoke", tt.body)
			require.NoError(t, h.HandleInvoke(e.NewContext(req, rec)))
			assert.Equal(t, http.StatusOK, rec.Code)

			var result models.InvokeResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.Equal(t, http.StatusBadRequest, result.StatusCode)
			assert.Equal(t, "application/json", result.Headers["Content-Type"])

			var apiErr APIError
			require.NoError(t, json.Unmarshal([]byte(result.Body), &apiErr))
			assert.Equal(t, "BAD_REQUEST", apiErr.Code)
			assert.Equal(t, 0, capability.Calls())
		})
	}
}
