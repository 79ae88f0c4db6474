package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/manager-data-agent/backend/internal/logging"
	"github.com/manager-data-agent/backend/internal/models"
	"github.com/sirupsen/logrus"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

const (
	defaultOpenAIModel = "gpt-4o"
	maxErrorBodyBytes  = 2048
	runSQLTool         = "run_sql"
)

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type tool struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Tools          []tool         `json:"tools,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

var runSQLParameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "A single read-only SELECT statement over the table \"dataset\"."}
  },
  "required": ["query"],
  "additionalProperties": false
}`)

// OpenAI is a Capability backed by the chat completions API.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	opts    Options
	runner  QueryRunner
	log     *logrus.Entry
}

// NewOpenAI creates an OpenAI provider. Empty baseURL and model fall back to defaults.
func NewOpenAI(baseURL, apiKey, model string, timeout time.Duration, opts Options, runner QueryRunner) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		opts:    opts,
		runner:  runner,
		log:     logging.For("assistant.openai"),
	}
}

func (c *OpenAI) canExecute() bool {
	return c.opts.RunCode && c.runner != nil
}

// Run sends the prompt, serves run_sql tool calls for at most MaxToolRounds
// rounds and decodes the final message.
func (c *OpenAI) Run(ctx context.Context, task models.AnalysisTask) (*models.StructuredAnswer, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemInstructions(task, c.opts, c.canExecute())},
		{Role: "user", Content: task.Prompt},
	}

	rounds := 0
	for {
		offerTools := c.canExecute() && rounds < c.opts.MaxToolRounds
		msg, err := c.complete(ctx, messages, offerTools)
		if err != nil {
			return nil, err
		}

		if len(msg.ToolCalls) == 0 || !offerTools {
			return DecodeAnswer(msg.Content)
		}

		rounds++
		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			messages = append(messages, chatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    c.runTool(ctx, task.FilePath, call),
			})
		}
	}
}

// runTool executes one tool call. Failures are reported back to the model as text.
func (c *OpenAI) runTool(ctx context.Context, path string, call toolCall) string {
	if call.Function.Name != runSQLTool {
		return fmt.Sprintf("error: unknown tool %q", call.Function.Name)
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return "error: arguments must be a JSON object with a \"query\" string"
	}

	c.log.WithField("query", args.Query).Debug("running dataset query")
	result, err := c.runner.Query(ctx, path, args.Query, c.opts.QueryRowLimit)
	if err != nil {
		return "error: " + err.Error()
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "error: " + err.Error()
	}
	return string(out)
}

func (c *OpenAI) complete(ctx context.Context, messages []chatMessage, offerTools bool) (chatMessage, error) {
	payload := chatRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   "assistant_response",
				Strict: true,
				Schema: answerSchema,
			},
		},
		Temperature: 0,
	}
	if offerTools {
		payload.Tools = []tool{{
			Type: "function",
			Function: functionDef{
				Name:        runSQLTool,
				Description: "Run a read-only SQL query against the dataset and return the rows.",
				Parameters:  runSQLParameters,
			},
		}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return chatMessage{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return chatMessage{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return chatMessage{}, err
		}
		return chatMessage{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return chatMessage{}, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return chatMessage{}, ErrRateLimited
	case resp.StatusCode >= 500:
		return chatMessage{}, ErrUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return chatMessage{}, fmt.Errorf("openai request failed: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return chatMessage{}, fmt.Errorf("%w: decoding response: %v", ErrNonConforming, err)
	}
	if len(decoded.Choices) == 0 {
		return chatMessage{}, fmt.Errorf("%w: no choices in response", ErrNonConforming)
	}
	return decoded.Choices[0].Message, nil
}
