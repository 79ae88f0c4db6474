// Package assistant is the analysis capability: an LLM that answers a prompt about
// one dataset and returns a structured {"answer": ...} object.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/manager-data-agent/backend/internal/config"
	"github.com/manager-data-agent/backend/internal/models"
)

var (
	ErrUnauthorized  = errors.New("assistant unauthorized")
	ErrUnavailable   = errors.New("assistant unavailable")
	ErrRateLimited   = errors.New("assistant rate limited")
	ErrNonConforming = errors.New("assistant output does not match the answer schema")
)

// Capability runs a prompt and returns the structured answer.
type Capability interface {
	Run(ctx context.Context, task models.AnalysisTask) (*models.StructuredAnswer, error)
}

// QueryRunner executes read-only statements against a dataset.
type QueryRunner interface {
	Query(ctx context.Context, path, statement string, limit int) (*models.QueryResult, error)
}

// Options are the behaviour switches shared by every provider.
type Options struct {
	RunCode           bool
	SaveAndRun        bool
	ChartingLibraries []string
	MaxToolRounds     int
	QueryRowLimit     int
}

func optionsFrom(cfg config.AssistantConfig) Options {
	return Options{
		RunCode:           cfg.RunCode,
		SaveAndRun:        cfg.SaveAndRun,
		ChartingLibraries: cfg.ChartingLibraries,
		MaxToolRounds:     cfg.MaxToolRounds,
		QueryRowLimit:     cfg.QueryRowLimit,
	}
}

// New builds the configured provider. runner may be nil, in which case code
// execution is never offered.
func New(cfg config.AssistantConfig, runner QueryRunner) (Capability, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: no OpenAI API key configured", ErrUnauthorized)
		}
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, timeout, optionsFrom(cfg), runner), nil
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model, optionsFrom(cfg))
	default:
		return nil, fmt.Errorf("unsupported assistant provider: %q", cfg.Provider)
	}
}

// answerSchema is the JSON schema of models.StructuredAnswer.
var answerSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "answer": {"type": "string", "description": "The result of the user's question."}
  },
  "required": ["answer"],
  "additionalProperties": false
}`)

// systemInstructions describes the dataset and the output contract.
func systemInstructions(task models.AnalysisTask, opts Options, canExecute bool) string {
	var b strings.Builder
	b.WriteString("You are a data analysis assistant working on a single tabular dataset.\n\n")
	fmt.Fprintf(&b, "Dataset file: %s\n", filepath.Base(task.FilePath))
	if task.FileDescription != "" {
		fmt.Fprintf(&b, "Description: %s\n", task.FileDescription)
	}
	b.WriteString("\n")

	if canExecute {
		b.WriteString("You can run read-only SQL against the dataset with the run_sql tool. ")
		b.WriteString("The dataset is available as the table \"dataset\". ")
		b.WriteString("Compute results by running queries instead of estimating them.\n")
		if opts.SaveAndRun {
			b.WriteString("Include every query you ran in your answer so it can be saved and re-run.\n")
		}
	} else {
		b.WriteString("You cannot execute code. Show the code you would run and reason carefully about its result.\n")
	}

	if len(opts.ChartingLibraries) > 0 {
		fmt.Fprintf(&b, "If a visualization helps, assume %s is available and include the charting code.\n",
			strings.Join(opts.ChartingLibraries, ", "))
	}

	b.WriteString("\nRespond only with a JSON object that has a single string field \"answer\".")
	return b.String()
}

// DecodeAnswer validates raw model output against the answer schema.
func DecodeAnswer(raw string) (*models.StructuredAnswer, error) {
	s := stripFences(strings.TrimSpace(raw))
	if s == "" {
		return nil, fmt.Errorf("%w: empty output", ErrNonConforming)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrNonConforming, err)
	}
	field, ok := obj["answer"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"answer\" field", ErrNonConforming)
	}
	var answer string
	if err := json.Unmarshal(field, &answer); err != nil {
		return nil, fmt.Errorf("%w: \"answer\" is not a string", ErrNonConforming)
	}
	return &models.StructuredAnswer{Answer: answer}, nil
}

// stripFences removes a surrounding markdown code fence, which some models add.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
