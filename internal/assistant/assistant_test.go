package assistant

import (
	"errors"
	"testing"

	"github.com/manager-data-agent/backend/internal/config"
	"github.com/manager-data-agent/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAnswer(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"plain object", `{"answer":"42"}`, "42", false},
		{"fenced json", "```json\n{\"answer\": \"mean is 3\"}\n```", "mean is 3", false},
		{"fenced no lang", "```\n{\"answer\": \"ok\"}\n```", "ok", false},
		{"extra fields ignored", `{"answer":"a","confidence":0.9}`, "a", false},
		{"empty answer allowed", `{"answer":""}`, "", false},
		{"empty output", "   ", "", true},
		{"not json", "The average is 3.", "", true},
		{"missing field", `{"result":"3"}`, "", true},
		{"wrong type", `{"answer":3}`, "", true},
		{"array", `["answer"]`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAnswer(tt.raw)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrNonConforming), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Answer)
		})
	}
}

func TestSystemInstructions(t *testing.T) {
	task := models.AnalysisTask{
		Prompt:          "p",
		FilePath:        "/data/uploads/stocks.csv",
		FileDescription: "Contains information about a portfolio of stocks",
	}

	t.Run("with execution", func(t *testing.T) {
		got := systemInstructions(task, Options{ChartingLibraries: []string{"plotly"}, SaveAndRun: true}, true)
		assert.Contains(t, got, "Dataset file: stocks.csv")
		assert.NotContains(t, got, "/data/uploads")
		assert.Contains(t, got, "portfolio of stocks")
		assert.Contains(t, got, "run_sql")
		assert.Contains(t, got, "saved and re-run")
		assert.Contains(t, got, "plotly")
		assert.Contains(t, got, `single string field "answer"`)
	})

	t.Run("without execution", func(t *testing.T) {
		got := systemInstructions(task, Options{}, false)
		assert.Contains(t, got, "cannot execute code")
		assert.NotContains(t, got, "run_sql")
		assert.NotContains(t, got, "visualization")
	})
}

func TestNew(t *testing.T) {
	t.Run("openai requires a key", func(t *testing.T) {
		_, err := New(config.AssistantConfig{Provider: "openai"}, nil)
		assert.True(t, errors.Is(err, ErrUnauthorized))
	})

	t.Run("openai", func(t *testing.T) {
		c, err := New(config.AssistantConfig{Provider: "OpenAI", APIKey: "sk-test", RunCode: true}, nil)
		require.NoError(t, err)
		o, ok := c.(*OpenAI)
		require.True(t, ok)
		assert.False(t, o.canExecute(), "no runner means no execution")
	})

	t.Run("ollama", func(t *testing.T) {
		c, err := New(config.AssistantConfig{Provider: "ollama", BaseURL: "http://localhost:11434"}, nil)
		require.NoError(t, err)
		_, ok := c.(*Ollama)
		assert.True(t, ok)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(config.AssistantConfig{Provider: "abacus"}, nil)
		assert.Error(t, err)
	})
}
