// stubs.go - Deterministic stand-ins for the dataset loader and analysis capability
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/manager-data-agent/backend/internal/dataset"
	"github.com/manager-data-agent/backend/internal/models"
)

// StubLoader returns a fixed preview for known paths and ErrDataUnavailable otherwise.
type StubLoader struct {
	mu       sync.Mutex
	Previews map[string]string
	Calls    []string
}

// NewStubLoader creates a loader that knows the given path -> preview pairs
func NewStubLoader(previews map[string]string) *StubLoader {
	return &StubLoader{Previews: previews}
}

func (l *StubLoader) Preview(ctx context.Context, path string, rows int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, path)

	preview, ok := l.Previews[path]
	if !ok {
		return "", fmt.Errorf("%w: file not found: %s", dataset.ErrDataUnavailable, path)
	}
	return preview, nil
}

// StubCapability records every task and answers from Respond, or echoes a
// deterministic answer derived from the prompt length.
type StubCapability struct {
	mu      sync.Mutex
	Tasks   []models.AnalysisTask
	Respond func(task models.AnalysisTask) (*models.StructuredAnswer, error)
}

func (s *StubCapability) Run(ctx context.Context, task models.AnalysisTask) (*models.StructuredAnswer, error) {
	s.mu.Lock()
	s.Tasks = append(s.Tasks, task)
	respond := s.Respond
	s.mu.Unlock()

	if respond != nil {
		return respond(task)
	}
	return &models.StructuredAnswer{Answer: fmt.Sprintf("answer for a %d character prompt", len(task.Prompt))}, nil
}

// Calls returns the number of Run invocations
func (s *StubCapability) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Tasks)
}

// LastPrompt returns the most recent prompt, or "" if Run was never called
func (s *StubCapability) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Tasks) == 0 {
		return ""
	}
	return s.Tasks[len(s.Tasks)-1].Prompt
}
