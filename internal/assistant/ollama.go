package assistant

import (
	"context"
	"fmt"
	"net/url"

	"github.com/JexSrs/go-ollama"
	"github.com/manager-data-agent/backend/internal/logging"
	"github.com/manager-data-agent/backend/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	defaultOllamaHost  = "http://127.0.0.1:11434"
	defaultOllamaModel = "gemma3:latest"
)

// generateFunc performs one non-streaming completion.
type generateFunc func(system, prompt string) (response string, done bool, err error)

// Ollama is a Capability backed by a local Ollama server. It never executes code.
type Ollama struct {
	model    string
	opts     Options
	generate generateFunc
	log      *logrus.Entry
}

// NewOllama creates a client for the Ollama server at host.
func NewOllama(host, model string, opts Options) (*Ollama, error) {
	if host == "" {
		host = defaultOllamaHost
	}
	if model == "" {
		model = defaultOllamaModel
	}

	ollamaURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	client := ollama.New(*ollamaURL)

	log := logging.For("assistant.ollama")
	log.Infof("Using Ollama host %s with model %s", host, model)

	return &Ollama{
		model: model,
		opts:  opts,
		generate: func(system, prompt string) (string, bool, error) {
			res, err := client.Generate(
				client.Generate.WithModel(model),
				client.Generate.WithSystem(system),
				client.Generate.WithPrompt(prompt),
			)
			if err != nil {
				return "", false, err
			}
			return res.Response, res.Done, nil
		},
		log: log,
	}, nil
}

type generateResult struct {
	response string
	done     bool
	err      error
}

// Run sends the prompt with the dataset instructions as the system message.
func (o *Ollama) Run(ctx context.Context, task models.AnalysisTask) (*models.StructuredAnswer, error) {
	system := systemInstructions(task, o.opts, false)

	// The client has no context support, so wait on the call in the background
	resCh := make(chan generateResult, 1)
	go func() {
		response, done, err := o.generate(system, task.Prompt)
		resCh <- generateResult{response: response, done: done, err: err}
	}()

	var res generateResult
	select {
	case res = <-resCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res.err != nil {
		return nil, fmt.Errorf("%w: ollama generate: %v", ErrUnavailable, res.err)
	}
	if !res.done {
		return nil, fmt.Errorf("%w: ollama response not marked done", ErrNonConforming)
	}
	o.log.Debug("Response received from Ollama")
	return DecodeAnswer(res.response)
}
