// Package conversation routes a turn of the two-stage manager/analyst protocol to
// the analysis capability. No state is kept between turns: the client carries
// the manager's instructions back in the follow-up request.
package conversation

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/manager-data-agent/backend/internal/logging"
	"github.com/manager-data-agent/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// PreviewLoader renders the first rows of a dataset as text.
type PreviewLoader interface {
	Preview(ctx context.Context, path string, rows int) (string, error)
}

// PathResolver maps a request's file_path to a readable location.
type PathResolver interface {
	Resolve(filePath string) (string, error)
}

// Capability is the external analysis capability.
type Capability interface {
	Run(ctx context.Context, task models.AnalysisTask) (*models.StructuredAnswer, error)
}

// Options configures a Router.
type Options struct {
	PreviewRows     int
	FileDescription string
	StrictStage     bool
}

// Router handles one turn per call and is safe for concurrent use.
type Router struct {
	loader     PreviewLoader
	resolver   PathResolver
	capability Capability
	opts       Options
	log        *logrus.Entry
}

// NewRouter creates a router. A nil resolver uses file paths as given.
func NewRouter(loader PreviewLoader, resolver PathResolver, capability Capability, opts Options) *Router {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 5
	}
	return &Router{
		loader:     loader,
		resolver:   resolver,
		capability: capability,
		opts:       opts,
		log:        logging.For("conversation"),
	}
}

// Handle runs one turn: the initial stage renders the manager prompt, any other
// stage renders the analyst prompt around the carried answer. The response
// always carries stage "followUp".
func (r *Router) Handle(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error) {
	const op = "conversation.Handle"

	stage, err := ParseStage(req.Stage, r.opts.StrictStage)
	if err != nil {
		return nil, newError(KindBadRequest, op, err)
	}
	if err := validate(req); err != nil {
		return nil, newError(KindBadRequest, op, err)
	}

	log := r.log.WithFields(logrus.Fields{"stage": stage, "file_path": req.FilePath})

	path := req.FilePath
	if r.resolver != nil {
		if path, err = r.resolver.Resolve(req.FilePath); err != nil {
			log.WithError(err).Warn("dataset path rejected")
			return nil, newError(KindDataUnavailable, op, err)
		}
	}

	preview, err := r.loader.Preview(ctx, path, r.opts.PreviewRows)
	if err != nil {
		log.WithError(err).Warn("dataset preview failed")
		return nil, newError(KindDataUnavailable, op, err)
	}

	var prompt string
	if stage == models.StageInitial {
		prompt, err = RenderManagerPrompt(req.Question, preview)
	} else {
		if strings.TrimSpace(req.Answer) == "" {
			log.Warn("follow-up turn without instructions")
		}
		prompt, err = RenderAnalystPrompt(preview, req.Answer, req.Question)
	}
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}

	answer, err := r.capability.Run(ctx, models.AnalysisTask{
		Prompt:          prompt,
		FilePath:        path,
		FileDescription: r.opts.FileDescription,
	})
	if err != nil {
		log.WithError(err).Error("analysis capability failed")
		return nil, newError(KindAnalysisFailed, op, err)
	}
	if answer == nil {
		return nil, newError(KindAnalysisFailed, op, errors.New("capability returned no answer"))
	}

	log.WithFields(logrus.Fields{
		"answer":        answer.Answer,
		"answer_length": utf8.RuneCountInString(answer.Answer),
	}).Info("analysis answer received")

	return &models.AnalyzeResponse{
		Answer:   answer.Answer,
		FilePath: req.FilePath,
		Question: req.Question,
		Stage:    models.StageFollowUp,
	}, nil
}

// Chain runs both turns server side: the manager's instructions from the
// initial turn become the answer carried into the follow-up turn.
func (r *Router) Chain(ctx context.Context, req models.AnalyzeRequest) (*models.ChainResult, error) {
	first := req
	first.Stage = models.StageInitial
	first.Answer = ""

	instructions, err := r.Handle(ctx, first)
	if err != nil {
		return nil, err
	}

	final, err := r.Handle(ctx, models.AnalyzeRequest{
		Stage:    instructions.Stage,
		Answer:   instructions.Answer,
		FilePath: req.FilePath,
		Question: req.Question,
	})
	if err != nil {
		return nil, err
	}

	return &models.ChainResult{Instructions: instructions, Final: final}, nil
}

func validate(req models.AnalyzeRequest) error {
	if strings.TrimSpace(req.FilePath) == "" {
		return errors.New("file_path is required")
	}
	if strings.TrimSpace(req.Question) == "" {
		return errors.New("question is required")
	}
	return nil
}
