package llm

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/gmsas95/medtwin/internal/errors"
	"github.com/gmsas95/medtwin/internal/metrics"
	"github.com/gmsas95/medtwin/internal/model"
	"github.com/gmsas95/medtwin/internal/report"
	"go.uber.org/zap"
)

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt, apiKey string) (string, error)
}

// Advice is the outcome of one advisory request. Exactly one of Text and
// Error is set.
type Advice struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Advisor turns a model snapshot into a prompt and asks the generator
type Advisor struct {
	gen      Generator
	recorder metrics.Recorder
	logger   *zap.Logger
}

// NewAdvisor creates an advisor
func NewAdvisor(gen Generator, recorder metrics.Recorder, logger *zap.Logger) *Advisor {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{
		gen:      gen,
		recorder: recorder,
		logger:   logger,
	}
}

// Ask requests advice for snap. Failures are reported in Advice.Error.
func (a *Advisor) Ask(ctx context.Context, snap model.Snapshot, apiKey string) Advice {
	start := time.Now()

	text, err := a.gen.Generate(ctx, report.Prompt(snap), apiKey)
	if err != nil {
		a.recorder.AdviceRequest(metrics.OutcomeError, time.Since(start))
		a.logger.Warn("Advice request failed",
			zap.String("code", apperrors.GetCode(asAppError(err))),
			zap.Error(err),
		)
		return Advice{Error: errorMessage(err)}
	}

	a.recorder.AdviceRequest(metrics.OutcomeSuccess, time.Since(start))
	a.logger.Debug("Advice received",
		zap.Int("overall_health", snap.OverallHealth),
		zap.Int("length", len(text)),
	)
	return Advice{Text: text}
}

func asAppError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return err
}

func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Error calling Gemini API"
}
