// Package focusgroup scores a draft with a simulated panel of personas.
package focusgroup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/apperrors"
	"github.com/agency-studio/content-pipeline/internal/models"
)

// DefaultThreshold is the average score a draft needs to pass.
const DefaultThreshold = 7.0

// Stage names the pipeline stage evaluator failures are attributed to.
const Stage = "review"

// Caller is the opaque evaluation call. The panel is evaluated in a single atomic request.
type Caller interface {
	Evaluate(ctx context.Context, clientID string, content models.EvaluationContent, personas []models.Persona) ([]models.PersonaEvaluation, error)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold float64) Option {
	return func(e *Evaluator) { e.threshold = threshold }
}

// WithPanel overrides DefaultPanel.
func WithPanel(personas []models.Persona) Option {
	return func(e *Evaluator) { e.personas = personas }
}

// Evaluator runs the focus group.
type Evaluator struct {
	caller    Caller
	personas  []models.Persona
	threshold float64
	logger    *zap.Logger
}

// NewEvaluator creates an evaluator over caller.
func NewEvaluator(caller Caller, logger *zap.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		caller:    caller,
		personas:  DefaultPanel(),
		threshold: DefaultThreshold,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the passing average.
func (e *Evaluator) Threshold() float64 {
	return e.threshold
}

// Evaluate invokes the panel once and aggregates the result. Any failure, including an
// unusable reply, fails the whole evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, clientID string, content models.EvaluationContent) (*models.FocusGroupResult, error) {
	evaluations, err := e.caller.Evaluate(ctx, clientID, content, e.personas)
	if err != nil {
		e.logger.Warn("Focus group call failed", zap.String("client_id", clientID), zap.Error(err))
		return nil, apperrors.External(Stage, err)
	}

	result, err := Aggregate(evaluations, e.threshold)
	if err != nil {
		e.logger.Warn("Discarding focus group reply", zap.String("client_id", clientID), zap.Error(err))
		return nil, apperrors.External(Stage, err)
	}

	e.logger.Info("Focus group evaluated",
		zap.String("client_id", clientID),
		zap.Int("personas", len(result.Evaluations)),
		zap.Float64("average_score", result.AverageScore),
		zap.Bool("passed", result.Passed),
	)
	return result, nil
}

// Aggregate computes the unweighted mean score and the pass flag. An empty panel has no
// mean and is an error, never a score of zero.
func Aggregate(evaluations []models.PersonaEvaluation, threshold float64) (*models.FocusGroupResult, error) {
	if len(evaluations) == 0 {
		return nil, fmt.Errorf("no persona evaluations returned")
	}

	sum := 0
	for _, ev := range evaluations {
		if ev.Score < 0 || ev.Score > 10 {
			return nil, fmt.Errorf("persona %q scored %d, outside 0..10", ev.PersonaName, ev.Score)
		}
		if !ev.Verdict.Valid() {
			return nil, fmt.Errorf("persona %q returned unknown verdict %q", ev.PersonaName, ev.Verdict)
		}
		sum += ev.Score
	}

	avg := float64(sum) / float64(len(evaluations))
	out := make([]models.PersonaEvaluation, len(evaluations))
	copy(out, evaluations)

	return &models.FocusGroupResult{
		AverageScore: avg,
		Passed:       avg >= threshold,
		Evaluations:  out,
	}, nil
}
