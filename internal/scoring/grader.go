package scoring

import (
	"context"
	"fmt"

	"github.com/pavelanni/cloudhire/internal/model"
)

// GradeRequest is everything a grader may look at.
type GradeRequest struct {
	Candidate  model.Candidate
	Questions  []model.Question
	Answers    model.AnswerSet
	Assessment model.OverallAssessment
	ResumeText string
}

// Grader produces per-question grades for a submission.
type Grader interface {
	Name() string
	Grade(ctx context.Context, req GradeRequest) (*model.GradingResult, error)
}

type fallbackGrader struct {
	primary    Grader
	fallback   Grader
	onFallback func(error)
}

// WithFallback returns a Grader that tries primary and, if it fails, grades
// with fallback instead. onFallback, when non-nil, sees the primary's error.
// A nil primary means fallback is used directly.
func WithFallback(primary, fallback Grader, onFallback func(error)) Grader {
	if primary == nil {
		return fallback
	}
	return &fallbackGrader{primary: primary, fallback: fallback, onFallback: onFallback}
}

func (g *fallbackGrader) Name() string {
	return g.primary.Name() + "+" + g.fallback.Name()
}

func (g *fallbackGrader) Grade(ctx context.Context, req GradeRequest) (*model.GradingResult, error) {
	res, err := g.primary.Grade(ctx, req)
	if err == nil {
		return res, nil
	}
	if g.onFallback != nil {
		g.onFallback(err)
	}
	res, ferr := g.fallback.Grade(ctx, req)
	if ferr != nil {
		return nil, fmt.Errorf("fallback grader after %v: %w", err, ferr)
	}
	return res, nil
}
