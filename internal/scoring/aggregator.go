// Package scoring turns a submission's raw answers into completion,
// time-efficiency and overall-score metrics plus a hiring recommendation,
// and defines the Grader strategies that produce per-question grades.
//
// Everything in this file is pure: no I/O, no shared mutable state. An
// Aggregator may be used from any number of goroutines.
package scoring

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/cloudhire/internal/model"
)

// Efficiency scores per tier. Both inputs of the overall score lie in
// [0,100], so the overall score does too.
var efficiencyScores = map[model.TimeEfficiency]float64{
	model.EfficiencyExcellent: 90,
	model.EfficiencyGood:      70,
	model.EfficiencyAdequate:  55,
	model.EfficiencyRushed:    40,
}

// Aggregator computes OverallAssessments for a fixed configuration.
type Aggregator struct {
	cfg    Config
	tracer trace.Tracer
}

// New validates cfg and returns an Aggregator. Invalid totals or thresholds
// yield a *ConfigurationError.
func New(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{cfg: cfg, tracer: otel.Tracer("cloudhire/scoring")}, nil
}

// Config returns the aggregator's configuration.
func (a *Aggregator) Config() Config { return a.cfg }

// Assess scores answers against the configured totals. A negative elapsed
// time is rejected with a *ValidationError before anything is computed.
func (a *Aggregator) Assess(ctx context.Context, answers model.AnswerSet, elapsedSeconds int) (model.OverallAssessment, error) {
	_, span := a.tracer.Start(ctx, "Aggregator.Assess",
		trace.WithAttributes(attribute.Int("elapsed_seconds", elapsedSeconds)))
	defer span.End()

	if elapsedSeconds < 0 {
		err := &ValidationError{Field: "elapsedSeconds", Reason: "must not be negative"}
		span.RecordError(err)
		return model.OverallAssessment{}, err
	}

	sections := ComputeSectionMetrics(answers, a.cfg.Totals)
	rate := completionRate(sections)
	efficiency := a.cfg.Thresholds.Classify(elapsedSeconds)
	overall := ComputeOverallScore(rate, efficiency)

	out := model.OverallAssessment{
		Sections: sections,
		TotalCompleted: sections.MultipleChoice.Completed +
			sections.Concepts.Completed +
			sections.Calculations.Completed,
		ElapsedSeconds:      elapsedSeconds,
		CompletionRate:      rate,
		TimeEfficiency:      efficiency,
		TimeEfficiencyScore: EfficiencyScore(efficiency),
		OverallScore:        overall,
		Recommendation:      ClassifyRecommendation(rate, overall),
	}
	span.SetAttributes(
		attribute.Float64("completion_rate", rate),
		attribute.Float64("overall_score", overall),
		attribute.String("recommendation", string(out.Recommendation.Tier)),
	)
	return out, nil
}

// ComputeSectionMetrics counts completed items per section. A multiple-choice
// question counts once its key is present, whatever the value. Concept
// answers and calculation explanations count only when non-blank after
// trimming; the numeric half of a calculation never affects completion.
func ComputeSectionMetrics(answers model.AnswerSet, totals SectionTotals) model.SectionMetrics {
	mc := len(answers.MultipleChoice)

	concepts := 0
	for _, v := range answers.Concepts {
		if strings.TrimSpace(v) != "" {
			concepts++
		}
	}

	calcs := 0
	for k, v := range answers.Calculations {
		if k.Field == model.CalcExplanation && strings.TrimSpace(v) != "" {
			calcs++
		}
	}

	return model.SectionMetrics{
		MultipleChoice: sectionMetric(mc, totals.MultipleChoice),
		Concepts:       sectionMetric(concepts, totals.Concepts),
		Calculations:   sectionMetric(calcs, totals.Calculations),
	}
}

// sectionMetric caps completed at total, so answers to questions beyond a
// section's configured total never show as more than 100%.
func sectionMetric(completed, total int) model.SectionMetric {
	completed = min(completed, total)
	return model.SectionMetric{
		Completed:  completed,
		Total:      total,
		Percentage: percent(completed, total),
	}
}

// completionRate is the share of all expected items answered.
func completionRate(s model.SectionMetrics) float64 {
	done := s.MultipleChoice.Completed + s.Concepts.Completed + s.Calculations.Completed
	total := s.MultipleChoice.Total + s.Concepts.Total + s.Calculations.Total
	return percent(done, total)
}

func percent(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}

// ClassifyTimeEfficiency classifies elapsed seconds against the default
// 30-minute allotment.
func ClassifyTimeEfficiency(elapsedSeconds int) model.TimeEfficiency {
	return DefaultThresholds.Classify(elapsedSeconds)
}

// EfficiencyScore returns the numeric score of an efficiency tier.
func EfficiencyScore(e model.TimeEfficiency) float64 {
	return efficiencyScores[e]
}

// ComputeOverallScore averages the completion rate with the efficiency score.
func ComputeOverallScore(completionRate float64, efficiency model.TimeEfficiency) float64 {
	return (completionRate + EfficiencyScore(efficiency)) / 2
}

// ClassifyRecommendation picks the recommendation tier from the overall
// score. The completion rate argument is accepted for the narrative contract
// but the tier depends on overallScore alone.
func ClassifyRecommendation(_, overallScore float64) model.Recommendation {
	switch {
	case overallScore >= 75:
		return recommendations[model.TierStrong]
	case overallScore >= 50:
		return recommendations[model.TierModerate]
	default:
		return recommendations[model.TierReview]
	}
}

var recommendations = map[model.RecommendationTier]model.Recommendation{
	model.TierStrong: {
		Tier:      model.TierStrong,
		Summary:   "Demonstrates strong technical knowledge and problem-solving abilities. Highly recommended for next round.",
		NextSteps: "Schedule technical interview with senior engineer.",
		Color:     "green",
	},
	model.TierModerate: {
		Tier:      model.TierModerate,
		Summary:   "Shows potential but may need additional evaluation. Consider experience level and role requirements.",
		NextSteps: "Review answers in detail and consider phone screening.",
		Color:     "yellow",
	},
	model.TierReview: {
		Tier:      model.TierReview,
		Summary:   "Low completion rate or significant gaps. May not meet current technical requirements.",
		NextSteps: "Consider if candidate meets minimum qualifications for role.",
		Color:     "red",
	},
}
