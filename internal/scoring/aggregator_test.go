package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/cloudhire/internal/model"
)

func newAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a, err := New(DefaultConfig())
	require.NoError(t, err)
	return a
}

func TestClassifyTimeEfficiency(t *testing.T) {
	tests := []struct {
		elapsed int
		want    model.TimeEfficiency
	}{
		{0, model.EfficiencyExcellent},
		{900, model.EfficiencyExcellent},
		{1200, model.EfficiencyExcellent},
		{1201, model.EfficiencyGood},
		{1500, model.EfficiencyGood},
		{1501, model.EfficiencyAdequate},
		{1800, model.EfficiencyAdequate},
		{1801, model.EfficiencyRushed},
		{7200, model.EfficiencyRushed},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.elapsed), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTimeEfficiency(tt.elapsed))
		})
	}
}

func TestEfficiencyScore(t *testing.T) {
	assert.Equal(t, 90.0, EfficiencyScore(model.EfficiencyExcellent))
	assert.Equal(t, 70.0, EfficiencyScore(model.EfficiencyGood))
	assert.Equal(t, 55.0, EfficiencyScore(model.EfficiencyAdequate))
	assert.Equal(t, 40.0, EfficiencyScore(model.EfficiencyRushed))
}

func TestClassifyRecommendation(t *testing.T) {
	tests := []struct {
		overall float64
		want    model.RecommendationTier
		color   string
	}{
		{100, model.TierStrong, "green"},
		{75, model.TierStrong, "green"},
		{74.9, model.TierModerate, "yellow"},
		{50, model.TierModerate, "yellow"},
		{49.99, model.TierReview, "red"},
		{0, model.TierReview, "red"},
	}
	for _, tt := range tests {
		rec := ClassifyRecommendation(0, tt.overall)
		assert.Equal(t, tt.want, rec.Tier, "overall %v", tt.overall)
		assert.Equal(t, tt.color, rec.Color)
		assert.NotEmpty(t, rec.Summary)
		assert.NotEmpty(t, rec.NextSteps)
	}
}

func TestComputeSectionMetrics(t *testing.T) {
	answers := model.NewAnswerSet()
	answers.MultipleChoice["mc-q1"] = ""
	answers.Concepts["c1"] = "  "
	answers.Concepts["c2"] = "Shear flow"
	answers.SetCalc("1", model.CalcAnswer, "42")

	m := ComputeSectionMetrics(answers, DefaultTotals)
	assert.Equal(t, model.SectionMetric{Completed: 1, Total: 2, Percentage: 50}, m.MultipleChoice)
	assert.Equal(t, model.SectionMetric{Completed: 1, Total: 2, Percentage: 50}, m.Concepts)
	assert.Equal(t, model.SectionMetric{Completed: 0, Total: 1, Percentage: 0}, m.Calculations)
}

func TestComputeSectionMetricsCapsAtTotal(t *testing.T) {
	answers := model.NewAnswerSet()
	for _, id := range []string{"mc1", "mc2", "mc3", "mc4", "mc5"} {
		answers.MultipleChoice[id] = "a"
	}

	m := ComputeSectionMetrics(answers, DefaultTotals)
	assert.Equal(t, model.SectionMetric{Completed: 2, Total: 2, Percentage: 100}, m.MultipleChoice)

	got, err := newAggregator(t).Assess(context.Background(), answers, 600)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalCompleted)
	assert.InDelta(t, 40.0, got.CompletionRate, 0.001)
}

func TestAssessScenarios(t *testing.T) {
	agg := newAggregator(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		answers    string
		elapsed    int
		rate       float64
		efficiency model.TimeEfficiency
		overall    float64
		tier       model.RecommendationTier
	}{
		{
			name:       "partial and fast",
			answers:    `{"multipleChoice":{"mc-q1":"Carbon Fiber"},"concepts":{},"calculations":{"1-explanation":"work"}}`,
			elapsed:    900,
			rate:       40,
			efficiency: model.EfficiencyExcellent,
			overall:    65,
			tier:       model.TierModerate,
		},
		{
			name: "everything answered",
			answers: `{"multipleChoice":{"mc-q1":"A","mc-q2":"B"},
				"concepts":{"c1":"buckling","c2":"fatigue"},
				"calculations":{"1-answer":"12.5","1-explanation":"F = m*a"}}`,
			elapsed:    1000,
			rate:       100,
			efficiency: model.EfficiencyExcellent,
			overall:    95,
			tier:       model.TierStrong,
		},
		{
			name:       "nothing answered and late",
			answers:    `{}`,
			elapsed:    1900,
			rate:       0,
			efficiency: model.EfficiencyRushed,
			overall:    20,
			tier:       model.TierReview,
		},
		{
			name:       "whitespace explanation does not count",
			answers:    `{"calculations":{"1-answer":"12.5","1-explanation":"   "}}`,
			elapsed:    100,
			rate:       0,
			efficiency: model.EfficiencyExcellent,
			overall:    45,
			tier:       model.TierReview,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers, err := ParseAnswerSet([]byte(tt.answers))
			require.NoError(t, err)

			got, err := agg.Assess(ctx, answers, tt.elapsed)
			require.NoError(t, err)
			assert.InDelta(t, tt.rate, got.CompletionRate, 1e-9)
			assert.Equal(t, tt.efficiency, got.TimeEfficiency)
			assert.InDelta(t, tt.overall, got.OverallScore, 1e-9)
			assert.Equal(t, tt.tier, got.Recommendation.Tier)
			assert.Equal(t, tt.elapsed, got.ElapsedSeconds)
		})
	}
}

func TestAssessScenarioOneSections(t *testing.T) {
	agg := newAggregator(t)
	answers := MustParseAnswerSet(`{"multipleChoice":{"mc-q1":"Carbon Fiber"},"calculations":{"1-explanation":"work"}}`)

	got, err := agg.Assess(context.Background(), answers, 900)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.Sections.MultipleChoice.Percentage)
	assert.Equal(t, 0.0, got.Sections.Concepts.Percentage)
	assert.Equal(t, 100.0, got.Sections.Calculations.Percentage)
	assert.Equal(t, 2, got.TotalCompleted)
	assert.Equal(t, 90.0, got.TimeEfficiencyScore)
}

func TestAssessRejectsNegativeElapsed(t *testing.T) {
	agg := newAggregator(t)
	got, err := agg.Assess(context.Background(), model.NewAnswerSet(), -1)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "elapsedSeconds", verr.Field)
	assert.Equal(t, model.OverallAssessment{}, got)
}

func TestAssessBounds(t *testing.T) {
	agg := newAggregator(t)
	ctx := context.Background()

	// More answers than the configured totals must not push metrics past 100.
	answers := model.NewAnswerSet()
	for i := range 10 {
		answers.MultipleChoice[fmt.Sprintf("mc-%d", i)] = "x"
		answers.Concepts[fmt.Sprintf("c-%d", i)] = "text"
		answers.SetCalc(fmt.Sprint(i), model.CalcExplanation, "shown")
	}
	for _, elapsed := range []int{0, 1200, 1500, 1800, 100000} {
		for _, a := range []model.AnswerSet{answers, model.NewAnswerSet(), {}} {
			got, err := agg.Assess(ctx, a, elapsed)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got.CompletionRate, 0.0)
			assert.LessOrEqual(t, got.CompletionRate, 100.0)
			assert.GreaterOrEqual(t, got.OverallScore, 0.0)
			assert.LessOrEqual(t, got.OverallScore, 100.0)
			for _, s := range []model.SectionMetric{got.Sections.MultipleChoice, got.Sections.Concepts, got.Sections.Calculations} {
				assert.LessOrEqual(t, s.Percentage, 100.0)
			}
		}
	}
}

func TestAssessIdempotent(t *testing.T) {
	agg := newAggregator(t)
	answers := MustParseAnswerSet(`{"multipleChoice":{"mc-q1":"A"},"concepts":{"c1":"answer"},"calculations":{"1-explanation":"x = 2"}}`)

	first, err := agg.Assess(context.Background(), answers, 1400)
	require.NoError(t, err)
	second, err := agg.Assess(context.Background(), answers, 1400)
	require.NoError(t, err)

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))

	// Re-deriving the labels from the outputs gives the same answer.
	assert.Equal(t, first.TimeEfficiency, ClassifyTimeEfficiency(first.ElapsedSeconds))
	assert.Equal(t, first.OverallScore, ComputeOverallScore(first.CompletionRate, first.TimeEfficiency))
	assert.Equal(t, first.Recommendation, ClassifyRecommendation(first.CompletionRate, first.OverallScore))
}

func TestAssessConcurrent(t *testing.T) {
	agg := newAggregator(t)
	answers := MustParseAnswerSet(`{"multipleChoice":{"mc-q1":"A","mc-q2":"B"}}`)
	want, err := agg.Assess(context.Background(), answers, 1300)
	require.NoError(t, err)

	results := make(chan model.OverallAssessment, 16)
	for range 16 {
		go func() {
			got, _ := agg.Assess(context.Background(), answers, 1300)
			results <- got
		}()
	}
	for range 16 {
		assert.Equal(t, want, <-results)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero totals", Config{Thresholds: DefaultThresholds}},
		{"negative total", Config{Totals: SectionTotals{MultipleChoice: -1, Concepts: 2, Calculations: 1}, Thresholds: DefaultThresholds}},
		{"missing thresholds", Config{Totals: DefaultTotals}},
		{"unordered thresholds", Config{Totals: DefaultTotals, Thresholds: EfficiencyThresholds{Excellent: 1500, Good: 1200, Adequate: 1800}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			var cerr *ConfigurationError
			assert.True(t, errors.As(err, &cerr), "got %v", err)
		})
	}
}

func TestCustomTotals(t *testing.T) {
	agg, err := New(Config{
		Totals:     SectionTotals{MultipleChoice: 4, Concepts: 4, Calculations: 2},
		Thresholds: DefaultThresholds,
	})
	require.NoError(t, err)

	answers := MustParseAnswerSet(`{"multipleChoice":{"a":"1","b":"2"},"concepts":{"c":"x"},"calculations":{"q-explanation":"y"}}`)
	got, err := agg.Assess(context.Background(), answers, 0)
	require.NoError(t, err)
	assert.InDelta(t, 40, got.CompletionRate, 1e-9)
	assert.Equal(t, 50.0, got.Sections.Calculations.Percentage)
}

func TestTotalsFromQuestions(t *testing.T) {
	qs := []model.Question{
		{Section: model.SectionMultipleChoice},
		{Section: model.SectionMultipleChoice},
		{Section: model.SectionMultipleChoice},
		{Section: model.SectionConcept},
		{Section: model.SectionBehavioral},
	}
	got := TotalsFromQuestions(qs, DefaultTotals)
	assert.Equal(t, SectionTotals{MultipleChoice: 3, Concepts: 1, Calculations: 1}, got)
	assert.Equal(t, 5, got.Sum())
}
