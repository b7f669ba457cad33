package scoring

import (
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/cloudhire/internal/model"
)

var validate = validator.New()

// SectionTotals is the expected item count per scored section.
type SectionTotals struct {
	MultipleChoice int `json:"multipleChoice" mapstructure:"multiple-choice" validate:"gt=0"`
	Concepts       int `json:"concepts" mapstructure:"concepts" validate:"gt=0"`
	Calculations   int `json:"calculations" mapstructure:"calculations" validate:"gt=0"`
}

// Sum returns the total expected items across sections.
func (t SectionTotals) Sum() int {
	return t.MultipleChoice + t.Concepts + t.Calculations
}

// EfficiencyThresholds are inclusive upper bounds, in seconds, for each tier.
// Anything above Adequate is Rushed.
type EfficiencyThresholds struct {
	Excellent int `json:"excellent" validate:"gt=0"`
	Good      int `json:"good" validate:"gtfield=Excellent"`
	Adequate  int `json:"adequate" validate:"gtfield=Good"`
}

// Classify maps elapsed seconds onto a tier. Boundary values belong to the
// better tier.
func (t EfficiencyThresholds) Classify(elapsedSeconds int) model.TimeEfficiency {
	switch {
	case elapsedSeconds <= t.Excellent:
		return model.EfficiencyExcellent
	case elapsedSeconds <= t.Good:
		return model.EfficiencyGood
	case elapsedSeconds <= t.Adequate:
		return model.EfficiencyAdequate
	default:
		return model.EfficiencyRushed
	}
}

// Config configures an Aggregator.
type Config struct {
	Totals     SectionTotals
	Thresholds EfficiencyThresholds
}

// DefaultTotals matches the standard assessment: two multiple-choice
// questions, two concept questions and one calculation.
var DefaultTotals = SectionTotals{MultipleChoice: 2, Concepts: 2, Calculations: 1}

// DefaultThresholds is measured against a 30-minute allotment.
var DefaultThresholds = EfficiencyThresholds{Excellent: 1200, Good: 1500, Adequate: 1800}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{Totals: DefaultTotals, Thresholds: DefaultThresholds}
}

// Validate checks cfg and wraps any problem in a ConfigurationError.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &ConfigurationError{Err: err}
	}
	return nil
}

// TotalsFromQuestions counts the scored questions per section. Sections with
// no questions keep the value from fallback so totals stay positive.
func TotalsFromQuestions(questions []model.Question, fallback SectionTotals) SectionTotals {
	var t SectionTotals
	for _, q := range questions {
		switch q.Section {
		case model.SectionMultipleChoice:
			t.MultipleChoice++
		case model.SectionConcept:
			t.Concepts++
		case model.SectionCalculation:
			t.Calculations++
		}
	}
	if t.MultipleChoice == 0 {
		t.MultipleChoice = fallback.MultipleChoice
	}
	if t.Concepts == 0 {
		t.Concepts = fallback.Concepts
	}
	if t.Calculations == 0 {
		t.Calculations = fallback.Calculations
	}
	return t
}
