package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/cloudhire/internal/llm/prompts"
	"github.com/pavelanni/cloudhire/internal/model"
	"github.com/pavelanni/cloudhire/internal/scoring"
)

const graderSystemPrompt = "You are an expert engineering assessment evaluator. " +
	"You grade fairly, award partial credit for sound reasoning and respond only with a single JSON object."

// ErrMalformedResponse means the model replied with something that is not a
// grading object.
var ErrMalformedResponse = errors.New("malformed grading response")

// Grader grades a whole submission in one completion.
type Grader struct {
	completer Completer
	variant   prompts.PromptVariant
}

// NewGrader returns a Grader using the given prompt variant.
func NewGrader(c Completer, variant prompts.PromptVariant) (*Grader, error) {
	if err := prompts.Load(prompts.FS); err != nil {
		return nil, err
	}
	if !prompts.IsValidVariant(string(variant)) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	return &Grader{completer: c, variant: variant}, nil
}

// Name implements scoring.Grader.
func (g *Grader) Name() string { return "llm:" + g.completer.Model() }

// Grade implements scoring.Grader.
func (g *Grader) Grade(ctx context.Context, req scoring.GradeRequest) (*model.GradingResult, error) {
	data := prompts.NewGradeData(req.Candidate, req.Questions, req.Answers, req.Assessment, req.ResumeText)
	prompt, err := prompts.BuildGradePrompt(g.variant, data)
	if err != nil {
		return nil, fmt.Errorf("build grading prompt: %w", err)
	}

	raw, err := g.completer.Complete(ctx, graderSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	res, err := ParseGrading(raw)
	if err != nil {
		return nil, err
	}
	warnMissing(res, req.Questions)
	normalize(res, req.Assessment)
	res.Grader = g.Name()
	return res, nil
}

// ParseGrading decodes a model reply, tolerating markdown code fences.
func ParseGrading(raw string) (*model.GradingResult, error) {
	var envelope map[string]json.RawMessage
	cleaned := CleanJSON(raw)
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for _, key := range []string{"multipleChoice", "concepts", "calculations", "overallSummary"} {
		if _, ok := envelope[key]; !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedResponse, key)
		}
	}
	var res model.GradingResult
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &res, nil
}

// CleanJSON strips a surrounding ```json fence and any prose around the
// outermost JSON object.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

func warnMissing(res *model.GradingResult, questions []model.Question) {
	for _, q := range questions {
		var ok bool
		switch q.Section {
		case model.SectionMultipleChoice:
			_, ok = res.MultipleChoice[q.Key]
		case model.SectionConcept:
			_, ok = res.Concepts[q.Key]
		case model.SectionCalculation:
			_, ok = res.Calculations[q.Key]
		default:
			continue
		}
		if !ok {
			slog.Warn("grading missing for question", "key", q.Key, "section", q.Section)
		}
	}
}

var hiringRecommendations = map[model.HiringRecommendation]bool{
	model.HireStrong: true, model.Hire: true, model.HireMaybe: true, model.HireNo: true,
}

// normalize clamps scores to their documented ranges and fills in a hiring
// recommendation the model left out or invented.
func normalize(res *model.GradingResult, a model.OverallAssessment) {
	if res.MultipleChoice == nil {
		res.MultipleChoice = map[string]model.MultipleChoiceGrade{}
	}
	if res.Concepts == nil {
		res.Concepts = map[string]model.ConceptGrade{}
	}
	if res.Calculations == nil {
		res.Calculations = map[string]model.CalculationGrade{}
	}
	for k, g := range res.MultipleChoice {
		g.Score = clamp(g.Score, 0, 1)
		res.MultipleChoice[k] = g
	}
	for k, g := range res.Concepts {
		g.Score = clamp(g.Score, 0, 10)
		res.Concepts[k] = g
	}
	for k, g := range res.Calculations {
		g.Score = clamp(g.Score, 0, 10)
		g.NumericalScore = clamp(g.NumericalScore, 0, 4)
		g.ExplanationScore = clamp(g.ExplanationScore, 0, 6)
		res.Calculations[k] = g
	}
	res.Summary.OverallScore = clamp(res.Summary.OverallScore, 0, 100)
	if !hiringRecommendations[res.Summary.HiringRecommendation] {
		res.Summary.HiringRecommendation = scoring.HiringFor(a.Recommendation.Tier)
	}
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
