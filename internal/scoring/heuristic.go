package scoring

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/pavelanni/cloudhire/internal/model"
)

const (
	numericTolerance    = 0.01
	similarityThreshold = 0.9
)

// HeuristicGrader grades without any external service. Multiple-choice
// answers are matched exactly after case folding, concept answers earn
// partial credit by length, and calculations get 4 points for a correct
// number and 3 for showing work.
type HeuristicGrader struct{}

// Name implements Grader.
func (HeuristicGrader) Name() string { return "heuristic" }

// Grade implements Grader. It never fails.
func (HeuristicGrader) Grade(_ context.Context, req GradeRequest) (*model.GradingResult, error) {
	res := &model.GradingResult{
		Grader:         "heuristic",
		MultipleChoice: map[string]model.MultipleChoiceGrade{},
		Concepts:       map[string]model.ConceptGrade{},
		Calculations:   map[string]model.CalculationGrade{},
	}
	for _, q := range req.Questions {
		switch q.Section {
		case model.SectionMultipleChoice:
			res.MultipleChoice[q.Key] = gradeChoice(q, req.Answers.MultipleChoice[q.Key])
		case model.SectionConcept:
			res.Concepts[q.Key] = gradeConcept(req.Answers.Concepts[q.Key])
		case model.SectionCalculation:
			res.Calculations[q.Key] = gradeCalculation(q,
				req.Answers.CalcAnswerFor(q.Key), req.Answers.CalcExplanationFor(q.Key))
		}
	}
	res.Summary = heuristicSummary(req.Assessment)
	return res, nil
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func gradeChoice(q model.Question, answer string) model.MultipleChoiceGrade {
	if answer != "" && fold(answer) == fold(q.CorrectAnswer) {
		return model.MultipleChoiceGrade{Score: 1, Feedback: "Correct", IsCorrect: true}
	}
	return model.MultipleChoiceGrade{
		Score:    0,
		Feedback: "Incorrect. Correct answer was: " + q.CorrectAnswer,
	}
}

func gradeConcept(answer string) model.ConceptGrade {
	words := len(strings.Fields(answer))
	g := model.ConceptGrade{Improvements: []string{}, Strengths: []string{}}
	switch {
	case words == 0:
		g.Feedback = "No response provided."
		g.Improvements = append(g.Improvements, "Answer the question")
	case words >= 50:
		g.Score = 8
		g.Feedback = "Response shows good detail."
		g.Strengths = append(g.Strengths, "Provided a detailed response")
	case words >= 20:
		g.Score = 6
		g.Feedback = "Response shows adequate detail."
		g.Strengths = append(g.Strengths, "Provided a reasonable response")
	default:
		g.Score = 3
		g.Feedback = "Response shows limited detail."
		g.Improvements = append(g.Improvements, "Could provide more detail in the response")
	}
	return g
}

func gradeCalculation(q model.Question, answer, explanation string) model.CalculationGrade {
	correct := answer != "" && answerMatches(answer, q.CorrectAnswer)
	shown := strings.TrimSpace(explanation) != ""
	approach := strings.Contains(explanation, "=")

	g := model.CalculationGrade{
		Feedback:             "Basic automated grading - AI grading recommended for detailed analysis",
		CorrectApproach:      correct || approach,
		WorkShown:            shown,
		FinalAnswerCorrect:   correct,
		PartialCreditAwarded: shown && !correct,
		DetailedFeedback: model.CalculationFeedback{
			Approach:     "Approach not clear",
			Calculation:  "Incorrect or missing numerical answer",
			Presentation: "No explanation provided",
		},
	}
	if correct {
		g.NumericalScore = 4
		g.DetailedFeedback.Calculation = "Correct final answer"
	}
	if shown {
		g.ExplanationScore = 3
		g.DetailedFeedback.Presentation = "Explanation provided"
	}
	if approach {
		g.DetailedFeedback.Approach = "Some approach shown"
	}
	g.Score = g.NumericalScore + g.ExplanationScore
	return g
}

// answerMatches accepts numbers within a relative tolerance and otherwise
// near-identical text, so "42 kN" and "42kn" agree.
func answerMatches(got, want string) bool {
	if gv, ok := parseNumber(got); ok {
		if wv, ok := parseNumber(want); ok {
			if wv == 0 {
				return math.Abs(gv) < 1e-9
			}
			return math.Abs(gv-wv)/math.Abs(wv) <= numericTolerance
		}
	}
	a, b := fold(got), fold(want)
	if a == b {
		return true
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return false
	}
	sim := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
	return sim >= similarityThreshold
}

// parseNumber reads a leading number, ignoring thousands separators and any
// trailing unit.
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' ||
			((c == '-' || c == '+') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E')) {
			end++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var hiringByTier = map[model.RecommendationTier]model.HiringRecommendation{
	model.TierStrong:   model.Hire,
	model.TierModerate: model.HireMaybe,
	model.TierReview:   model.HireNo,
}

// HiringFor maps a recommendation tier onto the grader vocabulary. Only an
// LLM may say "Strong Hire".
func HiringFor(t model.RecommendationTier) model.HiringRecommendation {
	if h, ok := hiringByTier[t]; ok {
		return h
	}
	return model.HireMaybe
}

func heuristicSummary(a model.OverallAssessment) model.GradingSummary {
	return model.GradingSummary{
		TechnicalCapability:  "Basic assessment completed - detailed AI analysis unavailable",
		ProblemSolvingSkills: "Requires manual evaluation for calculation methodology",
		CommunicationSkills:  "Requires manual evaluation",
		RecommendedLevel:     "Junior",
		OverallScore:         a.OverallScore,
		KeyStrengths:         []string{"Completed assessment", "Provided responses"},
		AreasForImprovement:  []string{"Detailed evaluation needed"},
		HiringRecommendation: HiringFor(a.Recommendation.Tier),
		DetailedAnalysis: "This assessment requires manual review as AI grading was unavailable. " +
			"Detailed analysis of concept and calculation responses, including partial credit " +
			"evaluation, is needed for a comprehensive assessment.",
	}
}
