package model

import "time"

// SectionMetric is the completion of one section.
type SectionMetric struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// SectionMetrics groups the scored sections.
type SectionMetrics struct {
	MultipleChoice SectionMetric `json:"multipleChoice"`
	Concepts       SectionMetric `json:"concepts"`
	Calculations   SectionMetric `json:"calculations"`
}

// TimeEfficiency is the categorical judgment of elapsed time.
type TimeEfficiency string

const (
	EfficiencyExcellent TimeEfficiency = "Excellent"
	EfficiencyGood      TimeEfficiency = "Good"
	EfficiencyAdequate  TimeEfficiency = "Adequate"
	EfficiencyRushed    TimeEfficiency = "Rushed"
)

// RecommendationTier is the categorical hiring recommendation.
type RecommendationTier string

const (
	TierStrong   RecommendationTier = "Strong Candidate"
	TierModerate RecommendationTier = "Moderate Candidate"
	TierReview   RecommendationTier = "Needs Review"
)

// Recommendation is a tier with its fixed narrative and presentation color.
type Recommendation struct {
	Tier      RecommendationTier `json:"level"`
	Summary   string             `json:"summary"`
	NextSteps string             `json:"nextSteps"`
	Color     string             `json:"color"`
}

// OverallAssessment is the deterministic result of scoring a submission.
type OverallAssessment struct {
	Sections            SectionMetrics `json:"sections"`
	TotalCompleted      int            `json:"totalCompleted"`
	ElapsedSeconds      int            `json:"elapsedSeconds"`
	CompletionRate      float64        `json:"completionRate"`
	TimeEfficiency      TimeEfficiency `json:"timeEfficiency"`
	TimeEfficiencyScore float64        `json:"timeEfficiencyScore"`
	OverallScore        float64        `json:"overallScore"`
	Recommendation      Recommendation `json:"recommendation"`
}

// HiringRecommendation is the grader's verdict vocabulary.
type HiringRecommendation string

const (
	HireStrong HiringRecommendation = "Strong Hire"
	Hire       HiringRecommendation = "Hire"
	HireMaybe  HiringRecommendation = "Maybe"
	HireNo     HiringRecommendation = "No Hire"
)

// MultipleChoiceGrade is the grade for one multiple-choice question.
type MultipleChoiceGrade struct {
	Score     float64 `json:"score"`
	Feedback  string  `json:"feedback"`
	IsCorrect bool    `json:"isCorrect"`
}

// ConceptGrade is the grade for one concept question (0-10).
type ConceptGrade struct {
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// CalculationFeedback breaks down the grader's comments on a calculation.
type CalculationFeedback struct {
	Approach     string `json:"approach"`
	Calculation  string `json:"calculation"`
	Presentation string `json:"presentation"`
}

// CalculationGrade is the grade for one calculation question (0-10).
type CalculationGrade struct {
	Score                float64             `json:"score"`
	Feedback             string              `json:"feedback"`
	NumericalScore       float64             `json:"numericalScore"`
	ExplanationScore     float64             `json:"explanationScore"`
	CorrectApproach      bool                `json:"correctApproach"`
	WorkShown            bool                `json:"workShown"`
	FinalAnswerCorrect   bool                `json:"finalAnswerCorrect"`
	PartialCreditAwarded bool                `json:"partialCreditAwarded"`
	DetailedFeedback     CalculationFeedback `json:"detailedFeedback"`
}

// GradingSummary is the grader's overall narrative.
type GradingSummary struct {
	TechnicalCapability  string               `json:"technicalCapability"`
	ProblemSolvingSkills string               `json:"problemSolvingSkills"`
	CommunicationSkills  string               `json:"communicationSkills"`
	RecommendedLevel     string               `json:"recommendedLevel"`
	OverallScore         float64              `json:"overallScore"`
	KeyStrengths         []string             `json:"keyStrengths"`
	AreasForImprovement  []string             `json:"areasForImprovement"`
	HiringRecommendation HiringRecommendation `json:"hiringRecommendation"`
	DetailedAnalysis     string               `json:"detailedAnalysis"`
}

// GradingResult is the per-question grading produced by a grader strategy.
type GradingResult struct {
	Grader         string                         `json:"grader"`
	MultipleChoice map[string]MultipleChoiceGrade `json:"multipleChoice"`
	Concepts       map[string]ConceptGrade        `json:"concepts"`
	Calculations   map[string]CalculationGrade    `json:"calculations"`
	Summary        GradingSummary                 `json:"overallSummary"`
}

// Report is the persisted outcome of processing a submission.
type Report struct {
	ID           int64             `json:"id"`
	SubmissionID int64             `json:"submission_id"`
	Assessment   OverallAssessment `json:"assessment"`
	Grading      *GradingResult    `json:"grading,omitempty"`
	HTML         string            `json:"-"`
	EmailedAt    *time.Time        `json:"emailed_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
