package model

import "time"

// SubmissionExport is the top-level JSON structure for result export.
type SubmissionExport struct {
	ExportedAt time.Time         `json:"exported_at"`
	Count      int               `json:"count"`
	Results    []CandidateResult `json:"results"`
}

// CandidateResult holds one candidate's submission for export.
type CandidateResult struct {
	SubmissionID   string             `json:"submission_id"`
	Name           string             `json:"name"`
	Email          string             `json:"email"`
	Position       string             `json:"position"`
	Status         SubmissionStatus   `json:"status"`
	StartedAt      time.Time          `json:"started_at"`
	SubmittedAt    *time.Time         `json:"submitted_at,omitempty"`
	ElapsedSeconds int                `json:"elapsed_seconds"`
	Answers        AnswerSet          `json:"answers"`
	Assessment     *OverallAssessment `json:"assessment,omitempty"`
	Grading        *GradingResult     `json:"grading,omitempty"`
}
