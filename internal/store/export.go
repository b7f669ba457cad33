package store

import (
	"fmt"
	"slices"

	"github.com/pavelanni/cloudhire/internal/model"
)

// ExportAll builds export-ready results for every submission, oldest first.
func (s *Store) ExportAll() ([]model.CandidateResult, error) {
	rows, err := s.ListSubmissions()
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	slices.Reverse(rows)

	results := make([]model.CandidateResult, 0, len(rows))
	for _, row := range rows {
		sub, err := s.GetSubmission(row.Submission.ID)
		if err != nil {
			return nil, fmt.Errorf("get submission %d: %w", row.Submission.ID, err)
		}
		rep, err := s.GetReport(sub.ID)
		if err != nil {
			return nil, fmt.Errorf("get report %d: %w", sub.ID, err)
		}

		res := model.CandidateResult{
			SubmissionID:   sub.PublicID,
			Name:           row.CandidateName,
			Email:          row.CandidateEmail,
			Position:       row.Position,
			Status:         sub.Status,
			StartedAt:      sub.StartedAt,
			SubmittedAt:    sub.SubmittedAt,
			ElapsedSeconds: sub.ElapsedSeconds,
			Answers:        sub.Answers,
		}
		if rep != nil {
			res.Assessment = &rep.Assessment
			res.Grading = rep.Grading
		}
		results = append(results, res)
	}
	return results, nil
}
