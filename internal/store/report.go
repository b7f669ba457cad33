package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/cloudhire/internal/model"
)

// SaveReport inserts or replaces the report of a submission.
func (s *Store) SaveReport(r model.Report) (int64, error) {
	assessment, err := json.Marshal(r.Assessment)
	if err != nil {
		return 0, err
	}
	var grading sql.NullString
	if r.Grading != nil {
		b, err := json.Marshal(r.Grading)
		if err != nil {
			return 0, err
		}
		grading = sql.NullString{String: string(b), Valid: true}
	}
	_, err = s.db.Exec(
		`INSERT INTO reports (submission_id, assessment, grading, html, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(submission_id) DO UPDATE SET assessment = excluded.assessment,
		   grading = excluded.grading, html = excluded.html, emailed_at = NULL, created_at = excluded.created_at`,
		r.SubmissionID, string(assessment), grading, r.HTML, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRow(`SELECT id FROM reports WHERE submission_id = ?`, r.SubmissionID).Scan(&id)
	return id, err
}

// GetReport returns the report of a submission, or nil if none exists yet.
func (s *Store) GetReport(submissionID int64) (*model.Report, error) {
	var r model.Report
	var assessment string
	var grading sql.NullString
	err := s.db.QueryRow(
		`SELECT id, submission_id, assessment, grading, html, emailed_at, created_at
		 FROM reports WHERE submission_id = ?`, submissionID,
	).Scan(&r.ID, &r.SubmissionID, &assessment, &grading, &r.HTML, &r.EmailedAt, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(assessment), &r.Assessment); err != nil {
		return nil, fmt.Errorf("report %d assessment: %w", r.ID, err)
	}
	if grading.Valid {
		r.Grading = &model.GradingResult{}
		if err := json.Unmarshal([]byte(grading.String), r.Grading); err != nil {
			return nil, fmt.Errorf("report %d grading: %w", r.ID, err)
		}
	}
	return &r, nil
}

// MarkReportEmailed records when the report was sent.
func (s *Store) MarkReportEmailed(submissionID int64, at time.Time) error {
	res, err := s.db.Exec(`UPDATE reports SET emailed_at = ? WHERE submission_id = ?`, at, submissionID)
	if err != nil {
		return err
	}
	return expectRow(res)
}
