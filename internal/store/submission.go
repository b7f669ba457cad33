package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/cloudhire/internal/model"
)

const submissionColumns = `id, public_id, candidate_id, status, answers, started_at, submitted_at, elapsed_seconds`

func scanSubmission(r rowScanner) (*model.Submission, error) {
	var sub model.Submission
	var answers string
	err := r.Scan(&sub.ID, &sub.PublicID, &sub.CandidateID, &sub.Status, &answers,
		&sub.StartedAt, &sub.SubmittedAt, &sub.ElapsedSeconds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub.Answers = model.NewAnswerSet()
	if err := json.Unmarshal([]byte(answers), &sub.Answers); err != nil {
		return nil, fmt.Errorf("submission %d answers: %w", sub.ID, err)
	}
	return &sub, nil
}

// StartSubmission returns the candidate's latest submission, creating an
// in-progress one with the clock started now if there is none.
func (s *Store) StartSubmission(candidateID int64) (*model.Submission, error) {
	sub, err := s.LatestSubmission(candidateID)
	if err != nil || sub != nil {
		return sub, err
	}
	answers, err := json.Marshal(model.NewAnswerSet())
	if err != nil {
		return nil, err
	}
	res, err := s.db.Exec(
		`INSERT INTO submissions (public_id, candidate_id, status, answers, started_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), candidateID, model.StatusInProgress, string(answers), time.Now(),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetSubmission(id)
}

// LatestSubmission returns the most recent submission of a candidate.
func (s *Store) LatestSubmission(candidateID int64) (*model.Submission, error) {
	return scanSubmission(s.db.QueryRow(
		`SELECT `+submissionColumns+` FROM submissions WHERE candidate_id = ? ORDER BY id DESC LIMIT 1`, candidateID))
}

// GetSubmission returns a submission by ID.
func (s *Store) GetSubmission(id int64) (*model.Submission, error) {
	return scanSubmission(s.db.QueryRow(`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
}

// GetSubmissionByPublicID returns a submission by its public UUID.
func (s *Store) GetSubmissionByPublicID(publicID string) (*model.Submission, error) {
	return scanSubmission(s.db.QueryRow(`SELECT `+submissionColumns+` FROM submissions WHERE public_id = ?`, publicID))
}

// SaveAnswers replaces the answers of an in-progress submission.
func (s *Store) SaveAnswers(id int64, answers model.AnswerSet) error {
	b, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE submissions SET answers = ? WHERE id = ? AND status = ?`,
		string(b), id, model.StatusInProgress,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// MarkSubmitted closes an in-progress submission at the given time and
// records the elapsed seconds since it started.
func (s *Store) MarkSubmitted(id int64, at time.Time) (*model.Submission, error) {
	sub, err := s.GetSubmission(id)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status != model.StatusInProgress {
		return nil, ErrNotFound
	}
	elapsed := max(int(at.Sub(sub.StartedAt).Seconds()), 0)
	res, err := s.db.Exec(
		`UPDATE submissions SET status = ?, submitted_at = ?, elapsed_seconds = ? WHERE id = ? AND status = ?`,
		model.StatusSubmitted, at, elapsed, id, model.StatusInProgress,
	)
	if err != nil {
		return nil, err
	}
	if err := expectRow(res); err != nil {
		return nil, err
	}
	return s.GetSubmission(id)
}

// SetSubmissionStatus updates the status of a submission.
func (s *Store) SetSubmissionStatus(id int64, status model.SubmissionStatus) error {
	res, err := s.db.Exec(`UPDATE submissions SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// ClaimSubmission moves a submission to processing if its status is one of
// from. It reports false when another caller got there first or the
// submission is in some other state.
func (s *Store) ClaimSubmission(id int64, from ...model.SubmissionStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	query := `UPDATE submissions SET status = ? WHERE id = ? AND status IN (?` + strings.Repeat(", ?", len(from)-1) + `)`
	args := []any{model.StatusProcessing, id}
	for _, st := range from {
		args = append(args, st)
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListSubmissions returns dashboard rows, newest first.
func (s *Store) ListSubmissions() ([]model.SubmissionRow, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.public_id, s.candidate_id, s.status, s.started_at, s.submitted_at, s.elapsed_seconds,
		        c.first_name, c.last_name, c.email, c.position, r.assessment
		 FROM submissions s
		 JOIN candidates c ON c.id = s.candidate_id
		 LEFT JOIN reports r ON r.submission_id = s.id
		 ORDER BY s.id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SubmissionRow
	for rows.Next() {
		var row model.SubmissionRow
		var first, last string
		var assessment sql.NullString
		sub := &row.Submission
		if err := rows.Scan(&sub.ID, &sub.PublicID, &sub.CandidateID, &sub.Status, &sub.StartedAt,
			&sub.SubmittedAt, &sub.ElapsedSeconds, &first, &last, &row.CandidateEmail, &row.Position, &assessment); err != nil {
			return nil, err
		}
		row.CandidateName = model.Candidate{FirstName: first, LastName: last}.FullName()
		if assessment.Valid {
			var a model.OverallAssessment
			if err := json.Unmarshal([]byte(assessment.String), &a); err != nil {
				return nil, fmt.Errorf("submission %d assessment: %w", sub.ID, err)
			}
			row.OverallScore = &a.OverallScore
			row.Tier = a.Recommendation.Tier
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListSubmittedIDs returns submissions waiting for a report.
func (s *Store) ListSubmittedIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM submissions WHERE status = ? ORDER BY id`, model.StatusSubmitted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSubmissionView builds a full view of a submission with candidate,
// questions, files and report.
func (s *Store) GetSubmissionView(id int64) (*model.SubmissionView, error) {
	sub, err := s.GetSubmission(id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}
	cand, err := s.GetCandidate(sub.CandidateID)
	if err != nil {
		return nil, err
	}
	if cand == nil {
		return nil, fmt.Errorf("submission %d: candidate %d missing", id, sub.CandidateID)
	}
	questions, err := s.ListQuestions()
	if err != nil {
		return nil, err
	}
	files, err := s.ListFiles(sub.CandidateID)
	if err != nil {
		return nil, err
	}
	rep, err := s.GetReport(id)
	if err != nil {
		return nil, err
	}
	return &model.SubmissionView{
		Submission: *sub,
		Candidate:  *cand,
		Questions:  questions,
		Files:      files,
		Report:     rep,
	}, nil
}
