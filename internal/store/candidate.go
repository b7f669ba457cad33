package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/pavelanni/cloudhire/internal/model"
)

const candidateColumns = `id, user_id, first_name, last_name, email, phone, position, experience, education, motivation, linkedin, created_at`

func scanCandidate(r rowScanner) (*model.Candidate, error) {
	var c model.Candidate
	err := r.Scan(&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Position,
		&c.Experience, &c.Education, &c.Motivation, &c.LinkedIn, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCandidate inserts or updates the bio of the candidate owned by
// c.UserID and returns its ID.
func (s *Store) SaveCandidate(c model.Candidate) (int64, error) {
	_, err := s.db.Exec(
		`INSERT INTO candidates (user_id, first_name, last_name, email, phone, position, experience, education, motivation, linkedin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET first_name = excluded.first_name, last_name = excluded.last_name,
		   email = excluded.email, phone = excluded.phone, position = excluded.position,
		   experience = excluded.experience, education = excluded.education,
		   motivation = excluded.motivation, linkedin = excluded.linkedin`,
		c.UserID, strings.TrimSpace(c.FirstName), strings.TrimSpace(c.LastName), strings.ToLower(strings.TrimSpace(c.Email)),
		c.Phone, c.Position, c.Experience, c.Education, c.Motivation, c.LinkedIn, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRow(`SELECT id FROM candidates WHERE user_id = ?`, c.UserID).Scan(&id)
	return id, err
}

// GetCandidate returns a candidate by ID.
func (s *Store) GetCandidate(id int64) (*model.Candidate, error) {
	return scanCandidate(s.db.QueryRow(`SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id))
}

// GetCandidateByUser returns the candidate owned by a user, or nil before
// the bio form is filled in.
func (s *Store) GetCandidateByUser(userID int64) (*model.Candidate, error) {
	return scanCandidate(s.db.QueryRow(`SELECT `+candidateColumns+` FROM candidates WHERE user_id = ?`, userID))
}
