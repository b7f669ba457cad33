package store

import (
	"database/sql"
	"strconv"

	"github.com/pavelanni/cloudhire/internal/model"
)

// SetMetadata upserts a key-value pair in the exam_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key, or "" if it is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM exam_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetExamInfo stores the assessment description.
func (s *Store) SetExamInfo(info model.ExamInfo) error {
	pairs := []struct{ k, v string }{
		{"title", info.Title},
		{"position", info.Position},
		{"prompt_variant", info.PromptVariant},
		{"time_limit_minutes", strconv.Itoa(info.TimeLimitMinutes)},
		{"num_questions", strconv.Itoa(info.NumQuestions)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetExamInfo reads the assessment description.
func (s *Store) GetExamInfo() (model.ExamInfo, error) {
	var info model.ExamInfo
	strs := []struct {
		k   string
		dst *string
	}{
		{"title", &info.Title},
		{"position", &info.Position},
		{"prompt_variant", &info.PromptVariant},
	}
	for _, p := range strs {
		v, err := s.GetMetadata(p.k)
		if err != nil {
			return info, err
		}
		*p.dst = v
	}
	ints := []struct {
		k   string
		dst *int
	}{
		{"time_limit_minutes", &info.TimeLimitMinutes},
		{"num_questions", &info.NumQuestions},
	}
	for _, p := range ints {
		v, err := s.GetMetadata(p.k)
		if err != nil {
			return info, err
		}
		if v == "" {
			continue
		}
		if *p.dst, err = strconv.Atoi(v); err != nil {
			return info, err
		}
	}
	return info, nil
}
