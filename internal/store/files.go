package store

import (
	"database/sql"
	"time"

	"github.com/pavelanni/cloudhire/internal/model"
)

const fileColumns = `id, candidate_id, kind, file_name, bucket, path, content_type, size, created_at`

func scanFile(r rowScanner) (*model.FileRecord, error) {
	var f model.FileRecord
	err := r.Scan(&f.ID, &f.CandidateID, &f.Kind, &f.FileName, &f.Bucket, &f.Path, &f.ContentType, &f.Size, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// InsertFile stores upload metadata.
func (s *Store) InsertFile(f model.FileRecord) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO files (candidate_id, kind, file_name, bucket, path, content_type, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.CandidateID, f.Kind, f.FileName, f.Bucket, f.Path, f.ContentType, f.Size, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetFile returns upload metadata by ID.
func (s *Store) GetFile(id int64) (*model.FileRecord, error) {
	return scanFile(s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
}

// ListFiles returns a candidate's uploads, oldest first.
func (s *Store) ListFiles(candidateID int64) ([]model.FileRecord, error) {
	rows, err := s.db.Query(`SELECT `+fileColumns+` FROM files WHERE candidate_id = ? ORDER BY id`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}
