package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/cloudhire/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by updates that matched no row.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'candidate',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS magic_links (
		token_id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		used_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL DEFAULT '',
		experience TEXT NOT NULL DEFAULT '',
		education TEXT NOT NULL DEFAULT '',
		motivation TEXT NOT NULL DEFAULT '',
		linkedin TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL UNIQUE,
		section TEXT NOT NULL,
		text TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		points INTEGER NOT NULL DEFAULT 1,
		options TEXT NOT NULL DEFAULT '[]',
		correct_answer TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		candidate_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		answers TEXT NOT NULL DEFAULT '{}',
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		elapsed_seconds INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (candidate_id) REFERENCES candidates(id)
	);

	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id INTEGER NOT NULL UNIQUE,
		assessment TEXT NOT NULL,
		grading TEXT,
		html TEXT NOT NULL DEFAULT '',
		emailed_at DATETIME,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (submission_id) REFERENCES submissions(id)
	);

	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		candidate_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		file_name TEXT NOT NULL,
		bucket TEXT NOT NULL,
		path TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (candidate_id) REFERENCES candidates(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		hash TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		questions INTEGER NOT NULL DEFAULT 0,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const questionColumns = `id, key, section, text, category, difficulty, points, options, correct_answer`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(r rowScanner) (model.Question, error) {
	var q model.Question
	var options string
	if err := r.Scan(&q.ID, &q.Key, &q.Section, &q.Text, &q.Category, &q.Difficulty, &q.Points, &options, &q.CorrectAnswer); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("question %d options: %w", q.ID, err)
	}
	return q, nil
}

// UpsertQuestion stores a question, replacing any question with the same key.
func (s *Store) UpsertQuestion(q model.Question) (int64, error) {
	options, err := json.Marshal(nonNil(q.Options))
	if err != nil {
		return 0, err
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (key, section, text, category, difficulty, points, options, correct_answer)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET section = excluded.section, text = excluded.text,
		   category = excluded.category, difficulty = excluded.difficulty, points = excluded.points,
		   options = excluded.options, correct_answer = excluded.correct_answer`,
		q.Key, q.Section, q.Text, q.Category, q.Difficulty, q.Points, string(options), q.CorrectAnswer,
	)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRow(`SELECT id FROM questions WHERE key = ?`, q.Key).Scan(&id)
	return id, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ListQuestions returns all questions in section order.
func (s *Store) ListQuestions() ([]model.Question, error) {
	return s.queryQuestions(`SELECT ` + questionColumns + ` FROM questions
		ORDER BY CASE section
			WHEN 'multiple_choice' THEN 1 WHEN 'concept' THEN 2
			WHEN 'calculation' THEN 3 ELSE 4 END, id`)
}

// ListQuestionsBySection returns the questions of one section.
func (s *Store) ListQuestionsBySection(section model.Section) ([]model.Question, error) {
	return s.queryQuestions(`SELECT `+questionColumns+` FROM questions WHERE section = ? ORDER BY id`, section)
}

func (s *Store) queryQuestions(query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestionByKey returns a question by key, or nil if there is none.
func (s *Store) GetQuestionByKey(key string) (*model.Question, error) {
	q, err := scanQuestion(s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE key = ?`, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// DeleteQuestion removes a question by key.
func (s *Store) DeleteQuestion(key string) error {
	res, err := s.db.Exec(`DELETE FROM questions WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// IsFileImported reports whether a question file with this content hash was
// already loaded.
func (s *Store) IsFileImported(hash string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM imported_files WHERE hash = ?`, hash).Scan(&n)
	return n > 0, err
}

// RecordImport remembers an imported question file.
func (s *Store) RecordImport(hash, filename string, questions int) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (hash, filename, questions, imported_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		hash, filename, questions, time.Now(),
	)
	return err
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
