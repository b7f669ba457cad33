package store

import (
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/cloudhire/internal/model"
)

const userColumns = `id, username, email, display_name, password_hash, role, active, created_at`

func scanUser(r rowScanner) (*model.User, error) {
	var u model.User
	err := r.Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(u model.User) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (username, email, display_name, password_hash, role, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Username, strings.ToLower(u.Email), u.DisplayName, u.PasswordHash, u.Role, u.Active, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create user", "username", u.Username, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created user", "id", id, "username", u.Username, "role", u.Role)
	return id, nil
}

// EnsureCandidate returns the candidate user for email, creating an active
// one if needed. Candidates sign in by email, so the username is the email.
func (s *Store) EnsureCandidate(email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.GetUserByEmail(email)
	if err != nil || u != nil {
		return u, err
	}
	id, err := s.CreateUser(model.User{
		Username: email,
		Email:    email,
		Role:     model.UserRoleCandidate,
		Active:   true,
	})
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(id)
}

// GetUserByUsername returns a user by username.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	return scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// GetUserByEmail returns the first user with the given email.
func (s *Store) GetUserByEmail(email string) (*model.User, error) {
	return scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE email = ? ORDER BY id LIMIT 1`,
		strings.ToLower(strings.TrimSpace(email)),
	))
}

// GetUserByID returns a user by ID.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	return scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// ListUsers returns all users.
func (s *Store) ListUsers() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ListAdminEmails returns the addresses of active admins, who receive reports.
func (s *Store) ListAdminEmails() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT email FROM users WHERE role = ? AND active = 1 AND email != '' ORDER BY id`,
		model.UserRoleAdmin,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// ToggleUserActive flips the active flag on a user.
func (s *Store) ToggleUserActive(id int64) error {
	res, err := s.db.Exec(`UPDATE users SET active = NOT active WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// UserCount returns the total number of users.
func (s *Store) UserCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
