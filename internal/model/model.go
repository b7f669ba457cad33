package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleCandidate is a candidate taking the assessment.
	UserRoleCandidate UserRole = "candidate"
	// UserRoleAdmin is a hiring administrator.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user. Candidates have no password; they sign in
// through magic links.
type User struct {
	ID           int64
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// MagicLink records an issued sign-in token so it can be used exactly once.
type MagicLink struct {
	TokenID   string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Candidate holds the biographical data a candidate enters before the exam.
type Candidate struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	FirstName  string    `json:"first_name" validate:"required,max=100"`
	LastName   string    `json:"last_name" validate:"required,max=100"`
	Email      string    `json:"email" validate:"required,email"`
	Phone      string    `json:"phone" validate:"max=40"`
	Position   string    `json:"position" validate:"required,max=200"`
	Experience string    `json:"experience" validate:"max=2000"`
	Education  string    `json:"education" validate:"max=2000"`
	Motivation string    `json:"motivation" validate:"max=4000"`
	LinkedIn   string    `json:"linkedin,omitempty" validate:"omitempty,url"`
	CreatedAt  time.Time `json:"created_at"`
}

// FullName returns "First Last".
func (c Candidate) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Section identifies one of the exam's answer categories.
type Section string

const (
	SectionMultipleChoice Section = "multiple_choice"
	SectionConcept        Section = "concept"
	SectionCalculation    Section = "calculation"
	SectionBehavioral     Section = "behavioral"
)

// Valid reports whether s is a known section.
func (s Section) Valid() bool {
	switch s {
	case SectionMultipleChoice, SectionConcept, SectionCalculation, SectionBehavioral:
		return true
	}
	return false
}

// Question represents an assessment question.
type Question struct {
	ID            int64    `json:"id"`
	Key           string   `json:"key"`
	Section       Section  `json:"section"`
	Text          string   `json:"text"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
	Points        int      `json:"points"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
}

// QuestionImport is used for loading questions from JSON or YAML files.
type QuestionImport struct {
	Key           string   `json:"key" yaml:"key"`
	Section       Section  `json:"section" yaml:"section" validate:"required,oneof=multiple_choice concept calculation behavioral"`
	Text          string   `json:"text" yaml:"text" validate:"required"`
	Category      string   `json:"category" yaml:"category"`
	Difficulty    string   `json:"difficulty" yaml:"difficulty"`
	Points        int      `json:"points" yaml:"points" validate:"gte=0"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer string   `json:"correct_answer" yaml:"correct_answer"`
}

// SubmissionStatus represents the lifecycle state of a candidate's exam.
type SubmissionStatus string

const (
	StatusInProgress  SubmissionStatus = "in_progress"
	StatusSubmitted   SubmissionStatus = "submitted"
	StatusProcessing  SubmissionStatus = "processing"
	StatusReported    SubmissionStatus = "reported"
	StatusNeedsReview SubmissionStatus = "needs_review"
)

// Submission is one candidate's attempt at the assessment.
type Submission struct {
	ID             int64            `json:"id"`
	PublicID       string           `json:"public_id"`
	CandidateID    int64            `json:"candidate_id"`
	Status         SubmissionStatus `json:"status"`
	Answers        AnswerSet        `json:"answers"`
	StartedAt      time.Time        `json:"started_at"`
	SubmittedAt    *time.Time       `json:"submitted_at,omitempty"`
	ElapsedSeconds int              `json:"elapsed_seconds"`
}

// FileKind names the kind of document a candidate uploaded.
type FileKind string

const (
	FileResume     FileKind = "resume"
	FileTranscript FileKind = "transcript"
	FileProject    FileKind = "project"
)

// FileRecord is the metadata for an uploaded candidate document.
type FileRecord struct {
	ID          int64     `json:"id"`
	CandidateID int64     `json:"candidate_id"`
	Kind        FileKind  `json:"kind"`
	FileName    string    `json:"file_name"`
	Bucket      string    `json:"bucket"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExamConfig holds runtime exam parameters set via CLI flags.
type ExamConfig struct {
	TimeLimit     time.Duration // Allotment shown to candidates
	SiteURL       string        // Absolute origin used in magic links
	BasePath      string        // URL prefix for sub-path deployments (e.g. "/hire")
	SecureCookies bool          // Set Secure flag on cookies (disable for local dev)
	PromptVariant string        // Grading prompt variant (strict, standard, lenient)
	EmailInvites  bool          // Email magic links to candidates when issued
}

// SubmissionView combines a submission with everything needed to display it.
type SubmissionView struct {
	Submission Submission
	Candidate  Candidate
	Questions  []Question
	Files      []FileRecord
	Report     *Report
}

// ExamInfo describes the assessment currently being administered. It is
// kept in the exam_metadata table.
type ExamInfo struct {
	Title            string `json:"title"`
	Position         string `json:"position"`
	PromptVariant    string `json:"prompt_variant"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
	NumQuestions     int    `json:"num_questions"`
}

// SubmissionRow is one line of the admin dashboard.
type SubmissionRow struct {
	Submission     Submission
	CandidateName  string
	CandidateEmail string
	Position       string
	OverallScore   *float64
	Tier           RecommendationTier
}
