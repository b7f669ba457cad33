package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/cloudhire/internal/auth"
	"github.com/pavelanni/cloudhire/internal/events"
	"github.com/pavelanni/cloudhire/internal/mail"
	"github.com/pavelanni/cloudhire/internal/metrics"
	"github.com/pavelanni/cloudhire/internal/model"
	"github.com/pavelanni/cloudhire/internal/pipeline"
	"github.com/pavelanni/cloudhire/internal/storage"
	"github.com/pavelanni/cloudhire/internal/store"
)

// Pinger reports whether an external dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Handler. Store, Issuer and Files are
// required.
type Deps struct {
	Issuer    *auth.Issuer
	Files     storage.FileStore
	Mailer    *mail.Dispatcher
	Events    events.Publisher
	Processor *pipeline.Processor
	Metrics   *metrics.Metrics
	LLM       Pinger
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	config    model.ExamConfig
	issuer    *auth.Issuer
	files     storage.FileStore
	mailer    *mail.Dispatcher
	events    events.Publisher
	processor *pipeline.Processor
	metrics   *metrics.Metrics
	llm       Pinger
	validate  *validator.Validate
	now       func() time.Time
}

// New creates a new Handler.
func New(s *store.Store, cfg model.ExamConfig, d Deps) (*Handler, error) {
	if s == nil {
		return nil, errors.New("handler: store is required")
	}
	if d.Issuer == nil {
		return nil, errors.New("handler: magic link issuer is required")
	}
	if d.Files == nil {
		return nil, errors.New("handler: file store is required")
	}
	return &Handler{
		store:     s,
		config:    cfg,
		issuer:    d.Issuer,
		files:     d.Files,
		mailer:    d.Mailer,
		events:    d.Events,
		processor: d.Processor,
		metrics:   d.Metrics,
		llm:       d.LLM,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Get("/auth/magic", h.handleMagicLink)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/", h.handleIndex)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleCandidate))
				r.Get("/bio", h.handleBioPage)
				r.Post("/bio", h.handleSaveBio)
				r.Get("/exam", h.handleExamPage)
				r.Post("/exam/answers", h.handleSaveAnswers)
				r.Get("/behavioral", h.handleBehavioralPage)
				r.Post("/behavioral", h.handleSaveBehavioral)
				r.Post("/exam/submit", h.handleSubmit)
				r.Get("/done", h.handleDone)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/admin", h.handleDashboard)
				r.Post("/admin/invites", h.handleInvite)
				r.Get("/admin/submissions/{submissionID}", h.handleSubmissionPage)
				r.Post("/admin/submissions/{submissionID}/report", h.handleRegenerateReport)
				r.Get("/admin/questions", h.handleAdminQuestionsPage)
				r.Post("/admin/questions", h.handleUploadQuestions)
				r.Get("/admin/users", h.handleAdminUsersPage)
				r.Post("/admin/users", h.handleCreateUser)
				r.Post("/admin/users/{userID}/toggle", h.handleToggleUserActive)
				r.Get("/files/{fileID}", h.handleFile)
			})
		})
	})
}

// BasePathMiddleware makes the configured base path available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes p with the base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "path", r.URL.Path, "error", err)
	}
}

func serverError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Mail   bool              `json:"mail_configured"`
	LLM    bool              `json:"llm_configured"`
}

// handleHealth answers 503 when the database is unreachable. Missing mail
// or LLM configuration is reported but does not fail the check.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := healthReport{
		Status: "ok",
		Checks: map[string]string{"database": "ok"},
		Mail:   h.mailer != nil && h.mailer.Configured(),
		LLM:    h.llm != nil,
	}
	code := http.StatusOK
	if err := h.store.Ping(); err != nil {
		rep.Status, rep.Checks["database"] = "degraded", err.Error()
		code = http.StatusServiceUnavailable
	}
	if h.llm != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.llm.Ping(ctx); err != nil {
			rep.Checks["llm"] = err.Error()
		} else {
			rep.Checks["llm"] = "ok"
		}
	}
	if !rep.Mail {
		rep.Checks["mail"] = "not configured"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		slog.Error("encode health report", "error", err)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	if user.Role == model.UserRoleAdmin {
		http.Redirect(w, r, h.path("/admin"), http.StatusSeeOther)
		return
	}
	cand, err := h.store.GetCandidateByUser(user.ID)
	if err != nil {
		serverError(w, "failed to load candidate", err)
		return
	}
	if cand == nil {
		http.Redirect(w, r, h.path("/bio"), http.StatusSeeOther)
		return
	}
	sub, err := h.store.LatestSubmission(cand.ID)
	if err != nil {
		serverError(w, "failed to load submission", err)
		return
	}
	if sub != nil && sub.Status != model.StatusInProgress {
		http.Redirect(w, r, h.path("/done"), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
}
