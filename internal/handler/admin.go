package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/cloudhire/internal/handler/views"
	appI18n "github.com/pavelanni/cloudhire/internal/i18n"
	"github.com/pavelanni/cloudhire/internal/model"
	"github.com/pavelanni/cloudhire/internal/pipeline"
	"github.com/pavelanni/cloudhire/internal/questions"
	"github.com/pavelanni/cloudhire/internal/storage"
)

func (h *Handler) renderDashboard(w http.ResponseWriter, r *http.Request, status int, invite *views.Invite, f views.Flash) {
	rows, err := h.store.ListSubmissions()
	if err != nil {
		serverError(w, "failed to list submissions", err)
		return
	}
	render(w, r, status, views.AdminDashboard(rows, invite, f))
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	h.renderDashboard(w, r, http.StatusOK, nil, views.Flash{})
}

// handleInvite issues a magic link for a candidate and, when enabled, emails
// it. The link is always shown so it can be shared by hand.
func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	if err := h.validate.Var(email, "required,email"); err != nil {
		h.renderDashboard(w, r, http.StatusUnprocessableEntity, nil,
			views.Flash{Message: appI18n.T(r.Context(), "InvalidEmail"), IsError: true})
		return
	}

	user, err := h.store.EnsureCandidate(email)
	if err != nil {
		serverError(w, "failed to create candidate user", err)
		return
	}
	if user.Role != model.UserRoleCandidate {
		h.renderDashboard(w, r, http.StatusUnprocessableEntity, nil,
			views.Flash{Message: appI18n.T(r.Context(), "InvalidEmail"), IsError: true})
		return
	}
	_, link, err := h.issuer.Issue(email)
	if err != nil {
		serverError(w, "failed to issue magic link", err)
		return
	}
	slog.Info("issued magic link", "user_id", user.ID)

	invite := &views.Invite{Email: email, Link: link}
	var f views.Flash
	if h.config.EmailInvites && h.mailer != nil && h.mailer.Configured() {
		err := h.mailer.SendInvite(r.Context(), email, link)
		h.metrics.EmailSent("invite", err)
		if err != nil {
			slog.Error("invite email failed", "user_id", user.ID, "error", err)
			f = views.Flash{Message: appI18n.T(r.Context(), "InviteEmailFailed"), IsError: true}
		} else {
			invite.Emailed = true
		}
	}
	h.renderDashboard(w, r, http.StatusOK, invite, f)
}

func (h *Handler) handleSubmissionPage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "submissionID")
	if !ok {
		http.Error(w, "invalid submission ID", http.StatusBadRequest)
		return
	}
	h.renderSubmission(w, r, id, views.Flash{})
}

func (h *Handler) renderSubmission(w http.ResponseWriter, r *http.Request, id int64, f views.Flash) {
	view, err := h.store.GetSubmissionView(id)
	if err != nil {
		serverError(w, "failed to load submission", err)
		return
	}
	if view == nil {
		http.NotFound(w, r)
		return
	}
	render(w, r, http.StatusOK, views.SubmissionPage(*view, f))
}

// handleRegenerateReport runs the pipeline again for one submission,
// replacing any stored report.
func (h *Handler) handleRegenerateReport(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "submissionID")
	if !ok {
		http.Error(w, "invalid submission ID", http.StatusBadRequest)
		return
	}
	if h.processor == nil {
		http.Error(w, "report pipeline not available", http.StatusServiceUnavailable)
		return
	}
	f := views.Flash{Message: appI18n.T(r.Context(), "ReportRegenerated")}
	status, err := h.processor.Regenerate(r.Context(), id)
	switch {
	case errors.Is(err, pipeline.ErrAlreadyClaimed):
		f = views.Flash{Message: appI18n.T(r.Context(), "StatusProcessing"), IsError: true}
	case err != nil:
		slog.Error("report regeneration failed", "submission_id", id, "error", err)
		f = views.Flash{Message: appI18n.T(r.Context(), "ReportUnavailable"), IsError: true}
	case status == model.StatusNeedsReview:
		f = views.Flash{Message: appI18n.T(r.Context(), "StatusNeedsReview"), IsError: true}
	}
	h.renderSubmission(w, r, id, f)
}

func (h *Handler) renderQuestions(w http.ResponseWriter, r *http.Request, status int, f views.Flash) {
	qs, err := h.store.ListQuestions()
	if err != nil {
		serverError(w, "failed to list questions", err)
		return
	}
	render(w, r, status, views.AdminQuestionsPage(qs, f))
}

func (h *Handler) handleAdminQuestionsPage(w http.ResponseWriter, r *http.Request) {
	h.renderQuestions(w, r, http.StatusOK, views.Flash{})
}

func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(storage.MaxUploadSize); err != nil {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("questions_file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := storage.ReadLimited(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}

	n, err := questions.Import(h.store, header.Filename, data)
	if err != nil {
		slog.Warn("question upload rejected", "filename", header.Filename, "error", err)
		h.renderQuestions(w, r, http.StatusUnprocessableEntity, views.Flash{
			Message: appI18n.T(r.Context(), "UploadFailed") + " " + err.Error(),
			IsError: true,
		})
		return
	}
	if n == 0 {
		h.renderQuestions(w, r, http.StatusOK, views.Flash{Message: appI18n.T(r.Context(), "UploadDuplicate")})
		return
	}
	slog.Info("uploaded questions via admin", "filename", header.Filename, "count", n)
	h.renderQuestions(w, r, http.StatusOK, views.Flash{Message: appI18n.Tp(r.Context(), "QuestionsImported", n)})
}

func (h *Handler) renderUsers(w http.ResponseWriter, r *http.Request, status int, f views.Flash) {
	users, err := h.store.ListUsers()
	if err != nil {
		serverError(w, "failed to list users", err)
		return
	}
	render(w, r, status, views.AdminUsersPage(users, f))
}

func (h *Handler) handleAdminUsersPage(w http.ResponseWriter, r *http.Request) {
	h.renderUsers(w, r, http.StatusOK, views.Flash{})
}

// handleCreateUser adds an administrator. Candidates are created through
// invitations.
func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	displayName := strings.TrimSpace(r.FormValue("display_name"))
	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	password := r.FormValue("password")

	if username == "" || password == "" {
		http.Error(w, "username and password required", http.StatusBadRequest)
		return
	}
	if email != "" {
		if err := h.validate.Var(email, "email"); err != nil {
			h.renderUsers(w, r, http.StatusUnprocessableEntity,
				views.Flash{Message: appI18n.T(r.Context(), "InvalidEmail"), IsError: true})
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		serverError(w, "failed to hash password", err)
		return
	}
	if displayName == "" {
		displayName = username
	}

	_, err = h.store.CreateUser(model.User{
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		slog.Error("failed to create user", "error", err)
		h.renderUsers(w, r, http.StatusUnprocessableEntity,
			views.Flash{Message: "failed to create user: " + err.Error(), IsError: true})
		return
	}
	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "userID")
	if !ok {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	if self := model.UserFromContext(r.Context()); self.ID == id {
		http.Error(w, "cannot deactivate yourself", http.StatusBadRequest)
		return
	}
	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

// handleFile serves an uploaded document: a redirect to a presigned URL when
// the file store offers one, otherwise the bytes themselves.
func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "fileID")
	if !ok {
		http.Error(w, "invalid file ID", http.StatusBadRequest)
		return
	}
	f, err := h.store.GetFile(id)
	if err != nil {
		serverError(w, "failed to load file", err)
		return
	}
	if f == nil {
		http.NotFound(w, r)
		return
	}

	direct, err := h.files.URL(r.Context(), f.Bucket, f.Path)
	if err != nil {
		serverError(w, "failed to sign file URL", err)
		return
	}
	if direct != "" {
		http.Redirect(w, r, direct, http.StatusFound)
		return
	}

	data, err := h.files.Get(r.Context(), f.Bucket, f.Path)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		serverError(w, "failed to read file", err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": filepath.Base(f.FileName),
	}))
	if _, err := w.Write(data); err != nil {
		slog.Warn("file write interrupted", "file_id", id, "error", fmt.Errorf("write: %w", err))
	}
}
