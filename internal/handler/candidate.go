package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/cloudhire/internal/events"
	"github.com/pavelanni/cloudhire/internal/handler/views"
	appI18n "github.com/pavelanni/cloudhire/internal/i18n"
	"github.com/pavelanni/cloudhire/internal/model"
	"github.com/pavelanni/cloudhire/internal/scoring"
	"github.com/pavelanni/cloudhire/internal/storage"
)

var uploadKinds = []model.FileKind{model.FileResume, model.FileTranscript, model.FileProject}

func kindLabel(k model.FileKind) string {
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// currentCandidate loads the bio of the signed-in candidate, redirecting to
// the bio form when there is none yet.
func (h *Handler) currentCandidate(w http.ResponseWriter, r *http.Request) (*model.Candidate, bool) {
	user := model.UserFromContext(r.Context())
	cand, err := h.store.GetCandidateByUser(user.ID)
	if err != nil {
		serverError(w, "failed to load candidate", err)
		return nil, false
	}
	if cand == nil {
		h.redirect(w, r, "/bio")
		return nil, false
	}
	return cand, true
}

// openSubmission returns the candidate's in-progress submission, starting
// the clock on first use. Closed submissions redirect to the done page.
func (h *Handler) openSubmission(w http.ResponseWriter, r *http.Request, cand *model.Candidate) (*model.Submission, bool) {
	sub, err := h.store.StartSubmission(cand.ID)
	if err != nil {
		serverError(w, "failed to start submission", err)
		return nil, false
	}
	if sub.Status != model.StatusInProgress {
		h.redirect(w, r, "/done")
		return nil, false
	}
	return sub, true
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, p string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", h.path(p))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, h.path(p), http.StatusSeeOther)
}

func (h *Handler) handleBioPage(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	cand, err := h.store.GetCandidateByUser(user.ID)
	if err != nil {
		serverError(w, "failed to load candidate", err)
		return
	}
	c := model.Candidate{Email: user.Email}
	var files []model.FileRecord
	if cand != nil {
		c = *cand
		if files, err = h.store.ListFiles(cand.ID); err != nil {
			serverError(w, "failed to list files", err)
			return
		}
	}
	render(w, r, http.StatusOK, views.BioPage(c, files, nil))
}

func (h *Handler) handleSaveBio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(storage.MaxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	user := model.UserFromContext(r.Context())
	c := model.Candidate{
		UserID:     user.ID,
		FirstName:  strings.TrimSpace(r.FormValue("first_name")),
		LastName:   strings.TrimSpace(r.FormValue("last_name")),
		Email:      strings.TrimSpace(r.FormValue("email")),
		Phone:      strings.TrimSpace(r.FormValue("phone")),
		Position:   strings.TrimSpace(r.FormValue("position")),
		Experience: strings.TrimSpace(r.FormValue("experience")),
		Education:  strings.TrimSpace(r.FormValue("education")),
		Motivation: strings.TrimSpace(r.FormValue("motivation")),
		LinkedIn:   strings.TrimSpace(r.FormValue("linkedin")),
	}
	if err := h.validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			serverError(w, "failed to validate bio", err)
			return
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, appI18n.T(r.Context(), fe.Field()))
		}
		msg := appI18n.Td(r.Context(), "BioInvalid", map[string]any{"Fields": strings.Join(fields, ", ")})
		render(w, r, http.StatusUnprocessableEntity, views.BioPage(c, nil, []string{msg}))
		return
	}

	id, err := h.store.SaveCandidate(c)
	if err != nil {
		serverError(w, "failed to save candidate", err)
		return
	}
	c.ID = id

	var rejected []string
	if r.MultipartForm != nil {
		for _, kind := range uploadKinds {
			file, header, err := r.FormFile(string(kind))
			if errors.Is(err, http.ErrMissingFile) {
				continue
			}
			if err != nil {
				rejected = append(rejected, appI18n.Td(r.Context(), "UploadRejected", map[string]any{"File": appI18n.T(r.Context(), kindLabel(kind))}))
				continue
			}
			err = h.storeUpload(r.Context(), id, kind, file, header)
			file.Close()
			if err != nil {
				slog.Warn("upload rejected", "candidate_id", id, "kind", kind, "file", header.Filename, "error", err)
				rejected = append(rejected, appI18n.Td(r.Context(), "UploadRejected", map[string]any{"File": header.Filename}))
			}
		}
	}
	if len(rejected) > 0 {
		files, err := h.store.ListFiles(id)
		if err != nil {
			serverError(w, "failed to list files", err)
			return
		}
		render(w, r, http.StatusUnprocessableEntity, views.BioPage(c, files, rejected))
		return
	}
	http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
}

// storeUpload validates an uploaded document, writes it to the file store
// and records its metadata.
func (h *Handler) storeUpload(ctx context.Context, candidateID int64, kind model.FileKind, file multipart.File, header *multipart.FileHeader) error {
	if header.Size > storage.MaxUploadSize {
		return fmt.Errorf("file exceeds %d bytes", storage.MaxUploadSize)
	}
	ct := storage.ContentType(header.Filename, header.Header.Get("Content-Type"))
	if base, _, err := mime.ParseMediaType(ct); err == nil {
		ct = base
	}
	if !storage.Allowed(ct) {
		return fmt.Errorf("content type %s not allowed", ct)
	}
	data, err := storage.ReadLimited(file)
	if err != nil {
		return err
	}
	bucket, err := storage.BucketFor(kind)
	if err != nil {
		return err
	}
	key := storage.ObjectKey(candidateID, header.Filename)
	if err := h.files.Put(ctx, bucket, key, ct, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	_, err = h.store.InsertFile(model.FileRecord{
		CandidateID: candidateID,
		Kind:        kind,
		FileName:    filepath.Base(header.Filename),
		Bucket:      bucket,
		Path:        key,
		ContentType: ct,
		Size:        int64(len(data)),
	})
	return err
}

// timeLimit is the exam allotment: the exam metadata wins over the flag.
func (h *Handler) timeLimit(info model.ExamInfo) time.Duration {
	if info.TimeLimitMinutes > 0 {
		return time.Duration(info.TimeLimitMinutes) * time.Minute
	}
	return h.config.TimeLimit
}

func (h *Handler) handleExamPage(w http.ResponseWriter, r *http.Request) {
	cand, ok := h.currentCandidate(w, r)
	if !ok {
		return
	}
	sub, ok := h.openSubmission(w, r, cand)
	if !ok {
		return
	}
	questions, err := h.store.ListQuestions()
	if err != nil {
		serverError(w, "failed to list questions", err)
		return
	}
	info, err := h.store.GetExamInfo()
	if err != nil {
		serverError(w, "failed to load exam info", err)
		return
	}
	limit := h.timeLimit(info)
	info.TimeLimitMinutes = int(limit.Minutes())
	render(w, r, http.StatusOK, views.ExamPage(views.ExamData{
		Info:       info,
		Submission: *sub,
		Questions:  questions,
		Deadline:   sub.StartedAt.Add(limit),
	}))
}

// handleSaveAnswers autosaves the exam. Form posts merge the posted fields
// into the stored answers; a JSON body replaces the scored sections.
func (h *Handler) handleSaveAnswers(w http.ResponseWriter, r *http.Request) {
	cand, ok := h.currentCandidate(w, r)
	if !ok {
		return
	}
	sub, ok := h.openSubmission(w, r, cand)
	if !ok {
		return
	}

	answers := sub.Answers
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
			return
		}
		parsed, err := scoring.ParseAnswerSet(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		parsed.Behavioral = answers.Behavioral
		answers = parsed
	} else if err := applyPosted(r, &answers); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.SaveAnswers(sub.ID, answers); err != nil {
		serverError(w, "failed to save answers", err)
		return
	}
	switch {
	case isHTMX(r):
		render(w, r, http.StatusOK, views.SavedFragment(h.now()))
	case r.PostForm.Get("next") == "behavioral":
		http.Redirect(w, r, h.path("/behavioral"), http.StatusSeeOther)
	case r.PostForm != nil && len(r.PostForm) > 0:
		http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func applyPosted(r *http.Request, a *model.AnswerSet) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	return applyForm(a, r.PostForm)
}

// applyForm copies prefixed answer fields into a. Blank values remove the
// answer.
func applyForm(a *model.AnswerSet, form url.Values) error {
	if a.MultipleChoice == nil {
		a.MultipleChoice = map[string]string{}
	}
	if a.Concepts == nil {
		a.Concepts = map[string]string{}
	}
	if a.Calculations == nil {
		a.Calculations = map[model.CalcKey]string{}
	}
	if a.Behavioral == nil {
		a.Behavioral = map[string]string{}
	}
	for name, values := range form {
		if len(values) == 0 {
			continue
		}
		value := values[len(values)-1]
		blank := strings.TrimSpace(value) == ""
		switch {
		case strings.HasPrefix(name, views.FieldMultipleChoice):
			setOrDelete(a.MultipleChoice, strings.TrimPrefix(name, views.FieldMultipleChoice), value, blank)
		case strings.HasPrefix(name, views.FieldConcept):
			setOrDelete(a.Concepts, strings.TrimPrefix(name, views.FieldConcept), value, blank)
		case strings.HasPrefix(name, views.FieldBehavioral):
			setOrDelete(a.Behavioral, strings.TrimPrefix(name, views.FieldBehavioral), value, blank)
		case strings.HasPrefix(name, views.FieldCalculation):
			key, err := model.ParseCalcKey(strings.TrimPrefix(name, views.FieldCalculation))
			if err != nil {
				return err
			}
			setOrDelete(a.Calculations, key, value, blank)
		}
	}
	return nil
}

func setOrDelete[K comparable](m map[K]string, k K, v string, blank bool) {
	if blank {
		delete(m, k)
		return
	}
	m[k] = v
}

func (h *Handler) handleBehavioralPage(w http.ResponseWriter, r *http.Request) {
	cand, ok := h.currentCandidate(w, r)
	if !ok {
		return
	}
	sub, ok := h.openSubmission(w, r, cand)
	if !ok {
		return
	}
	questions, err := h.store.ListQuestionsBySection(model.SectionBehavioral)
	if err != nil {
		serverError(w, "failed to list questions", err)
		return
	}
	render(w, r, http.StatusOK, views.BehavioralPage(questions, sub.Answers))
}

func (h *Handler) handleSaveBehavioral(w http.ResponseWriter, r *http.Request) {
	cand, ok := h.currentCandidate(w, r)
	if !ok {
		return
	}
	sub, ok := h.openSubmission(w, r, cand)
	if !ok {
		return
	}
	answers := sub.Answers
	if err := applyPosted(r, &answers); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.SaveAnswers(sub.ID, answers); err != nil {
		serverError(w, "failed to save answers", err)
		return
	}
	if isHTMX(r) {
		render(w, r, http.StatusOK, views.SavedFragment(h.now()))
		return
	}
	http.Redirect(w, r, h.path("/behavioral"), http.StatusSeeOther)
}

// handleSubmit saves any posted answers, closes the submission and
// announces it to the report pipeline. A failed publish is logged; the
// worker picks up submitted exams on start.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	cand, ok := h.currentCandidate(w, r)
	if !ok {
		return
	}
	sub, ok := h.openSubmission(w, r, cand)
	if !ok {
		return
	}
	answers := sub.Answers
	if err := applyPosted(r, &answers); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.SaveAnswers(sub.ID, answers); err != nil {
		serverError(w, "failed to save answers", err)
		return
	}
	done, err := h.store.MarkSubmitted(sub.ID, h.now())
	if err != nil {
		serverError(w, "failed to submit", err)
		return
	}
	h.metrics.SubmissionReceived()
	slog.Info("submission received", "submission_id", done.ID, "candidate_id", cand.ID,
		"elapsed_seconds", done.ElapsedSeconds)

	if h.events != nil {
		ev := events.SubmissionEvent{SubmissionID: done.ID, PublicID: done.PublicID, SubmittedAt: *done.SubmittedAt}
		if err := h.events.PublishSubmitted(r.Context(), ev); err != nil {
			slog.Error("failed to publish submission", "submission_id", done.ID, "error", err)
		}
	}
	h.redirect(w, r, "/done")
}

func (h *Handler) handleDone(w http.ResponseWriter, r *http.Request) {
	cand, ok := h.currentCandidate(w, r)
	if !ok {
		return
	}
	sub, err := h.store.LatestSubmission(cand.ID)
	if err != nil {
		serverError(w, "failed to load submission", err)
		return
	}
	if sub == nil || sub.Status == model.StatusInProgress {
		http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.DonePage(sub))
}
