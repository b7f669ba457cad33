// Package pipeline turns a submitted exam into a stored, emailed report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/cloudhire/internal/events"
	"github.com/pavelanni/cloudhire/internal/metrics"
	"github.com/pavelanni/cloudhire/internal/model"
	"github.com/pavelanni/cloudhire/internal/report"
	"github.com/pavelanni/cloudhire/internal/scoring"
	"github.com/pavelanni/cloudhire/internal/storage"
)

// Store is the persistence the pipeline needs.
type Store interface {
	GetSubmissionView(id int64) (*model.SubmissionView, error)
	ListSubmittedIDs() ([]int64, error)
	SaveReport(r model.Report) (int64, error)
	MarkReportEmailed(submissionID int64, at time.Time) error
	SetSubmissionStatus(id int64, status model.SubmissionStatus) error
	ClaimSubmission(id int64, from ...model.SubmissionStatus) (bool, error)
}

// Mailer delivers rendered reports.
type Mailer interface {
	SendReport(ctx context.Context, subject, html string) error
}

var (
	// ErrNotSubmitted is returned for submissions that are still in progress.
	ErrNotSubmitted = errors.New("submission not submitted")
	// ErrAlreadyClaimed is returned when the submission is being processed
	// or was already reported by someone else.
	ErrAlreadyClaimed = errors.New("submission already claimed")
)

// Statuses a submission may be claimed from.
var (
	pendingStatuses    = []model.SubmissionStatus{model.StatusSubmitted}
	regenerateStatuses = []model.SubmissionStatus{model.StatusSubmitted, model.StatusReported, model.StatusNeedsReview}
)

// Options holds the optional collaborators of a Processor.
type Options struct {
	// Grader is the primary grader, usually LLM-backed. The heuristic
	// grader is always the fallback; with a nil Grader it grades alone.
	Grader  scoring.Grader
	Mailer  Mailer
	Files   storage.FileStore
	Metrics *metrics.Metrics
	// TotalsFromBank recounts section totals from the question bank for
	// every submission instead of using the aggregator's fixed totals.
	TotalsFromBank bool
}

// Processor runs the report pipeline for one submission at a time; it is
// safe for concurrent use on different submissions.
type Processor struct {
	store      Store
	aggregator *scoring.Aggregator
	grader     scoring.Grader
	hasPrimary bool
	fromBank   bool
	mailer     Mailer
	files      storage.FileStore
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

// New creates a Processor.
func New(store Store, agg *scoring.Aggregator, opts Options) *Processor {
	grader := scoring.WithFallback(opts.Grader, scoring.HeuristicGrader{}, func(err error) {
		slog.Warn("primary grader failed, using heuristic grading", "error", err)
	})
	return &Processor{
		store:      store,
		aggregator: agg,
		grader:     grader,
		hasPrimary: opts.Grader != nil,
		fromBank:   opts.TotalsFromBank,
		mailer:     opts.Mailer,
		files:      opts.Files,
		metrics:    opts.Metrics,
		tracer:     otel.Tracer("cloudhire/pipeline"),
		now:        time.Now,
	}
}

// HandleEvent adapts Process to events.Handler. Events for submissions that
// were already claimed are acknowledged without doing anything.
func (p *Processor) HandleEvent(ctx context.Context, ev events.SubmissionEvent) error {
	_, err := p.Process(ctx, ev.SubmissionID)
	if errors.Is(err, ErrAlreadyClaimed) {
		slog.Debug("submission already handled, skipping event", "submission_id", ev.SubmissionID)
		return nil
	}
	return err
}

// ProcessPending reports on every submission still waiting for one. It is
// run when a worker starts so nothing submitted while it was down is lost.
func (p *Processor) ProcessPending(ctx context.Context) error {
	ids, err := p.store.ListSubmittedIDs()
	if err != nil {
		return fmt.Errorf("list pending submissions: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := p.Process(ctx, id)
		switch {
		case errors.Is(err, ErrAlreadyClaimed):
			slog.Debug("pending submission already claimed", "submission_id", id)
		case err != nil:
			slog.Error("pending submission failed", "submission_id", id, "error", err)
		}
	}
	return nil
}

// Process assesses, grades, renders, stores and emails the report of a
// submitted exam and returns its final status. Only one caller wins the
// claim on a submission; the others get ErrAlreadyClaimed. Input the
// aggregator rejects flags the submission for manual review instead of
// failing.
func (p *Processor) Process(ctx context.Context, submissionID int64) (model.SubmissionStatus, error) {
	return p.run(ctx, submissionID, pendingStatuses)
}

// Regenerate is Process for submissions that already have a report or were
// flagged for review. The stored report is replaced and emailed again.
func (p *Processor) Regenerate(ctx context.Context, submissionID int64) (model.SubmissionStatus, error) {
	return p.run(ctx, submissionID, regenerateStatuses)
}

func (p *Processor) run(ctx context.Context, submissionID int64, from []model.SubmissionStatus) (model.SubmissionStatus, error) {
	start := p.now()
	ctx, span := p.tracer.Start(ctx, "Processor.Process",
		trace.WithAttributes(attribute.Int64("submission_id", submissionID)))
	defer span.End()

	status, err := p.claimAndProcess(ctx, submissionID, from)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("status", string(status)))
	if status != "" {
		p.metrics.PipelineDone(status, p.now().Sub(start))
	}
	return status, err
}

func (p *Processor) claimAndProcess(ctx context.Context, id int64, from []model.SubmissionStatus) (model.SubmissionStatus, error) {
	view, err := p.store.GetSubmissionView(id)
	if err != nil {
		return "", fmt.Errorf("load submission %d: %w", id, err)
	}
	if view == nil {
		return "", fmt.Errorf("submission %d not found", id)
	}
	if view.Submission.Status == model.StatusInProgress {
		return "", fmt.Errorf("submission %d: %w", id, ErrNotSubmitted)
	}

	claimed, err := p.store.ClaimSubmission(id, from...)
	if err != nil {
		return "", fmt.Errorf("claim submission %d: %w", id, err)
	}
	if !claimed {
		return "", fmt.Errorf("submission %d: %w", id, ErrAlreadyClaimed)
	}

	status, err := p.process(ctx, view)
	if err != nil {
		// Put the submission back so a later event or restart retries it.
		if rerr := p.store.SetSubmissionStatus(id, view.Submission.Status); rerr != nil {
			slog.Error("could not release submission", "submission_id", id, "error", rerr)
		}
		return "", err
	}
	return status, nil
}

func (p *Processor) process(ctx context.Context, view *model.SubmissionView) (model.SubmissionStatus, error) {
	id := view.Submission.ID
	assessment, err := p.aggregatorFor(view.Questions).Assess(ctx, view.Submission.Answers, elapsedSeconds(view.Submission))
	if err != nil {
		var verr *scoring.ValidationError
		if !errors.As(err, &verr) {
			return "", err
		}
		slog.Warn("submission needs manual review", "submission_id", id, "error", err)
		if err := p.store.SetSubmissionStatus(id, model.StatusNeedsReview); err != nil {
			return "", fmt.Errorf("flag submission %d: %w", id, err)
		}
		return model.StatusNeedsReview, nil
	}

	grading := p.grade(ctx, view, assessment)

	now := p.now()
	data := report.Data{
		Candidate:   view.Candidate,
		Submission:  view.Submission,
		Questions:   view.Questions,
		Files:       view.Files,
		Assessment:  assessment,
		Grading:     grading,
		GeneratedAt: now,
	}
	html, err := report.RenderString(ctx, report.Render(data))
	if err != nil {
		return "", fmt.Errorf("render report %d: %w", id, err)
	}
	if _, err := p.store.SaveReport(model.Report{
		SubmissionID: id,
		Assessment:   assessment,
		Grading:      grading,
		HTML:         html,
	}); err != nil {
		return "", fmt.Errorf("save report %d: %w", id, err)
	}
	p.metrics.ReportGenerated(assessment.Recommendation.Tier)

	if p.mailer != nil {
		err := p.mailer.SendReport(ctx, report.Subject(data), html)
		p.metrics.EmailSent("report", err)
		if err != nil {
			slog.Error("report email failed", "submission_id", id, "error", err)
		} else if err := p.store.MarkReportEmailed(id, now); err != nil {
			slog.Warn("could not record report email", "submission_id", id, "error", err)
		}
	}

	if err := p.store.SetSubmissionStatus(id, model.StatusReported); err != nil {
		return "", fmt.Errorf("mark submission %d reported: %w", id, err)
	}
	slog.Info("report generated", "submission_id", id,
		"overall_score", assessment.OverallScore,
		"recommendation", assessment.Recommendation.Tier)
	return model.StatusReported, nil
}

func (p *Processor) aggregatorFor(questions []model.Question) *scoring.Aggregator {
	if !p.fromBank {
		return p.aggregator
	}
	cfg := p.aggregator.Config()
	cfg.Totals = scoring.TotalsFromQuestions(questions, cfg.Totals)
	agg, err := scoring.New(cfg)
	if err != nil {
		slog.Warn("question bank totals rejected, using configured totals", "error", err)
		return p.aggregator
	}
	return agg
}

// grade returns nil when no grader could produce a result; the report is
// then built from the assessment alone.
func (p *Processor) grade(ctx context.Context, view *model.SubmissionView, a model.OverallAssessment) *model.GradingResult {
	res, err := p.grader.Grade(ctx, scoring.GradeRequest{
		Candidate:  view.Candidate,
		Questions:  view.Questions,
		Answers:    view.Submission.Answers,
		Assessment: a,
		ResumeText: p.resumeText(ctx, view),
	})
	if err != nil {
		slog.Error("grading failed", "submission_id", view.Submission.ID, "error", err)
		return nil
	}
	switch {
	case !p.hasPrimary:
		p.metrics.GraderOutcome(metrics.GraderHeuristic)
	case res.Grader == scoring.HeuristicGrader{}.Name():
		p.metrics.GraderOutcome(metrics.GraderFallback)
	default:
		p.metrics.GraderOutcome(metrics.GraderLLM)
	}
	return res
}

// resumeText extracts the candidate's resume for the grading prompt. Any
// failure just leaves the resume out.
func (p *Processor) resumeText(ctx context.Context, view *model.SubmissionView) string {
	if p.files == nil {
		return ""
	}
	for _, f := range view.Files {
		if f.Kind != model.FileResume {
			continue
		}
		data, err := p.files.Get(ctx, f.Bucket, f.Path)
		if err != nil {
			slog.Warn("resume download failed", "file_id", f.ID, "error", err)
			return ""
		}
		text, err := storage.ExtractText(f.ContentType, data)
		if err != nil {
			slog.Debug("resume text unavailable", "file_id", f.ID, "error", err)
			return ""
		}
		return text
	}
	return ""
}

func elapsedSeconds(s model.Submission) int {
	if s.ElapsedSeconds != 0 || s.SubmittedAt == nil {
		return s.ElapsedSeconds
	}
	return int(s.SubmittedAt.Sub(s.StartedAt).Seconds())
}
