// Package report renders the hiring report and the transactional email
// bodies as self-contained HTML.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/pavelanni/cloudhire/internal/model"
)

// Data is everything the report shows.
type Data struct {
	Candidate   model.Candidate
	Submission  model.Submission
	Questions   []model.Question
	Files       []model.FileRecord
	Assessment  model.OverallAssessment
	Grading     *model.GradingResult
	GeneratedAt time.Time
}

// Subject is the email subject line for a report.
func Subject(d Data) string {
	return fmt.Sprintf("Technical Assessment Report - %s (%s)", d.Candidate.FullName(), d.Assessment.Recommendation.Tier)
}

// RenderString renders a component into a string.
func RenderString(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// htmlWriter writes escaped and raw fragments and keeps the first error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *htmlWriter) rawf(format string, args ...any) {
	h.raw(fmt.Sprintf(format, args...))
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

// colors maps the recommendation color group onto palette values.
var colors = map[string]struct{ bg, border, text string }{
	"green":  {"#f0fdf4", "#22c55e", "#166534"},
	"yellow": {"#fefce8", "#eab308", "#854d0e"},
	"red":    {"#fef2f2", "#ef4444", "#991b1b"},
}

const style = `body{font-family:Inter,system-ui,sans-serif;background:#f9fafb;color:#1f2937;margin:0}
.wrap{max-width:56rem;margin:0 auto;padding:2rem}
.card{background:#fff;border:1px solid #e5e7eb;border-radius:.75rem;padding:1.5rem;margin-bottom:2rem}
header{display:flex;justify-content:space-between;border-bottom:1px solid #e5e7eb;margin-bottom:2rem}
.rings{display:flex;justify-content:space-around;flex-wrap:wrap;text-align:center}
.ring{position:relative;width:8rem;height:8rem}
.ring span{position:absolute;inset:0;display:flex;align-items:center;justify-content:center;font-size:1.75rem;font-weight:700}
table{width:100%;border-collapse:collapse}td,th{padding:.5rem;border-bottom:1px solid #e5e7eb;text-align:left}
.answer{padding:1rem;border-radius:.375rem;margin:.75rem 0}
.muted{color:#6b7280;font-size:.875rem}
@media print{.card{page-break-inside:avoid}}`

// Render returns the full HTML report.
func Render(d Data) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		a := d.Assessment
		name := d.Candidate.FullName()

		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="UTF-8"><title>Technical Assessment Report - `)
		h.text(name)
		h.raw(`</title><style>` + style + `</style></head><body><div class="wrap">`)

		h.raw(`<header><div><h1>Technical Assessment Report</h1><p class="muted">Candidate: `)
		h.text(name)
		h.raw(`</p></div><div style="text-align:right"><p class="muted">Date: `)
		h.text(submittedAt(d).Format("January 2, 2006"))
		h.raw(`</p><p class="muted">Report ID: `)
		h.text(d.Submission.PublicID)
		h.raw(`</p></div></header>`)

		h.raw(`<div class="card"><h2 style="text-align:center">Overall Exam Performance</h2><div class="rings">`)
		ring(h, a.CompletionRate, "#3b82f6", "Completion Rate",
			fmt.Sprintf("%d/%d Questions", a.TotalCompleted, totalQuestions(a)))
		ring(h, a.TimeEfficiencyScore, "#22c55e", "Time Efficiency",
			fmt.Sprintf("%s, %s total", a.TimeEfficiency, FormatDuration(a.ElapsedSeconds)))
		ring(h, a.OverallScore, "#a855f7", "Overall Score", string(a.Recommendation.Tier))
		h.raw(`</div></div>`)

		candidateInfo(h, d)
		sectionTable(h, a)
		recommendation(h, a.Recommendation)
		if d.Grading != nil {
			aiSummary(h, d.Grading)
		}
		answerReview(h, d)

		h.raw(`<footer class="muted" style="text-align:center;border-top:1px solid #e5e7eb;padding-top:1.5rem"><p>This report was automatically generated on `)
		h.text(d.GeneratedAt.Format("January 2, 2006 at 15:04 MST"))
		h.raw(`</p><p>Report ID: `)
		h.text(d.Submission.PublicID)
		h.raw(` | Confidential - For Internal Use Only</p></footer></div></body></html>`)
		return h.err
	})
}

func submittedAt(d Data) time.Time {
	if d.Submission.SubmittedAt != nil {
		return *d.Submission.SubmittedAt
	}
	return d.GeneratedAt
}

func totalQuestions(a model.OverallAssessment) int {
	s := a.Sections
	return s.MultipleChoice.Total + s.Concepts.Total + s.Calculations.Total
}

// FormatDuration renders seconds as "12m 5s".
func FormatDuration(seconds int) string {
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

// ring draws a circular progress indicator. The path has circumference 100,
// so the dash length equals the percentage.
func ring(h *htmlWriter, pct float64, color, label, detail string) {
	pct = math.Max(0, math.Min(100, pct))
	const arc = `M18 2.0845 a 15.9155 15.9155 0 0 1 0 31.831 a 15.9155 15.9155 0 0 1 0 -31.831`
	h.raw(`<div><div class="ring"><svg viewBox="0 0 36 36" style="transform:rotate(-90deg)">`)
	h.rawf(`<path d="%s" fill="none" stroke="#e5e7eb" stroke-width="3"/>`, arc)
	h.rawf(`<path d="%s" fill="none" stroke="%s" stroke-width="3" stroke-dasharray="%.1f, 100"/>`, arc, color, pct)
	h.rawf(`</svg><span style="color:%s">%d%%</span></div><p><strong>`, color, int(math.Round(pct)))
	h.text(label)
	h.raw(`</strong></p><p class="muted">`)
	h.text(detail)
	h.raw(`</p></div>`)
}

func candidateInfo(h *htmlWriter, d Data) {
	c := d.Candidate
	h.raw(`<div class="card"><h2>Candidate Information</h2><table>`)
	row := func(label, value string) {
		h.raw(`<tr><th>`)
		h.text(label)
		h.raw(`</th><td>`)
		h.text(value)
		h.raw(`</td></tr>`)
	}
	row("Name", c.FullName())
	row("Email", c.Email)
	row("Phone", c.Phone)
	row("Position", c.Position)
	row("Experience", c.Experience)
	row("Education", c.Education)
	if c.Motivation != "" {
		row("Motivation", c.Motivation)
	}
	if c.LinkedIn != "" {
		h.raw(`<tr><th>LinkedIn</th><td><a href="`)
		h.text(string(templ.URL(c.LinkedIn)))
		h.raw(`">Profile</a></td></tr>`)
	}
	for _, kind := range []model.FileKind{model.FileResume, model.FileTranscript, model.FileProject} {
		status := "Not provided"
		for _, f := range d.Files {
			if f.Kind == kind {
				status = "Uploaded (" + f.FileName + ")"
				break
			}
		}
		row(titleCase(string(kind)), status)
	}
	h.raw(`</table></div>`)
}

func sectionTable(h *htmlWriter, a model.OverallAssessment) {
	h.raw(`<div class="card"><h2>Section Breakdown</h2><table><tr><th>Section</th><th>Completed</th><th>Total</th><th>Percentage</th></tr>`)
	for _, s := range []struct {
		name string
		m    model.SectionMetric
	}{
		{"Multiple Choice", a.Sections.MultipleChoice},
		{"Concepts", a.Sections.Concepts},
		{"Calculations", a.Sections.Calculations},
	} {
		h.raw(`<tr><td>`)
		h.text(s.name)
		h.rawf(`</td><td>%d</td><td>%d</td><td>%.0f%%</td></tr>`, s.m.Completed, s.m.Total, s.m.Percentage)
	}
	h.raw(`</table></div>`)
}

func recommendation(h *htmlWriter, r model.Recommendation) {
	c, ok := colors[r.Color]
	if !ok {
		c = colors["yellow"]
	}
	h.raw(`<div class="card"><h2>Hiring Recommendation</h2>`)
	h.rawf(`<div style="background:%s;border-left:4px solid %s;padding:1.5rem;border-radius:0 .5rem .5rem 0">`, c.bg, c.border)
	h.rawf(`<h3 style="color:%s">`, c.text)
	h.text(string(r.Tier))
	h.raw(`</h3><p>`)
	h.text(r.Summary)
	h.raw(`</p><p><strong>Next Steps:</strong> `)
	h.text(r.NextSteps)
	h.raw(`</p></div></div>`)
}

func aiSummary(h *htmlWriter, g *model.GradingResult) {
	s := g.Summary
	h.raw(`<div class="card"><h2>AI Evaluation</h2><p class="muted">Graded by `)
	h.text(g.Grader)
	h.raw(`</p><p><strong>Hiring recommendation:</strong> `)
	h.text(string(s.HiringRecommendation))
	h.rawf(` &middot; <strong>Score:</strong> %.0f/100 &middot; <strong>Level:</strong> `, s.OverallScore)
	h.text(s.RecommendedLevel)
	h.raw(`</p>`)
	list := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		h.raw(`<h3>`)
		h.text(title)
		h.raw(`</h3><ul>`)
		for _, it := range items {
			h.raw(`<li>`)
			h.text(it)
			h.raw(`</li>`)
		}
		h.raw(`</ul>`)
	}
	list("Key Strengths", s.KeyStrengths)
	list("Areas for Improvement", s.AreasForImprovement)
	if s.DetailedAnalysis != "" {
		h.raw(`<h3>Detailed Analysis</h3><p>`)
		h.text(s.DetailedAnalysis)
		h.raw(`</p>`)
	}
	h.raw(`</div>`)
}

// answerState is the color of an answer box: correct, incorrect,
// unanswered or subjective.
type answerState string

const (
	stateCorrect    answerState = "correct"
	stateIncorrect  answerState = "incorrect"
	stateEmpty      answerState = "empty"
	stateSubjective answerState = "subjective"
)

var stateColors = map[answerState][2]string{
	stateCorrect:    {"#f0fdf4", "#14532d"},
	stateIncorrect:  {"#fef2f2", "#7f1d1d"},
	stateEmpty:      {"#f3f4f6", "#374151"},
	stateSubjective: {"#eff6ff", "#1e3a8a"},
}

func answerFor(q model.Question, d Data) (answer, explanation string, state answerState) {
	ans := d.Submission.Answers
	switch q.Section {
	case model.SectionMultipleChoice:
		answer = ans.MultipleChoice[q.Key]
		state = stateIncorrect
		if g, ok := gradeMC(d.Grading, q.Key); ok {
			if g.IsCorrect {
				state = stateCorrect
			}
		} else if strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectAnswer)) {
			state = stateCorrect
		}
	case model.SectionCalculation:
		answer = ans.CalcAnswerFor(q.Key)
		explanation = ans.CalcExplanationFor(q.Key)
		state = stateSubjective
		if d.Grading != nil {
			if g, ok := d.Grading.Calculations[q.Key]; ok {
				state = stateIncorrect
				if g.FinalAnswerCorrect {
					state = stateCorrect
				}
			}
		}
	case model.SectionConcept:
		answer = ans.Concepts[q.Key]
		state = stateSubjective
	case model.SectionBehavioral:
		answer = ans.Behavioral[q.Key]
		state = stateSubjective
	}
	if strings.TrimSpace(answer) == "" && strings.TrimSpace(explanation) == "" {
		state = stateEmpty
	}
	return answer, explanation, state
}

func gradeMC(g *model.GradingResult, key string) (model.MultipleChoiceGrade, bool) {
	if g == nil {
		return model.MultipleChoiceGrade{}, false
	}
	mc, ok := g.MultipleChoice[key]
	return mc, ok
}

var sectionNames = map[model.Section]string{
	model.SectionMultipleChoice: "Multiple Choice",
	model.SectionConcept:        "Concepts",
	model.SectionCalculation:    "Calculations",
	model.SectionBehavioral:     "Behavioral",
}

func answerReview(h *htmlWriter, d Data) {
	h.raw(`<div><h2>Detailed Answer Review</h2>`)
	for i, q := range d.Questions {
		answer, explanation, state := answerFor(q, d)
		c := stateColors[state]
		h.rawf(`<div class="card"><h3>Question %d <span class="muted">(`, i+1)
		h.text(sectionNames[q.Section])
		h.raw(`)</span></h3><p><strong>`)
		h.text(q.Text)
		h.raw(`</strong></p>`)
		if len(q.Options) > 0 {
			h.raw(`<p class="muted">Options: `)
			h.text(strings.Join(q.Options, ", "))
			h.raw(`</p>`)
		}
		h.rawf(`<div class="answer" style="background:%s;color:%s"><p class="muted">Candidate's Answer:</p><p>`, c[0], c[1])
		if answer == "" {
			h.raw(`No answer provided`)
		} else {
			h.text(answer)
		}
		h.raw(`</p>`)
		if explanation != "" {
			h.raw(`<p class="muted">Explanation:</p><p>`)
			h.text(explanation)
			h.raw(`</p>`)
		}
		h.raw(`</div>`)
		if q.CorrectAnswer != "" && q.Section != model.SectionConcept {
			h.raw(`<div class="answer" style="background:#f0fdf4;color:#14532d"><p class="muted">Expected Answer:</p><p>`)
			h.text(q.CorrectAnswer)
			h.raw(`</p></div>`)
		}
		feedback(h, d.Grading, q)
		h.raw(`</div>`)
	}
	h.raw(`</div>`)
}

func feedback(h *htmlWriter, g *model.GradingResult, q model.Question) {
	if g == nil {
		return
	}
	var score, outOf float64
	var text string
	switch q.Section {
	case model.SectionConcept:
		cg, ok := g.Concepts[q.Key]
		if !ok {
			return
		}
		score, outOf, text = cg.Score, 10, cg.Feedback
	case model.SectionCalculation:
		cg, ok := g.Calculations[q.Key]
		if !ok {
			return
		}
		score, outOf, text = cg.Score, 10, cg.Feedback
	default:
		return
	}
	h.rawf(`<p class="muted">Grade: %.1f/%.0f. `, score, outOf)
	h.text(text)
	h.raw(`</p>`)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Invite is the body of the candidate invitation email.
func Invite(link string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="UTF-8"><style>` + style + `</style></head><body><div class="wrap"><div class="card">`)
		h.raw(`<h1>Your technical assessment</h1><p>You have been invited to complete a technical assessment. `)
		h.raw(`The link below signs you in; it can be used once.</p><p><a href="`)
		h.text(string(templ.URL(link)))
		h.raw(`">Start the assessment</a></p><p class="muted">If you did not expect this email you can ignore it.</p>`)
		h.raw(`</div></div></body></html>`)
		return h.err
	})
}
