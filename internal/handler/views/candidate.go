package views

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/cloudhire/internal/i18n"
	"github.com/pavelanni/cloudhire/internal/model"
)

// Form field prefixes for exam answers. Calculation fields use the text
// form of model.CalcKey after the prefix.
const (
	FieldMultipleChoice = "mc:"
	FieldConcept        = "concept:"
	FieldCalculation    = "calc:"
	FieldBehavioral     = "behavioral:"
)

// BioPage renders the candidate details form with the upload fields.
func BioPage(c model.Candidate, files []model.FileRecord, errs []string) templ.Component {
	return page("BioTitle", func(ctx context.Context, h *writer) {
		h.raw(`<div class="card"><h1>`)
		h.text(t(ctx, "BioTitle"))
		h.raw(`</h1>`)
		for _, e := range errs {
			flash(h, e, true)
		}
		h.rawf(`<form method="post" action="%s" enctype="multipart/form-data">`, url(ctx, "/bio"))
		csrfField(ctx, h)
		input(ctx, h, "text", "first_name", "FirstName", c.FirstName, true)
		input(ctx, h, "text", "last_name", "LastName", c.LastName, true)
		input(ctx, h, "email", "email", "Email", c.Email, true)
		input(ctx, h, "tel", "phone", "Phone", c.Phone, false)
		input(ctx, h, "text", "position", "Position", c.Position, true)
		textarea(ctx, h, "experience", "Experience", c.Experience)
		textarea(ctx, h, "education", "Education", c.Education)
		textarea(ctx, h, "motivation", "Motivation", c.Motivation)
		input(ctx, h, "url", "linkedin", "LinkedIn", c.LinkedIn, false)

		for _, kind := range []model.FileKind{model.FileResume, model.FileTranscript, model.FileProject} {
			h.rawf(`<label for="%s">`, kind)
			h.text(t(ctx, fileLabel(kind)))
			h.rawf(`</label><input type="file" id="%s" name="%s" accept=".pdf,.docx,.txt">`, kind, kind)
		}
		h.raw(`<p class="muted">`)
		h.text(t(ctx, "UploadHint"))
		h.raw(`</p>`)
		if len(files) > 0 {
			h.raw(`<h3>`)
			h.text(t(ctx, "UploadedFiles"))
			h.raw(`</h3><ul>`)
			for _, f := range files {
				h.raw(`<li>`)
				h.text(t(ctx, fileLabel(f.Kind)) + ": " + f.FileName)
				h.raw(`</li>`)
			}
			h.raw(`</ul>`)
		}
		h.raw(`<button class="btn" type="submit">`)
		h.text(t(ctx, "SaveAndContinue"))
		h.raw(`</button></form></div>`)
	})
}

func fileLabel(k model.FileKind) string {
	switch k {
	case model.FileResume:
		return "Resume"
	case model.FileTranscript:
		return "Transcript"
	default:
		return "Project"
	}
}

func input(ctx context.Context, h *writer, typ, name, labelID, value string, required bool) {
	h.rawf(`<label for="%s">`, name)
	h.text(t(ctx, labelID))
	h.rawf(`</label><input type="%s" id="%s" name="%s" value="`, typ, name, name)
	h.text(value)
	h.raw(`"`)
	if required {
		h.raw(` required`)
	}
	h.raw(`>`)
}

func textarea(ctx context.Context, h *writer, name, labelID, value string) {
	h.rawf(`<label for="%s">`, name)
	h.text(t(ctx, labelID))
	h.rawf(`</label><textarea id="%s" name="%s">`, name, name)
	h.text(value)
	h.raw(`</textarea>`)
}

// ExamData is what the exam page needs.
type ExamData struct {
	Info       model.ExamInfo
	Submission model.Submission
	Questions  []model.Question
	Deadline   time.Time
}

var scoredSections = []struct {
	section model.Section
	titleID string
}{
	{model.SectionMultipleChoice, "SectionMultipleChoice"},
	{model.SectionConcept, "SectionConcept"},
	{model.SectionCalculation, "SectionCalculation"},
}

// ExamPage renders the scored questions. Answers autosave through htmx on
// every change; the continue button saves and moves to the behavioral page.
func ExamPage(d ExamData) templ.Component {
	return page("ExamTitle", func(ctx context.Context, h *writer) {
		h.rawf(`<div class="timer" id="timer" data-deadline="%d">`, d.Deadline.Unix())
		h.text(t(ctx, "TimeRemaining"))
		h.raw(`: <span id="remaining"></span> <span class="muted" id="save-status"></span></div>`)
		h.raw(`<div class="card"><h1>`)
		if d.Info.Title != "" {
			h.text(d.Info.Title)
		} else {
			h.text(t(ctx, "ExamTitle"))
		}
		h.raw(`</h1><p class="muted">`)
		h.text(appI18n.Td(ctx, "TimeLimitNote", map[string]any{"Minutes": d.Info.TimeLimitMinutes}))
		h.raw(`</p></div>`)

		action := url(ctx, "/exam/answers")
		h.rawf(`<form method="post" action="%s" hx-post="%s" hx-trigger="change, keyup changed delay:2s" hx-target="#save-status">`, action, action)
		csrfField(ctx, h)
		answers := d.Submission.Answers
		for _, sec := range scoredSections {
			qs := questionsIn(d.Questions, sec.section)
			if len(qs) == 0 {
				continue
			}
			h.raw(`<div class="card"><h2>`)
			h.text(t(ctx, sec.titleID))
			h.raw(`</h2>`)
			for i, q := range qs {
				h.rawf(`<div class="question"><p><strong>%d.</strong> `, i+1)
				h.text(q.Text)
				h.raw(`</p>`)
				switch q.Section {
				case model.SectionMultipleChoice:
					for _, opt := range q.Options {
						h.raw(`<label style="font-weight:normal"><input type="radio" name="`)
						h.text(FieldMultipleChoice + q.Key)
						h.raw(`" value="`)
						h.text(opt)
						h.raw(`"`)
						if answers.MultipleChoice[q.Key] == opt {
							h.raw(` checked`)
						}
						h.raw(`> `)
						h.text(opt)
						h.raw(`</label>`)
					}
				case model.SectionConcept:
					answerArea(ctx, h, FieldConcept+q.Key, "YourAnswer", answers.Concepts[q.Key])
				case model.SectionCalculation:
					key := model.CalcKey{QuestionID: q.Key, Field: model.CalcAnswer}
					h.raw(`<label>`)
					h.text(t(ctx, "YourAnswer"))
					h.raw(`</label><input type="text" name="`)
					h.text(FieldCalculation + key.String())
					h.raw(`" value="`)
					h.text(answers.Calculations[key])
					h.raw(`">`)
					expl := model.CalcKey{QuestionID: q.Key, Field: model.CalcExplanation}
					answerArea(ctx, h, FieldCalculation+expl.String(), "Explanation", answers.Calculations[expl])
				}
				h.raw(`</div>`)
			}
			h.raw(`</div>`)
		}
		h.raw(`<input type="hidden" name="next" value="behavioral">`)
		h.raw(`<button class="btn" type="submit">`)
		h.text(t(ctx, "Continue"))
		h.raw(`</button></form>`)
		h.raw(countdownScript)
	})
}

func answerArea(ctx context.Context, h *writer, name, labelID, value string) {
	h.raw(`<label>`)
	h.text(t(ctx, labelID))
	h.raw(`</label><textarea name="`)
	h.text(name)
	h.raw(`">`)
	h.text(value)
	h.raw(`</textarea>`)
}

func questionsIn(qs []model.Question, s model.Section) []model.Question {
	var out []model.Question
	for _, q := range qs {
		if q.Section == s {
			out = append(out, q)
		}
	}
	return out
}

const countdownScript = `<script>
(function(){var el=document.getElementById("timer");if(!el)return;
var end=parseInt(el.dataset.deadline,10)*1000,out=document.getElementById("remaining");
function tick(){var s=Math.max(0,Math.floor((end-Date.now())/1000));
out.textContent=Math.floor(s/60)+":"+String(s%60).padStart(2,"0");}
tick();setInterval(tick,1000);})();
</script>`

// SavedFragment is the htmx response to an autosave.
func SavedFragment(at time.Time) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &writer{w: w}
		h.text(fmt.Sprintf("%s %s", t(ctx, "Saved"), at.Format("15:04:05")))
		return h.err
	})
}

// BehavioralPage renders the unscored questions and the final submit button.
func BehavioralPage(questions []model.Question, answers model.AnswerSet) templ.Component {
	return page("SectionBehavioral", func(ctx context.Context, h *writer) {
		h.raw(`<div class="card"><h1>`)
		h.text(t(ctx, "SectionBehavioral"))
		h.raw(`</h1><p class="muted">`)
		h.text(t(ctx, "BehavioralIntro"))
		h.raw(`</p></div>`)
		h.rawf(`<form method="post" action="%s" hx-post="%s" hx-trigger="change, keyup changed delay:2s" hx-target="#save-status">`,
			url(ctx, "/exam/submit"), url(ctx, "/behavioral"))
		csrfField(ctx, h)
		h.raw(`<div class="card">`)
		for i, q := range questions {
			h.rawf(`<div class="question"><p><strong>%d.</strong> `, i+1)
			h.text(q.Text)
			h.raw(`</p>`)
			answerArea(ctx, h, FieldBehavioral+q.Key, "YourAnswer", answers.Behavioral[q.Key])
			h.raw(`</div>`)
		}
		h.raw(`<span class="muted" id="save-status"></span></div>`)
		h.rawf(`<a class="btn secondary" href="%s">`, url(ctx, "/exam"))
		h.text(t(ctx, "Back"))
		h.raw(`</a> <button class="btn" type="submit" onclick="return confirm(this.dataset.confirm)" data-confirm="`)
		h.text(t(ctx, "SubmitConfirm"))
		h.raw(`">`)
		h.text(t(ctx, "SubmitExam"))
		h.raw(`</button></form>`)
	})
}

// DonePage confirms the submission.
func DonePage(sub *model.Submission) templ.Component {
	return page("DoneTitle", func(ctx context.Context, h *writer) {
		h.raw(`<div class="card"><h1>`)
		h.text(t(ctx, "DoneTitle"))
		h.raw(`</h1><p>`)
		h.text(t(ctx, "DoneMessage"))
		h.raw(`</p>`)
		if sub != nil && sub.SubmittedAt != nil {
			h.raw(`<p class="muted">`)
			h.text(strings.TrimSpace(t(ctx, "Submitted") + ": " + sub.SubmittedAt.Format("2006-01-02 15:04")))
			h.raw(`</p>`)
		}
		h.raw(`</div>`)
	})
}
