package views

import (
	"context"
	"fmt"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/cloudhire/internal/i18n"
	"github.com/pavelanni/cloudhire/internal/model"
)

// Invite is the result of issuing a magic link, shown once on the dashboard.
type Invite struct {
	Email   string
	Link    string
	Emailed bool
}

// Flash is an optional status message.
type Flash struct {
	Message string
	IsError bool
}

var statusIDs = map[model.SubmissionStatus]string{
	model.StatusInProgress:  "StatusInProgress",
	model.StatusSubmitted:   "StatusSubmitted",
	model.StatusProcessing:  "StatusProcessing",
	model.StatusReported:    "StatusReported",
	model.StatusNeedsReview: "StatusNeedsReview",
}

func status(ctx context.Context, s model.SubmissionStatus) string {
	if id, ok := statusIDs[s]; ok {
		return t(ctx, id)
	}
	return string(s)
}

// AdminDashboard lists submissions and holds the invite form.
func AdminDashboard(rows []model.SubmissionRow, invite *Invite, f Flash) templ.Component {
	return page("Dashboard", func(ctx context.Context, h *writer) {
		flash(h, f.Message, f.IsError)
		h.raw(`<div class="card"><h2>`)
		h.text(t(ctx, "InviteCandidate"))
		h.raw(`</h2>`)
		if invite != nil {
			h.raw(`<div class="flash"><p>`)
			h.text(appI18n.Td(ctx, "InviteLink", map[string]any{"Email": invite.Email}))
			h.raw(`</p><input type="text" readonly onclick="this.select()" value="`)
			h.text(invite.Link)
			h.raw(`">`)
			if invite.Emailed {
				h.raw(`<p class="muted">`)
				h.text(t(ctx, "InviteEmailed"))
				h.raw(`</p>`)
			}
			h.raw(`</div>`)
		}
		h.rawf(`<form method="post" action="%s">`, url(ctx, "/admin/invites"))
		csrfField(ctx, h)
		h.raw(`<label for="email">`)
		h.text(t(ctx, "Email"))
		h.raw(`</label><input type="email" id="email" name="email" required>`)
		h.raw(`<button class="btn" type="submit">`)
		h.text(t(ctx, "SendInvite"))
		h.raw(`</button></form></div>`)

		h.raw(`<div class="card"><h2>`)
		h.text(appI18n.Tp(ctx, "SubmissionsCount", len(rows)))
		h.raw(`</h2>`)
		if len(rows) == 0 {
			h.raw(`<p class="muted">`)
			h.text(t(ctx, "NoSubmissions"))
			h.raw(`</p></div>`)
			return
		}
		h.raw(`<table><thead><tr>`)
		for _, id := range []string{"Candidate", "Position", "Status", "Submitted", "Score", "Recommendation"} {
			h.raw(`<th>`)
			h.text(t(ctx, id))
			h.raw(`</th>`)
		}
		h.raw(`</tr></thead><tbody>`)
		for _, r := range rows {
			h.rawf(`<tr><td><a href="%s">`, url(ctx, fmt.Sprintf("/admin/submissions/%d", r.Submission.ID)))
			h.text(r.CandidateName)
			h.raw(`</a><br><span class="muted">`)
			h.text(r.CandidateEmail)
			h.raw(`</span></td><td>`)
			h.text(r.Position)
			h.raw(`</td><td>`)
			h.text(status(ctx, r.Submission.Status))
			h.raw(`</td><td>`)
			if r.Submission.SubmittedAt != nil {
				h.text(r.Submission.SubmittedAt.Format("2006-01-02 15:04"))
			}
			h.raw(`</td><td>`)
			if r.OverallScore != nil {
				h.rawf(`%.0f`, *r.OverallScore)
			}
			h.raw(`</td><td>`)
			h.text(string(r.Tier))
			h.raw(`</td></tr>`)
		}
		h.raw(`</tbody></table></div>`)
	})
}

// SubmissionPage shows one submission with its stored report, or a notice
// when no report exists yet.
func SubmissionPage(v model.SubmissionView, f Flash) templ.Component {
	return page("Submission", func(ctx context.Context, h *writer) {
		flash(h, f.Message, f.IsError)
		h.raw(`<div class="card"><h1>`)
		h.text(v.Candidate.FullName())
		h.raw(`</h1><p>`)
		h.text(v.Candidate.Email + " · " + v.Candidate.Position)
		h.raw(`</p><p class="muted">`)
		h.text(t(ctx, "Status") + ": " + status(ctx, v.Submission.Status))
		h.raw(`</p>`)
		if len(v.Files) > 0 {
			h.raw(`<h3>`)
			h.text(t(ctx, "Files"))
			h.raw(`</h3><ul>`)
			for _, file := range v.Files {
				h.rawf(`<li><a href="%s">`, url(ctx, fmt.Sprintf("/files/%d", file.ID)))
				h.text(t(ctx, fileLabel(file.Kind)) + ": " + file.FileName)
				h.raw(`</a></li>`)
			}
			h.raw(`</ul>`)
		}
		if v.Submission.Status != model.StatusInProgress {
			h.rawf(`<form method="post" action="%s">`, url(ctx, fmt.Sprintf("/admin/submissions/%d/report", v.Submission.ID)))
			csrfField(ctx, h)
			h.raw(`<button class="btn secondary" type="submit">`)
			h.text(t(ctx, "RegenerateReport"))
			h.raw(`</button></form>`)
		}
		h.raw(`</div>`)

		if v.Report == nil {
			if v.Submission.Status != model.StatusInProgress {
				flash(h, t(ctx, "ReportUnavailable"), true)
			}
			return
		}
		h.raw(`<iframe title="report" sandbox srcdoc="`)
		h.text(v.Report.HTML)
		h.raw(`"></iframe>`)
	})
}

// AdminQuestionsPage lists the question bank and the upload form.
func AdminQuestionsPage(questions []model.Question, f Flash) templ.Component {
	return page("Questions", func(ctx context.Context, h *writer) {
		flash(h, f.Message, f.IsError)
		h.raw(`<div class="card"><h2>`)
		h.text(t(ctx, "UploadQuestions"))
		h.raw(`</h2>`)
		h.rawf(`<form method="post" action="%s" enctype="multipart/form-data">`, url(ctx, "/admin/questions"))
		csrfField(ctx, h)
		h.raw(`<input type="file" name="questions_file" accept=".json,.yaml,.yml,.csv" required><p class="muted">`)
		h.text(t(ctx, "UploadQuestionsHint"))
		h.raw(`</p><button class="btn" type="submit">`)
		h.text(t(ctx, "Upload"))
		h.raw(`</button></form></div>`)

		h.raw(`<div class="card"><h2>`)
		h.text(appI18n.Tp(ctx, "QuestionsCount", len(questions)))
		h.raw(`</h2><table><tbody>`)
		for _, q := range questions {
			h.raw(`<tr><td><code>`)
			h.text(q.Key)
			h.raw(`</code></td><td>`)
			h.text(string(q.Section))
			h.raw(`</td><td>`)
			h.text(q.Text)
			h.raw(`</td><td>`)
			h.text(q.Difficulty)
			h.raw(`</td></tr>`)
		}
		h.raw(`</tbody></table></div>`)
	})
}

// AdminUsersPage lists users with activation toggles and a form for new
// administrators.
func AdminUsersPage(users []model.User, f Flash) templ.Component {
	return page("Users", func(ctx context.Context, h *writer) {
		flash(h, f.Message, f.IsError)
		h.raw(`<div class="card"><table><thead><tr>`)
		for _, id := range []string{"Username", "Email", "Role", "Status", ""} {
			h.raw(`<th>`)
			if id != "" {
				h.text(t(ctx, id))
			}
			h.raw(`</th>`)
		}
		h.raw(`</tr></thead><tbody>`)
		for _, u := range users {
			h.raw(`<tr><td>`)
			h.text(u.Username)
			h.raw(`</td><td>`)
			h.text(u.Email)
			h.raw(`</td><td>`)
			h.text(string(u.Role))
			h.raw(`</td><td>`)
			if u.Active {
				h.text(t(ctx, "Active"))
			} else {
				h.text(t(ctx, "Inactive"))
			}
			h.rawf(`</td><td><form method="post" action="%s">`, url(ctx, fmt.Sprintf("/admin/users/%d/toggle", u.ID)))
			csrfField(ctx, h)
			h.raw(`<button class="btn secondary" type="submit">`)
			h.text(t(ctx, "ToggleActive"))
			h.raw(`</button></form></td></tr>`)
		}
		h.raw(`</tbody></table></div>`)

		h.raw(`<div class="card"><h2>`)
		h.text(t(ctx, "CreateUser"))
		h.raw(`</h2>`)
		h.rawf(`<form method="post" action="%s">`, url(ctx, "/admin/users"))
		csrfField(ctx, h)
		input(ctx, h, "text", "username", "Username", "", true)
		input(ctx, h, "text", "display_name", "DisplayName", "", false)
		input(ctx, h, "email", "email", "Email", "", false)
		h.raw(`<label for="password">`)
		h.text(t(ctx, "Password"))
		h.raw(`</label><input type="password" id="password" name="password" required>`)
		h.raw(`<button class="btn" type="submit">`)
		h.text(t(ctx, "CreateUser"))
		h.raw(`</button></form></div>`)
	})
}
