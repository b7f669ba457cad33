package views

import (
	"context"

	"github.com/a-h/templ"
)

// LoginPage renders the administrator sign-in form.
func LoginPage(errMsg string) templ.Component {
	return page("Login", func(ctx context.Context, h *writer) {
		h.raw(`<div class="card"><h1>`)
		h.text(t(ctx, "Login"))
		h.raw(`</h1>`)
		flash(h, errMsg, true)
		h.rawf(`<form method="post" action="%s">`, url(ctx, "/login"))
		csrfField(ctx, h)
		h.raw(`<label for="username">`)
		h.text(t(ctx, "Username"))
		h.raw(`</label><input type="text" id="username" name="username" required autofocus>`)
		h.raw(`<label for="password">`)
		h.text(t(ctx, "Password"))
		h.raw(`</label><input type="password" id="password" name="password" required>`)
		h.raw(`<button class="btn" type="submit">`)
		h.text(t(ctx, "Login"))
		h.raw(`</button></form><p class="muted">`)
		h.text(t(ctx, "CandidateLoginHint"))
		h.raw(`</p></div>`)
	})
}
