// Package views holds the server-rendered pages. Components are written
// directly against templ.ComponentFunc.
package views

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/cloudhire/internal/i18n"
	"github.com/pavelanni/cloudhire/internal/model"
)

type writer struct {
	w   io.Writer
	err error
}

func (h *writer) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *writer) rawf(format string, args ...any) {
	h.raw(fmt.Sprintf(format, args...))
}

// text writes s escaped; safe for element content and quoted attributes.
func (h *writer) text(s string) {
	h.raw(templ.EscapeString(s))
}

// url prefixes an application path with the deployment base path.
func url(ctx context.Context, p string) string {
	return string(templ.URL(model.BasePathFromContext(ctx) + p))
}

func t(ctx context.Context, id string) string {
	return appI18n.T(ctx, id)
}

func csrfField(ctx context.Context, h *writer) {
	h.raw(`<input type="hidden" name="csrf_token" value="`)
	h.text(model.CSRFTokenFromContext(ctx))
	h.raw(`">`)
}

const style = `body{font-family:Inter,system-ui,sans-serif;background:#f9fafb;color:#1f2937;margin:0}
nav{display:flex;justify-content:space-between;align-items:center;padding:.75rem 2rem;background:#1e3a8a;color:#fff}
nav a,nav button{color:#fff;background:none;border:0;font:inherit;cursor:pointer;margin-left:1rem}
main{max-width:56rem;margin:0 auto;padding:2rem}
.card{background:#fff;border:1px solid #e5e7eb;border-radius:.75rem;padding:1.5rem;margin-bottom:1.5rem}
label{display:block;font-weight:600;margin:.75rem 0 .25rem}
input[type=text],input[type=email],input[type=password],input[type=url],input[type=tel],textarea,select{width:100%;padding:.5rem;border:1px solid #d1d5db;border-radius:.375rem;box-sizing:border-box}
textarea{min-height:6rem}
.btn{background:#2563eb;color:#fff;border:0;border-radius:.375rem;padding:.6rem 1.2rem;font-weight:600;cursor:pointer;margin-top:1rem}
.btn.secondary{background:#6b7280}
.flash{padding:.75rem 1rem;border-radius:.375rem;margin-bottom:1rem;background:#eff6ff;border:1px solid #93c5fd}
.flash.error{background:#fef2f2;border-color:#fca5a5}
table{width:100%;border-collapse:collapse}td,th{padding:.5rem;border-bottom:1px solid #e5e7eb;text-align:left}
.muted{color:#6b7280;font-size:.875rem}
.timer{position:sticky;top:0;background:#fff;padding:.5rem 1rem;border-bottom:1px solid #e5e7eb;font-weight:600}
iframe{width:100%;height:80vh;border:1px solid #e5e7eb;border-radius:.75rem;background:#fff}`

// page wraps body in the shared layout; titleID is a message ID.
func page(titleID string, body func(ctx context.Context, h *writer)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &writer{w: w}
		h.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1"><title>`)
		h.text(t(ctx, titleID))
		h.raw(` | `)
		h.text(t(ctx, "AppTitle"))
		h.raw(`</title><style>` + style + `</style>`)
		h.raw(`<script src="https://unpkg.com/htmx.org@2.0.4" defer></script></head><body>`)
		nav(ctx, h)
		h.raw(`<main>`)
		body(ctx, h)
		h.raw(`</main></body></html>`)
		return h.err
	})
}

func nav(ctx context.Context, h *writer) {
	h.raw(`<nav><strong>`)
	h.text(t(ctx, "AppTitle"))
	h.raw(`</strong><div>`)
	if u := model.UserFromContext(ctx); u != nil {
		if u.Role == model.UserRoleAdmin {
			h.rawf(`<a href="%s">%s</a>`, url(ctx, "/admin"), templ.EscapeString(t(ctx, "Dashboard")))
			h.rawf(`<a href="%s">%s</a>`, url(ctx, "/admin/questions"), templ.EscapeString(t(ctx, "Questions")))
			h.rawf(`<a href="%s">%s</a>`, url(ctx, "/admin/users"), templ.EscapeString(t(ctx, "Users")))
		}
		h.rawf(`<form method="post" action="%s" style="display:inline">`, url(ctx, "/logout"))
		csrfField(ctx, h)
		h.raw(`<button type="submit">`)
		h.text(t(ctx, "Logout"))
		h.raw(` (`)
		h.text(displayName(u))
		h.raw(`)</button></form>`)
	}
	h.raw(`</div></nav>`)
}

func displayName(u *model.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func flash(h *writer, msg string, isErr bool) {
	if msg == "" {
		return
	}
	if isErr {
		h.raw(`<div class="flash error">`)
	} else {
		h.raw(`<div class="flash">`)
	}
	h.text(msg)
	h.raw(`</div>`)
}

// MessagePage shows a single titled message. Both arguments are message IDs.
func MessagePage(titleID, msgID string) templ.Component {
	return page(titleID, func(ctx context.Context, h *writer) {
		h.raw(`<div class="card"><h1>`)
		h.text(t(ctx, titleID))
		h.raw(`</h1><p>`)
		h.text(t(ctx, msgID))
		h.raw(`</p></div>`)
	})
}
