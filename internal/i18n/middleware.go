package i18n

import "net/http"

// Middleware picks a localizer per request. A lang query parameter wins
// over the Accept-Language header; lang is the fallback. With negotiate
// false every request uses lang.
func Middleware(lang string, negotiate bool) func(http.Handler) http.Handler {
	fixed := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fixed
			if negotiate {
				loc = NewLocalizer(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"), lang)
			}
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}
