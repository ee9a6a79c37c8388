// internal/middleware/security.go
//
// Response-header middleware for the status endpoints.
//
// Injects headers on every response:
//
//   • Cache-Control           –  resolved configuration is never cached
//   • X-Content-Type-Options  –  MIME-sniffing defence
//   • X-Frame-Options         –  click-jacking defence
//   • Referrer-Policy         –  no Referer leaves the status server
//
// Notes
// -----
// • Headers are set before next.ServeHTTP so they reach the client even
//   when the handler writes the body immediately; a handler may still
//   override any of them.
// • Two spaces after periods.

package middleware

import "net/http"

// Security sets protective headers for every response.
func Security(next http.Handler) http.Handler {
	const (
		noStore = "no-store"
		nosn    = "nosniff"
		xfo     = "DENY"
		refer   = "no-referrer"
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", noStore)
		h.Set("X-Content-Type-Options", nosn)
		h.Set("X-Frame-Options", xfo)
		h.Set("Referrer-Policy", refer)
		next.ServeHTTP(w, r)
	})
}
