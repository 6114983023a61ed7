package middleware

import (
	"net/http"
	"strings"
)

// NoStore marks responses as uncacheable, except content-hashed build assets
// under any of the immutable prefixes, which may be cached for a year.
func NoStore(immutable ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range immutable {
				if strings.HasPrefix(r.URL.Path, p) {
					w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
			next.ServeHTTP(w, r)
		})
	}
}
