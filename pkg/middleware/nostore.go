package middleware

import "net/http"

// NoStore marks responses as uncacheable. Protected views carry
// authenticated data that must not outlive a logout in a browser cache.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}
