package middleware

import (
	"net/http"
)

const (
	// APIMaxBodySize bounds JSON request bodies.
	APIMaxBodySize int64 = 64 << 10
	// FormMaxBodySize bounds HTML form posts.
	FormMaxBodySize int64 = 32 << 10
)

// RequestSize wraps the body with http.MaxBytesReader. Handlers see a
// *http.MaxBytesError when the limit is exceeded.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
