package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// RequireAdminKey gates administrative endpoints behind an X-Admin-Key
// header checked against a bcrypt hash. With no hash configured the
// endpoint is disabled outright rather than left open.
func RequireAdminKey(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				http.Error(w, `{"error":"admin endpoints are disabled"}`, http.StatusForbidden)
				return
			}
			key := r.Header.Get("X-Admin-Key")
			if key == "" || bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
				http.Error(w, `{"error":"invalid admin key"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
