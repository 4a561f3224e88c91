package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// bearerAuth guards scheduler and event endpoints with a shared secret.
//
// An empty token disables the guarded endpoints entirely rather than
// leaving them open: a deployment without the secret configured must not
// accept external triggers.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			s.writeError(w, http.StatusServiceUnavailable, "scheduler endpoints disabled: no token configured")
			return
		}

		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
