package adminapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/wsuscatalog/wsuscatalog/internal/httputil"
)

type contextKey string

const contextOperator contextKey = "operator"

// requireAuth extracts the bearer token, validates it, and attaches the
// operator username it was issued for to the request context; verification
// is stateless JWT, no
// session lookup.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		operator, err := s.auth.Validate(token)
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), contextOperator, operator)
		next(w, r.WithContext(ctx))
	}
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
