package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cloudnine/checkin-server-go/internal/model"
	"github.com/cloudnine/checkin-server-go/internal/repository"
	"github.com/cloudnine/checkin-server-go/internal/util"
)

type contextKey string

const StaffContextKey contextKey = "staff"

func GetStaff(ctx context.Context) *model.Staff {
	if staff, ok := ctx.Value(StaffContextKey).(*model.Staff); ok {
		return staff
	}
	return nil
}

// AuthMiddleware authenticates staff by API token. Tokens are stored hashed;
// the lookup key is the SHA-256 of the presented bearer token.
type AuthMiddleware struct {
	staffRepo repository.StaffRepository
}

func NewAuthMiddleware(staffRepo repository.StaffRepository) *AuthMiddleware {
	return &AuthMiddleware{staffRepo: staffRepo}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing authentication token",
			})
			return
		}

		tokenHash := util.HashToken(token)
		staff, err := m.staffRepo.FindByTokenHash(r.Context(), tokenHash)
		if err != nil {
			log.Error().Err(err).Msg("auth middleware: database error")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Authentication failed",
			})
			return
		}

		if staff == nil {
			log.Warn().Msg("auth middleware: invalid token attempt")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid token",
			})
			return
		}

		ctx := context.WithValue(r.Context(), StaffContextKey, staff)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	// SSE clients cannot set headers from EventSource, so a query token is
	// accepted as a fallback.
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
