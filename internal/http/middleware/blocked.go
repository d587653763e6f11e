package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"eventmitra/backend/internal/models"
)

// BlockChecker reports whether a user account is blocked.
type BlockChecker interface {
	IsUserBlocked(ctx context.Context, userID int64) (bool, error)
}

// BlockedUserMiddleware rejects blocked accounts with 403. Admins are never
// checked.
func BlockedUserMiddleware(checker BlockChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if checker == nil || RoleFromContext(r.Context()) == models.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			blocked, err := checker.IsUserBlocked(r.Context(), userID)
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if blocked {
				writeBlocked(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeBlocked(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "blocked",
		"message": "Your account has been blocked",
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
