package middleware

import (
	"net/http"
	"strings"

	"github.com/travelmate/chat/internal/auth"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/metrics"
)

// TokenVerifier проверяет bearer-токен сервиса авторизации.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// bearerToken берёт токен из Authorization: Bearer <token>, иначе из query ?token=
// (браузерный WebSocket не умеет выставлять заголовки).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// BearerAuth привязывает запрос к пользователю из токена. Без валидного токена отвечает 401.
func BearerAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			claims, err := v.Verify(token)
			if err != nil {
				if token != "" {
					logger.Debugf("bearer auth token=%s: %v", maskToken(token), err)
				}
				writeUnauthorized(w)
				return
			}
			ctx := WithIdentity(r.Context(), claims.UserID, claims.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// maskToken оставляет в логах только начало токена.
func maskToken(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:8] + "***"
}

func writeUnauthorized(w http.ResponseWriter) {
	metrics.IncHTTPRejected("unauthorized")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"message":"unauthorized"}`))
}
