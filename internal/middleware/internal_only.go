package middleware

import (
	"net"
	"net/http"
	"strings"
)

// InternalOnly пропускает запрос только с приватных IP или при заголовке X-Internal-Secret == secret.
// Используется для /metrics: скрейпер живёт в той же сети.
func InternalOnly(secret string) func(http.Handler) http.Handler {
	secret = strings.TrimSpace(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" && r.Header.Get("X-Internal-Secret") == secret {
				next.ServeHTTP(w, r)
				return
			}
			// RealIP уже перенёс X-Real-Ip / X-Forwarded-For в RemoteAddr.
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if isPrivateIP(host) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, `{"message":"forbidden"}`, http.StatusForbidden)
		})
	}
}

func isPrivateIP(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}
