package access

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"smartinlet/internal/apperr"
	"smartinlet/internal/models"
)

// TokenVerifier проверяет общий токен устройств. Отдельный интерфейс
// позволит подключить ротацию, не трогая маршруты.
type TokenVerifier interface {
	VerifyDeviceToken(token string) bool
}

// StaticToken: один статический токен из конфигурации.
type StaticToken string

func (t StaticToken) VerifyDeviceToken(token string) bool {
	if t == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1
}

// DeviceToken пропускает запрос только с валидным токеном:
// заголовок Device-Token или Authorization: Bearer <token>.
func DeviceToken(v TokenVerifier) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("Device-Token")
			if token == "" {
				const p = "Bearer "
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, p) {
					token = strings.TrimPrefix(auth, p)
				}
			}
			if !v.VerifyDeviceToken(token) {
				models.WriteError(w, apperr.Unauthenticated("invalid device token"), r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
