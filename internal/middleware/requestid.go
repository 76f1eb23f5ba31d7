package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"smartinlet/internal/logs"
)

type ctxKey string

const requestIDKey ctxKey = "reqid"

// RequestID берёт X-Request-Id клиента или выдаёт новый.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(r *http.Request) string {
	v := r.Context().Value(requestIDKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Log: логгер с reqid запроса.
func Log(r *http.Request) *logrus.Entry {
	return logs.Logger.WithField("reqid", GetRequestID(r))
}
