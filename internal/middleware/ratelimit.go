package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"smartinlet/internal/apperr"
	"smartinlet/internal/models"
)

// KeyFunc выбирает, чей бюджет тратит запрос.
type KeyFunc func(r *http.Request) string

// DeviceKey: вид и id устройства из маршрута, иначе IP клиента.
func DeviceKey(r *http.Request) string {
	vars := mux.Vars(r)
	for _, name := range []string{"deviceId", "sensorId"} {
		if id := vars[name]; id != "" {
			kind := vars["kind"]
			if kind == "" {
				kind = "inlet"
			}
			return kind + ":" + id
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter: token bucket на ключ. Неиспользуемые ключи вычищаются.
type RateLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	idle    time.Duration
	key     KeyFunc
	now     func() time.Time
	entries map[string]*limiterEntry
	sweep   time.Time
}

func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		key:     key,
		now:     time.Now,
		entries: make(map[string]*limiterEntry),
	}
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.sweep) > l.idle {
		for k, e := range l.entries {
			if now.Sub(e.seen) > l.idle {
				delete(l.entries, k)
			}
		}
		l.sweep = now
	}
	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// Middleware отвечает 429 при исчерпании бюджета ключа.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.key(r)
		if !l.allow(key) {
			Log(r).WithField("key", key).Warn("rate limited")
			w.Header().Set("Retry-After", "1")
			models.WriteError(w, apperr.RateLimited("too many requests"), r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
