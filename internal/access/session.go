package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"smartinlet/internal/apperr"
	"smartinlet/internal/logs"
	"smartinlet/internal/models"
)

const userIDKey = "user_id"

// UserLoader: источник актуальных прав пользователя.
type UserLoader interface {
	ByID(ctx context.Context, id uint) (*models.User, error)
}

// SessionManager хранит в cookie только id пользователя;
// права перечитываются из БД на каждом запросе.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	users UserLoader
}

func NewSessionManager(key, name, domain string, maxAge time.Duration, secure bool, users UserLoader) (*SessionManager, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("session key must be at least 32 bytes, got %d", len(key))
	}
	store := sessions.NewCookieStore([]byte(key))
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		store.Options.SameSite = http.SameSiteNoneMode
	}
	return &SessionManager{store: store, name: name, users: users}, nil
}

// LoadIdentity кладёт Identity в контекст, если сессия валидна и пользователь активирован.
func (m *SessionManager) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.store.Get(r, m.name)
		if err != nil {
			// битая или чужая cookie — работаем как аноним
			next.ServeHTTP(w, r)
			return
		}
		uid, ok := sess.Values[userIDKey].(uint)
		if !ok || uid == 0 {
			next.ServeHTTP(w, r)
			return
		}
		u, err := m.users.ByID(r.Context(), uid)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
		case err != nil:
			logs.Logger.WithError(err).WithField("user_id", uid).Warn("session user lookup failed")
		case u.IsActivated:
			r = r.WithContext(WithIdentity(r.Context(), IdentityOf(u)))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u *models.User) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values[userIDKey] = u.ID
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	logs.Logger.WithFields(logrus.Fields{"user": u.Username}).Info("signed in")
	return nil
}

func (m *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	delete(sess.Values, userIDKey)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// RequireSignedIn: 401 без идентичности в контексте.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := Actor(r.Context()); err != nil {
			models.WriteError(w, err, r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireDevices: 401/403 без права администрировать устройства.
func RequireDevices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := RequireDeviceAdmin(r.Context()); err != nil {
			models.WriteError(w, err, r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUsers: 401/403 без права администрировать пользователей.
func RequireUsers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := RequireUserAdmin(r.Context()); err != nil {
			models.WriteError(w, err, r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
