package access_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"smartinlet/internal/access"
	"smartinlet/internal/apperr"
	"smartinlet/internal/models"
)

type users map[uint]*models.User

func (u users) ByID(_ context.Context, id uint) (*models.User, error) {
	if x, ok := u[id]; ok {
		return x, nil
	}
	return nil, apperr.NotFound("user not found")
}

func TestDeviceToken(t *testing.T) {
	h := access.DeviceToken(access.StaticToken("s3cret"))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"device header", "Device-Token", "s3cret", http.StatusNoContent},
		{"bearer", "Authorization", "Bearer s3cret", http.StatusNoContent},
		{"wrong", "Device-Token", "nope", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/iot/inlet/1/try", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	if access.StaticToken("").VerifyDeviceToken("") {
		t.Fatal("empty token must never verify")
	}
}

func TestRequireRights(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	plain := &access.Identity{UserID: 1, Username: "ann"}
	admin := &access.Identity{UserID: 2, Username: "root", CanAdministrateDevices: true}

	cases := []struct {
		name string
		mw   func(http.Handler) http.Handler
		id   *access.Identity
		want int
	}{
		{"anonymous", access.RequireSignedIn, nil, http.StatusUnauthorized},
		{"signed in", access.RequireSignedIn, plain, http.StatusOK},
		{"devices denied", access.RequireDevices, plain, http.StatusForbidden},
		{"devices allowed", access.RequireDevices, admin, http.StatusOK},
		{"users denied", access.RequireUsers, admin, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			if tc.id != nil {
				req = req.WithContext(access.WithIdentity(req.Context(), tc.id))
			}
			rec := httptest.NewRecorder()
			tc.mw(next).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestSessionRoundTrip(t *testing.T) {
	db := users{
		1: {ID: 1, Username: "ann", IsActivated: true, CanAdministrateUsers: true},
		2: {ID: 2, Username: "bob"},
	}
	m, err := access.NewSessionManager(strings.Repeat("k", 32), "sid", "", time.Hour, false, db)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	signIn := func(u *models.User) *http.Cookie {
		rec := httptest.NewRecorder()
		if err := m.SignIn(rec, httptest.NewRequest(http.MethodPost, "/", nil), u); err != nil {
			t.Fatalf("SignIn: %v", err)
		}
		cookies := rec.Result().Cookies()
		if len(cookies) == 0 {
			t.Fatal("no session cookie")
		}
		return cookies[0]
	}
	identity := func(c *http.Cookie) *access.Identity {
		var got *access.Identity
		h := m.LoadIdentity(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got, _ = access.FromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if c != nil {
			req.AddCookie(c)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		return got
	}

	id := identity(signIn(db[1]))
	if id == nil || id.Username != "ann" || !id.CanAdministrateUsers {
		t.Fatalf("identity = %+v", id)
	}
	if id := identity(signIn(db[2])); id != nil {
		t.Fatalf("unactivated user got identity %+v", id)
	}
	if id := identity(nil); id != nil {
		t.Fatalf("anonymous request got identity %+v", id)
	}
	if id := identity(&http.Cookie{Name: "sid", Value: "garbage"}); id != nil {
		t.Fatalf("forged cookie got identity %+v", id)
	}

	if _, err := access.NewSessionManager("short", "sid", "", time.Hour, false, db); err == nil {
		t.Fatal("short key accepted")
	}
}

func TestActor(t *testing.T) {
	if _, err := access.Actor(context.Background()); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("Actor without identity: %v", err)
	}
}
