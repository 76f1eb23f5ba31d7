package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"smartinlet/internal/access"
	"smartinlet/internal/accounts"
	"smartinlet/internal/api"
	"smartinlet/internal/binding"
	"smartinlet/internal/membership"
	"smartinlet/internal/middleware"
	"smartinlet/internal/models"
	"smartinlet/internal/testutil"
	"smartinlet/internal/threshold"
)

const deviceToken = "device-token"

type env struct {
	db   *gorm.DB
	fx   *testutil.Fixtures
	mail *testutil.Mailbox
	srv  *httptest.Server
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	fx := testutil.NewFixtures(t, db)
	mail := &testutil.Mailbox{}

	sessions, err := access.NewSessionManager(strings.Repeat("k", 32), "smartinlet", "", time.Hour, false, fx.Stores.Users)
	if err != nil {
		t.Fatal(err)
	}
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, middleware.LoggerMW)
	api.RegisterRoutes(r, api.Deps{
		Devices:       binding.New(fx.Stores, fx.Hasher),
		Telemetry:     threshold.New(fx.Stores),
		Groups:        membership.New(fx.Stores),
		Accounts:      accounts.New(fx.Stores, fx.Hasher, mail, "https://inlet.example.com"),
		Sessions:      sessions,
		DeviceToken:   access.StaticToken(deviceToken),
		DeviceLimiter: middleware.NewRateLimiter(1000, 1000, middleware.DeviceKey).Middleware,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{db: db, fx: fx, mail: mail, srv: srv}
}

// reply: общий вид ответа: успех или problem+json.
type reply struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Detail  string          `json:"detail"`
}

type client struct {
	t      *testing.T
	base   string
	hc     *http.Client
	header http.Header
}

func (e *env) client(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &client{t: t, base: e.srv.URL, hc: &http.Client{Jar: jar}, header: http.Header{}}
}

func (c *client) raw(method, path string, body io.Reader) (int, reply) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		c.t.Fatal(err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	defer resp.Body.Close()
	var out reply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		c.t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func (c *client) do(method, path string, body any) (int, reply) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	return c.raw(method, path, rd)
}

// must выполняет запрос и требует 200, данные раскладывает в out.
func (c *client) must(method, path string, body, out any) {
	c.t.Helper()
	status, r := c.do(method, path, body)
	if status != http.StatusOK || !r.Success {
		c.t.Fatalf("%s %s: status %d, %s: %s", method, path, status, r.Code, r.Detail)
	}
	if out != nil {
		if err := json.Unmarshal(r.Data, out); err != nil {
			c.t.Fatalf("%s %s: data: %v", method, path, err)
		}
	}
}

func (c *client) signIn(username string) {
	c.t.Helper()
	c.must(http.MethodPost, "/api/users/sign-in", map[string]string{"username": username, "password": "password"}, nil)
}

func expect(t *testing.T, status int, r reply, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus || r.Code != wantCode || r.Success {
		t.Fatalf("got %d %q (%s), want %d %q", status, r.Code, r.Detail, wantStatus, wantCode)
	}
}

type page[T any] struct {
	PageCount int `json:"pageCount"`
	Items     []T `json:"items"`
}

func TestDeviceLifecycle(t *testing.T) {
	e := setup(t)
	e.fx.Admin("root")
	e.fx.User("alice")

	admin := e.client(t)
	admin.signIn("root")
	var inlet, air binding.Registered
	admin.must(http.MethodPost, "/api/admin/devices", map[string]string{"deviceType": "inlet", "accessCode": "inlet-code"}, &inlet)
	admin.must(http.MethodPost, "/api/admin/devices", map[string]string{"deviceType": "air", "accessCode": "air-code"}, &air)

	alice := e.client(t)
	alice.signIn("alice")
	alice.must(http.MethodPost, "/api/groups", map[string]any{"name": "home", "joinOffersFromUsersAllowed": false}, nil)
	alice.must(http.MethodPost, "/api/devices", map[string]any{
		"groupName": "home", "deviceId": inlet.ID, "deviceType": "inlet", "accessCode": "inlet-code",
	}, nil)
	alice.must(http.MethodPost, "/api/devices", map[string]any{
		"groupName": "home", "deviceId": air.ID, "deviceType": "air", "accessCode": "air-code",
	}, nil)

	status, _ := alice.do(http.MethodPost, "/api/devices", map[string]any{
		"groupName": "home", "deviceId": inlet.ID, "deviceType": "inlet", "accessCode": "inlet-code",
	})
	if status < 400 {
		t.Fatalf("second claim must fail, got %d", status)
	}

	alice.must(http.MethodPut, fmt.Sprintf("/api/devices/air/%d/limits", air.ID),
		map[string]any{"groupName": "home", "toOpen": 100, "toClose": 50}, nil)
	alice.must(http.MethodPut, fmt.Sprintf("/api/devices/inlet/%d/control-type/air", inlet.ID),
		map[string]any{"groupName": "home", "sensorId": air.ID}, nil)
	e.fx.CheckBindings(e.db)

	dev := e.client(t)
	dev.header.Set("Device-Token", deviceToken)
	dev.must(http.MethodPost, fmt.Sprintf("/api/iot/air/%d/try", air.ID), 150, nil)

	var poll struct {
		IsOpened bool `json:"isOpened"`
	}
	dev.must(http.MethodGet, fmt.Sprintf("/api/iot/inlet/%d/try", inlet.ID), nil, &poll)
	if !poll.IsOpened {
		t.Fatal("inlet must open after reading above the limit")
	}

	dev.must(http.MethodPost, fmt.Sprintf("/api/iot/air/%d/try", air.ID), map[string]int{"value": 40}, nil)
	dev.must(http.MethodGet, fmt.Sprintf("/api/iot/inlet/%d/try", inlet.ID), nil, &poll)
	if poll.IsOpened {
		t.Fatal("inlet must close after reading below the lower limit")
	}

	var inlets page[map[string]any]
	alice.must(http.MethodGet, "/api/devices/inlet/by-group/home", nil, &inlets)
	if len(inlets.Items) != 1 || inlets.Items[0]["controlType"] != "air" {
		t.Fatalf("inlets = %+v", inlets.Items)
	}

	alice.must(http.MethodPut, fmt.Sprintf("/api/devices/inlet/%d/control-type/manual", inlet.ID), "home", nil)
	var opened struct {
		IsOpened bool `json:"isOpened"`
	}
	alice.must(http.MethodPut, fmt.Sprintf("/api/devices/inlet/%d/open", inlet.ID), map[string]string{"groupName": "home"}, &opened)
	if !opened.IsOpened {
		t.Fatal("manual toggle must open a closed inlet")
	}

	alice.must(http.MethodDelete, fmt.Sprintf("/api/devices/%d?groupName=home&deviceType=air", air.ID), nil, nil)
	if s := e.fx.ReloadSensor(models.KindAir, air.ID); s.GroupID != nil {
		t.Fatal("released sensor must leave the group")
	}

	var blocked struct {
		IsBlocked bool `json:"isBlocked"`
	}
	admin.must(http.MethodPut, "/api/admin/devices/block", map[string]any{"deviceType": "inlet", "deviceId": inlet.ID}, &blocked)
	if !blocked.IsBlocked {
		t.Fatal("inlet must be blocked")
	}
	var all page[map[string]any]
	admin.must(http.MethodGet, "/api/admin/devices/air", nil, &all)
	if len(all.Items) != 1 {
		t.Fatalf("admin air list = %+v", all.Items)
	}
}

func TestIoTRequiresDeviceToken(t *testing.T) {
	e := setup(t)
	d := e.fx.Inlet("inlet-code")
	dev := e.client(t)

	status, r := dev.do(http.MethodGet, fmt.Sprintf("/api/iot/inlet/%d/try", d.ID), nil)
	expect(t, status, r, http.StatusUnauthorized, "unauthenticated")

	dev.header.Set("Authorization", "Bearer wrong")
	status, r = dev.do(http.MethodGet, fmt.Sprintf("/api/iot/inlet/%d/try", d.ID), nil)
	expect(t, status, r, http.StatusUnauthorized, "unauthenticated")

	dev.header.Set("Authorization", "Bearer "+deviceToken)
	dev.must(http.MethodGet, fmt.Sprintf("/api/iot/inlet/%d/try", d.ID), nil, nil)

	status, r = dev.do(http.MethodGet, "/api/iot/inlet/999/try", nil)
	expect(t, status, r, http.StatusNotFound, "not_found")
}

func TestSignUpConfirmSignIn(t *testing.T) {
	e := setup(t)
	c := e.client(t)

	c.must(http.MethodPost, "/api/users/sign-up", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "secret1", "confirmPassword": "secret1",
	}, nil)

	if status, _ := c.do(http.MethodPost, "/api/users/sign-in", map[string]string{"username": "bob", "password": "secret1"}); status < 400 {
		t.Fatalf("sign-in before activation must fail, got %d", status)
	}

	m, ok := e.mail.Last()
	if !ok || m.Template != "registration_confirm" {
		t.Fatalf("mail = %+v", m)
	}
	link, err := url.Parse(m.Params["link"])
	if err != nil {
		t.Fatal(err)
	}
	var confirmed struct {
		Action string `json:"action"`
	}
	c.must(http.MethodGet, link.RequestURI(), nil, &confirmed)
	if confirmed.Action != models.ActionConfirmRegistration {
		t.Fatalf("action = %q", confirmed.Action)
	}

	c.must(http.MethodPost, "/api/users/sign-in", map[string]string{"username": "bob", "password": "secret1"}, nil)
	var me models.User
	c.must(http.MethodGet, "/api/users/info", nil, &me)
	if me.Username != "bob" || !me.IsActivated {
		t.Fatalf("me = %+v", me)
	}

	c.must(http.MethodGet, "/api/users/check", nil, nil)
	c.must(http.MethodGet, "/api/users/sign-out", nil, nil)
	status, r := c.do(http.MethodGet, "/api/users/check", nil)
	expect(t, status, r, http.StatusUnauthorized, "unauthenticated")
}

func TestErrorsMapToProblems(t *testing.T) {
	e := setup(t)
	e.fx.User("alice")

	anon := e.client(t)
	status, r := anon.do(http.MethodGet, "/api/users/info", nil)
	expect(t, status, r, http.StatusUnauthorized, "unauthenticated")

	// публичный поиск групп доступен без входа
	anon.must(http.MethodGet, "/api/groups?q=x", nil, nil)

	alice := e.client(t)
	alice.signIn("alice")

	status, r = alice.raw(http.MethodPost, "/api/groups", strings.NewReader("{"))
	expect(t, status, r, http.StatusBadRequest, "validation")

	status, r = alice.do(http.MethodGet, "/api/admin/devices/inlet", nil)
	expect(t, status, r, http.StatusForbidden, "forbidden")

	status, r = alice.do(http.MethodGet, "/api/users/sent-join-offers?sort_direction=sideways", nil)
	expect(t, status, r, http.StatusBadRequest, "validation")

	status, r = alice.do(http.MethodGet, "/api/groups/nope/info", nil)
	expect(t, status, r, http.StatusNotFound, "not_found")

	status, r = alice.do(http.MethodPost, "/api/devices", map[string]any{
		"groupName": "x", "deviceId": 1, "deviceType": "fridge", "accessCode": "abcdef",
	})
	expect(t, status, r, http.StatusBadRequest, "validation")
}

func TestGroupOffers(t *testing.T) {
	e := setup(t)
	e.fx.User("alice")
	e.fx.User("bob")

	alice := e.client(t)
	alice.signIn("alice")
	bob := e.client(t)
	bob.signIn("bob")

	alice.must(http.MethodPost, "/api/groups", map[string]any{"name": "team", "joinOffersFromUsersAllowed": false}, nil)
	alice.must(http.MethodPost, "/api/groups/team/send-join-offer", map[string]string{"username": "bob", "text": "join us"}, nil)

	var received page[struct {
		ID    uint   `json:"id"`
		Group string `json:"group"`
	}]
	bob.must(http.MethodGet, "/api/users/received-join-offers?sort_parameter=group&sort_direction=desc", nil, &received)
	if len(received.Items) != 1 || received.Items[0].Group != "team" {
		t.Fatalf("received = %+v", received.Items)
	}
	// сортировать можно только по другой стороне предложения
	status, r := bob.do(http.MethodGet, "/api/users/received-join-offers?sort_parameter=user", nil)
	expect(t, status, r, http.StatusBadRequest, "validation")
	status, r = alice.do(http.MethodGet, "/api/groups/team/sent-join-offers?sort_parameter=group", nil)
	expect(t, status, r, http.StatusBadRequest, "validation")
	alice.must(http.MethodGet, "/api/groups/team/sent-join-offers?sort_parameter=user&sort_direction=asc", nil, nil)

	// заявки от пользователей запрещены в группе
	status, r = bob.do(http.MethodPost, "/api/users/send-join-offer", map[string]string{"groupName": "team"})
	if status < 400 || r.Success {
		t.Fatalf("offer to closed group must fail, got %d", status)
	}

	bob.must(http.MethodPost, fmt.Sprintf("/api/users/accept-join-offer/%d?accepted=true", received.Items[0].ID), nil, nil)

	var members page[struct {
		ID   uint   `json:"id"`
		User string `json:"user"`
	}]
	alice.must(http.MethodGet, "/api/groups/team/members", nil, &members)
	if len(members.Items) != 2 {
		t.Fatalf("members = %+v", members.Items)
	}

	var mine page[map[string]any]
	bob.must(http.MethodGet, "/api/users/groups", nil, &mine)
	if len(mine.Items) != 1 {
		t.Fatalf("bob's groups = %+v", mine.Items)
	}

	bob.must(http.MethodDelete, "/api/groups/team", nil, nil)
	alice.must(http.MethodGet, "/api/groups/team/members", nil, &members)
	if len(members.Items) != 1 {
		t.Fatalf("after leave: %+v", members.Items)
	}

	alice.must(http.MethodDelete, "/api/groups/team", nil, nil)
	status, r = alice.do(http.MethodGet, "/api/groups/team/info", nil)
	expect(t, status, r, http.StatusNotFound, "not_found")
}

func TestAdminUsers(t *testing.T) {
	e := setup(t)
	e.fx.Admin("root")
	e.fx.User("carol")

	admin := e.client(t)
	admin.signIn("root")

	var carol models.UserShort
	admin.must(http.MethodPut, "/api/admin/users/carol/rights",
		map[string]bool{"canAdministrateDevices": true, "canAdministrateUsers": false}, &carol)
	if !carol.CanAdministrateDevices || carol.CanAdministrateUsers {
		t.Fatalf("rights = %+v", carol)
	}

	admin.must(http.MethodPost, "/api/admin/users/carol/send-email", map[string]string{"title": "Hi", "content": "News"}, nil)
	if m, ok := e.mail.Last(); !ok || m.To != "carol@example.com" {
		t.Fatalf("mail = %+v", m)
	}

	admin.must(http.MethodDelete, "/api/admin/users/carol", nil, nil)
	status, r := admin.do(http.MethodGet, "/api/users/carol/info", nil)
	expect(t, status, r, http.StatusNotFound, "not_found")

	status, r = admin.do(http.MethodDelete, "/api/admin/users/root", nil)
	expect(t, status, r, http.StatusForbidden, "forbidden")
}
