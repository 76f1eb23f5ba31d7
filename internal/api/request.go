package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"smartinlet/internal/apperr"
	"smartinlet/internal/logs"
	"smartinlet/internal/models"
	"smartinlet/internal/repo"
)

const maxBody = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		logs.Logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	models.WriteError(w, err, r.URL.Path)
}

func ok(w http.ResponseWriter, data any) { models.WriteOK(w, data) }

func pathID(r *http.Request, name string) (uint, error) {
	v, err := strconv.ParseUint(mux.Vars(r)[name], 10, 32)
	if err != nil {
		return 0, apperr.Validation("invalid %s", name)
	}
	return uint(v), nil
}

// pathKind: вид устройства из маршрута; шаблон маршрута уже ограничил значения.
func pathKind(r *http.Request) models.DeviceKind {
	k, _ := models.ParseDeviceKind(mux.Vars(r)["kind"])
	return k
}

func parseKind(s string) (models.DeviceKind, error) {
	k, valid := models.ParseDeviceKind(s)
	if !valid {
		return "", apperr.Validation("unknown device type %q", s)
	}
	return k, nil
}

// offerSort: sort_parameter=date|name|<party>, sort_direction=asc|desc.
// party: другая сторона списка, "user" для списков группы, "group" для списков пользователя.
func offerSort(r *http.Request, party string) (repo.OfferSort, error) {
	q := r.URL.Query()
	var s repo.OfferSort
	switch q.Get("sort_parameter") {
	case "", "date":
		s.ByDate = true
	case "name", party:
	default:
		return s, apperr.Validation("sort_parameter must be date, name or %s", party)
	}
	switch q.Get("sort_direction") {
	case "", "asc":
	case "desc":
		s.Desc = true
	default:
		return s, apperr.Validation("sort_direction must be asc or desc")
	}
	return s, nil
}

// groupRef принимает и голую JSON-строку, и {"groupName": "..."}.
type groupRef struct {
	GroupName string `json:"groupName"`
}

func (g *groupRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		g.GroupName = s
		return nil
	}
	type plain groupRef
	return json.Unmarshal(b, (*plain)(g))
}

// usernameRef: то же для имени пользователя.
type usernameRef struct {
	Username string `json:"username"`
}

func (u *usernameRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		u.Username = s
		return nil
	}
	type plain usernameRef
	return json.Unmarshal(b, (*plain)(u))
}

// readingBody: показание датчика: число или {"value": n}.
type readingBody struct {
	Value int `json:"value"`
}

func (v *readingBody) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		v.Value = n
		return nil
	}
	type plain readingBody
	return json.Unmarshal(b, (*plain)(v))
}
