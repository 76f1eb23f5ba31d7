package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"smartinlet/internal/apperr"
	"smartinlet/internal/models"
	"smartinlet/internal/paging"
)

func registerDeviceRoutes(r *mux.Router, h *Handler) {
	r.Handle("/devices", signedIn(h.ClaimDevice)).Methods(http.MethodPost)
	r.Handle("/devices/{kind:inlet|air|temp}/by-group/{groupName}", signedIn(h.ListGroupDevices)).Methods(http.MethodGet)
	r.Handle("/devices/{deviceId:[0-9]+}", signedIn(h.RenameDevice)).Methods(http.MethodPut)
	r.Handle("/devices/{deviceId:[0-9]+}", signedIn(h.ReleaseDevice)).Methods(http.MethodDelete)
	r.Handle("/devices/inlet/{deviceId:[0-9]+}/open", signedIn(h.ToggleOpen)).Methods(http.MethodPut)
	r.Handle("/devices/inlet/{deviceId:[0-9]+}/control-type/{mode:manual|air|temp}", signedIn(h.SetControlMode)).Methods(http.MethodPut)
	r.Handle("/devices/inlet/{deviceId:[0-9]+}/{kind:air|temp}-sensor", signedIn(h.SwapSensor)).Methods(http.MethodPut)
	r.Handle("/devices/{kind:air|temp}/{sensorId:[0-9]+}/limits", signedIn(h.ChangeLimits)).Methods(http.MethodPut)
}

type claimRequest struct {
	GroupName  string `json:"groupName"`
	DeviceID   uint   `json:"deviceId"`
	DeviceType string `json:"deviceType"`
	AccessCode string `json:"accessCode"`
}

func (h *Handler) ClaimDevice(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	kind, err := parseKind(req.DeviceType)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.devices.Claim(r.Context(), req.GroupName, kind, req.DeviceID, req.AccessCode); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

func (h *Handler) ListGroupDevices(w http.ResponseWriter, r *http.Request) {
	var (
		group = mux.Vars(r)["groupName"]
		query = r.URL.Query().Get("q")
		page  = paging.FromQuery(r.URL.Query())
	)
	if kind := pathKind(r); kind.IsSensor() {
		res, err := h.devices.ListSensors(r.Context(), group, kind, query, page)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, res)
		return
	}
	res, err := h.devices.ListInlets(r.Context(), group, query, page)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, res)
}

type renameRequest struct {
	GroupName  string `json:"groupName"`
	DeviceType string `json:"deviceType"`
	DeviceName string `json:"deviceName"`
}

func (h *Handler) RenameDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceId")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req renameRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	kind, err := parseKind(req.DeviceType)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.devices.Rename(r.Context(), req.GroupName, kind, id, req.DeviceName); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

// ReleaseDevice: groupName и deviceType — в query.
func (h *Handler) ReleaseDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceId")
	if err != nil {
		fail(w, r, err)
		return
	}
	q := r.URL.Query()
	kind, err := parseKind(q.Get("deviceType"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.devices.Release(r.Context(), q.Get("groupName"), kind, id); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

type openResponse struct {
	IsOpened bool `json:"isOpened"`
}

func (h *Handler) ToggleOpen(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceId")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req groupRef
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	opened, err := h.devices.ToggleOpen(r.Context(), req.GroupName, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, openResponse{IsOpened: opened})
}

type sensorRequest struct {
	GroupName string `json:"groupName"`
	SensorID  *uint  `json:"sensorId"`
}

// UnmarshalJSON: для manual достаточно голой строки с именем группы.
func (s *sensorRequest) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		s.GroupName = name
		return nil
	}
	type plain sensorRequest
	return json.Unmarshal(b, (*plain)(s))
}

func (h *Handler) SetControlMode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceId")
	if err != nil {
		fail(w, r, err)
		return
	}
	mode, _ := models.ParseControlType(mux.Vars(r)["mode"])
	var req sensorRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.devices.SetControlMode(r.Context(), req.GroupName, id, mode, req.SensorID); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

func (h *Handler) SwapSensor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceId")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req sensorRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.SensorID == nil {
		fail(w, r, apperr.Validation("sensorId is required"))
		return
	}
	if err := h.devices.SwapSensor(r.Context(), req.GroupName, id, pathKind(r), *req.SensorID); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

type limitsRequest struct {
	GroupName string `json:"groupName"`
	ToOpen    *int   `json:"toOpen"`
	ToClose   *int   `json:"toClose"`
}

func (h *Handler) ChangeLimits(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sensorId")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req limitsRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.ToOpen == nil || req.ToClose == nil {
		fail(w, r, apperr.Validation("toOpen and toClose are required"))
		return
	}
	if err := h.devices.ChangeLimits(r.Context(), req.GroupName, pathKind(r), id, *req.ToOpen, *req.ToClose); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}
