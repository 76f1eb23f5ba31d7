package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"smartinlet/internal/paging"
)

func registerAdminDeviceRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("", h.RegisterDevice).Methods(http.MethodPost)
	r.HandleFunc("/{kind:inlet|air|temp}", h.AdminListDevices).Methods(http.MethodGet)
	r.HandleFunc("/block", h.ToggleBlock).Methods(http.MethodPut)
	r.HandleFunc("/{deviceId:[0-9]+}", h.AdminRenameDevice).Methods(http.MethodPut)
	r.HandleFunc("/{deviceId:[0-9]+}", h.AdminDeleteDevice).Methods(http.MethodDelete)
}

func registerAdminUserRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/{username}/send-email", h.SendUserEmail).Methods(http.MethodPost)
	r.HandleFunc("/{username}/rights", h.SetRights).Methods(http.MethodPut)
	r.HandleFunc("/{username}", h.AdminDeleteUser).Methods(http.MethodDelete)
}

type registerRequest struct {
	DeviceType string `json:"deviceType"`
	AccessCode string `json:"accessCode"`
}

func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	kind, err := parseKind(req.DeviceType)
	if err != nil {
		fail(w, r, err)
		return
	}
	out, err := h.devices.Register(r.Context(), kind, req.AccessCode)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, out)
}

func (h *Handler) AdminListDevices(w http.ResponseWriter, r *http.Request) {
	query, page := r.URL.Query().Get("q"), paging.FromQuery(r.URL.Query())
	if kind := pathKind(r); kind.IsSensor() {
		res, err := h.devices.AdminListSensors(r.Context(), kind, query, page)
		if err != nil {
			fail(w, r, err)
			return
		}
		ok(w, res)
		return
	}
	res, err := h.devices.AdminListInlets(r.Context(), query, page)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, res)
}

type adminDeviceRequest struct {
	DeviceType string `json:"deviceType"`
	DeviceID   uint   `json:"deviceId"`
}

type blockResponse struct {
	IsBlocked bool `json:"isBlocked"`
}

func (h *Handler) ToggleBlock(w http.ResponseWriter, r *http.Request) {
	var req adminDeviceRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	kind, err := parseKind(req.DeviceType)
	if err != nil {
		fail(w, r, err)
		return
	}
	blocked, err := h.devices.ToggleBlock(r.Context(), kind, req.DeviceID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, blockResponse{IsBlocked: blocked})
}

func (h *Handler) AdminRenameDevice(w http.ResponseWriter, r *http.Request) {
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
	if err := h.devices.AdminRename(r.Context(), kind, id, req.DeviceName); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

// AdminDeleteDevice: deviceType — в query (?deviceType=air).
func (h *Handler) AdminDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceId")
	if err != nil {
		fail(w, r, err)
		return
	}
	kind, err := parseKind(r.URL.Query().Get("deviceType"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.devices.Delete(r.Context(), kind, id); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

type emailRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *Handler) SendUserEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.accounts.SendEmail(r.Context(), mux.Vars(r)["username"], req.Title, req.Content); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}

type rightsRequest struct {
	CanAdministrateDevices bool `json:"canAdministrateDevices"`
	CanAdministrateUsers   bool `json:"canAdministrateUsers"`
}

func (h *Handler) SetRights(w http.ResponseWriter, r *http.Request) {
	var req rightsRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.accounts.SetRights(r.Context(), mux.Vars(r)["username"], req.CanAdministrateDevices, req.CanAdministrateUsers)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, u)
}

func (h *Handler) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteUser(r.Context(), mux.Vars(r)["username"]); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}
