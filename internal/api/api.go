// Package api — HTTP-маршруты SmartInlet поверх доменных сервисов.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"smartinlet/internal/access"
	"smartinlet/internal/accounts"
	"smartinlet/internal/binding"
	"smartinlet/internal/membership"
	"smartinlet/internal/threshold"
)

// Deps: всё, что нужно обработчикам. DeviceLimiter может быть nil.
type Deps struct {
	Devices       *binding.Engine
	Telemetry     *threshold.Service
	Groups        *membership.Service
	Accounts      *accounts.Service
	Sessions      *access.SessionManager
	DeviceToken   access.TokenVerifier
	DeviceLimiter mux.MiddlewareFunc
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		devices:   d.Devices,
		telemetry: d.Telemetry,
		groups:    d.Groups,
		accounts:  d.Accounts,
		sessions:  d.Sessions,
	}
}

type Handler struct {
	devices   *binding.Engine
	telemetry *threshold.Service
	groups    *membership.Service
	accounts  *accounts.Service
	sessions  *access.SessionManager
}

// RegisterRoutes вешает /api/... на r. Сессия читается для всех запросов,
// проверка прав — на уровне маршрута или подроутера.
func RegisterRoutes(r *mux.Router, d Deps) {
	h := NewHandler(d)

	iot := r.PathPrefix("/api/iot").Subrouter()
	iot.Use(access.DeviceToken(d.DeviceToken))
	if d.DeviceLimiter != nil {
		iot.Use(d.DeviceLimiter)
	}
	registerIoTRoutes(iot, h)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(d.Sessions.LoadIdentity)

	adminDevices := api.PathPrefix("/admin/devices").Subrouter()
	adminDevices.Use(access.RequireDevices)
	registerAdminDeviceRoutes(adminDevices, h)

	adminUsers := api.PathPrefix("/admin/users").Subrouter()
	adminUsers.Use(access.RequireUsers)
	registerAdminUserRoutes(adminUsers, h)

	registerUserRoutes(api, h)
	registerGroupRoutes(api, h)
	registerDeviceRoutes(api, h)
}

// signedIn: маршрут только для вошедших пользователей.
func signedIn(f http.HandlerFunc) http.Handler { return access.RequireSignedIn(f) }
