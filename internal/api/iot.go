package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Устройства шлют GET с телом; POST принимается как равноправный вариант.
func registerIoTRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/inlet/{deviceId:[0-9]+}/try", h.PollDevice).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/{kind:air|temp}/{sensorId:[0-9]+}/try", h.ReportReading).Methods(http.MethodGet, http.MethodPost)
}

type pollResponse struct {
	IsOpened  bool `json:"isOpened"`
	IsBlocked bool `json:"isBlocked"`
}

// PollDevice отвечает клапану, открыт ли он сейчас.
func (h *Handler) PollDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceId")
	if err != nil {
		fail(w, r, err)
		return
	}
	d, err := h.telemetry.PollDevice(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, pollResponse{IsOpened: d.IsOpened, IsBlocked: d.IsBlocked})
}

func (h *Handler) ReportReading(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sensorId")
	if err != nil {
		fail(w, r, err)
		return
	}
	var body readingBody
	if err := decode(w, r, &body); err != nil {
		fail(w, r, err)
		return
	}
	if _, err := h.telemetry.ReportReading(r.Context(), pathKind(r), id, body.Value); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, nil)
}
