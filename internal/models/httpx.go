package models

import (
	"encoding/json"
	"net/http"

	"smartinlet/internal/apperr"
)

// Problem представляет ответ об ошибке в стиле RFC 7807.
type Problem struct {
	Success  bool   `json:"success"`
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Code     string `json:"code,omitempty"` // вид доменной ошибки: not_found, conflict, ...
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Extra    any    `json:"extra,omitempty"`
}

// Envelope: успешный ответ API.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func WriteProblem(w http.ResponseWriter, status int, title, detail string, extra any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:  title,
		Status: status,
		Detail: detail,
		Extra:  extra,
	})
}

// WriteError отображает доменную ошибку в problem+json.
func WriteError(w http.ResponseWriter, err error, instance string) {
	kind := apperr.KindOf(err)
	status := kind.Status()
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:    http.StatusText(status),
		Status:   status,
		Code:     kind.String(),
		Detail:   apperr.Message(err),
		Instance: instance,
	})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteOK: {"success":true,"data":...}.
func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}
