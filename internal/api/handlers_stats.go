package api

import (
	"net/http"
)

type StatusHandler struct {
	pusher Pusher
}

func NewStatusHandler(pusher Pusher) *StatusHandler {
	return &StatusHandler{pusher: pusher}
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.pusher.Status().Shutdown {
		status = "shutting_down"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"service": "pushrelay",
	})
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pusher.Status())
}
