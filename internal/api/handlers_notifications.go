package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shohag/pushrelay/internal/models"
	"github.com/shohag/pushrelay/internal/push"
	"github.com/shohag/pushrelay/internal/wire"
)

// Pusher is the part of push.Client the API drives.
type Pusher interface {
	Create(token []byte) *models.Notification
	Send(n *models.Notification) error
	Status() push.Status
}

type NotificationHandler struct {
	pusher Pusher
}

func NewNotificationHandler(pusher Pusher) *NotificationHandler {
	return &NotificationHandler{pusher: pusher}
}

type localizedAlertRequest struct {
	Body         *string  `json:"body"`
	ActionLocKey *string  `json:"action_loc_key"`
	LocKey       *string  `json:"loc_key"`
	LocArgs      []string `json:"loc_args"`
	LaunchImage  *string  `json:"launch_image"`
}

type sendNotificationRequest struct {
	Token          string                     `json:"token"`
	Alert          *string                    `json:"alert"`
	LocalizedAlert *localizedAlertRequest     `json:"localized_alert"`
	Badge          *int                       `json:"badge"`
	Sound          *string                    `json:"sound"`
	Expiry         *int64                     `json:"expiry"`
	Extra          map[string]json.RawMessage `json:"extra"`
}

type sendNotificationResponse struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
}

const maxRequestSize = 64 * 1024

func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	var req sendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	token, err := hex.DecodeString(req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, "token must be hex encoded")
		return
	}
	if req.Alert != nil && req.LocalizedAlert != nil {
		writeError(w, http.StatusBadRequest, "alert and localized_alert are mutually exclusive")
		return
	}

	n := h.pusher.Create(token)
	applyRequest(n, &req)

	if _, err := wire.EncodeNotification(n); err != nil {
		switch {
		case errors.Is(err, wire.ErrTokenTooLong), errors.Is(err, wire.ErrPayloadTooLong):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusBadRequest, "notification cannot be encoded")
		}
		return
	}

	if err := h.pusher.Send(n); err != nil {
		if errors.Is(err, push.ErrShutdown) {
			writeError(w, http.StatusServiceUnavailable, "push client is shutting down")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to queue notification")
		return
	}

	writeJSON(w, http.StatusAccepted, sendNotificationResponse{ID: n.ID, Status: "queued"})
}

func applyRequest(n *models.Notification, req *sendNotificationRequest) {
	if req.Alert != nil {
		n.WithAlert(*req.Alert)
	}
	if la := req.LocalizedAlert; la != nil {
		a := n.LocalizedAlert()
		if la.Body != nil {
			a.Body(*la.Body)
		}
		if la.ActionLocKey != nil {
			a.ActionLocKey(*la.ActionLocKey)
		}
		if la.LocKey != nil {
			a.LocKey(*la.LocKey)
		}
		if la.LocArgs != nil {
			a.LocArgs(la.LocArgs...)
		}
		if la.LaunchImage != nil {
			a.LaunchImage(*la.LaunchImage)
		}
	}
	if req.Badge != nil {
		n.WithBadge(*req.Badge)
	}
	if req.Sound != nil {
		n.WithSound(*req.Sound)
	}
	if req.Expiry != nil {
		n.WithExpiry(time.Unix(*req.Expiry, 0))
	}
	for k, v := range req.Extra {
		n.WithExtra(k, v)
	}
}
