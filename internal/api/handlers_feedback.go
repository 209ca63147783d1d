package api

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shohag/pushrelay/internal/models"
	"github.com/shohag/pushrelay/internal/storage"
)

type FeedbackHandler struct {
	store storage.Storage
}

func NewFeedbackHandler(store storage.Storage) *FeedbackHandler {
	return &FeedbackHandler{store: store}
}

func (h *FeedbackHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.store.ListFeedback(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list feedback")
		return
	}
	if list == nil {
		list = []models.StoredFeedback{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"feedback": list,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *FeedbackHandler) Get(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}

	fb, err := h.store.GetFeedback(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get feedback")
		return
	}
	if fb == nil {
		writeError(w, http.StatusNotFound, "token not reported")
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

// Delete forgets a reported token once the application has stopped sending
// to it.
func (h *FeedbackHandler) Delete(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteFeedback(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete feedback")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FeedbackHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// tokenParam normalises the {token} path parameter to the lower-case hex the
// store uses.
func tokenParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := strings.ToLower(chi.URLParam(r, "token"))
	if _, err := hex.DecodeString(token); err != nil || token == "" {
		writeError(w, http.StatusBadRequest, "token must be hex encoded")
		return "", false
	}
	return token, true
}
