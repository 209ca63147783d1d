package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/pushrelay/internal/config"
	"github.com/shohag/pushrelay/internal/metrics"
	"github.com/shohag/pushrelay/internal/models"
	"github.com/shohag/pushrelay/internal/push"
	"github.com/shohag/pushrelay/internal/storage"
	"github.com/shohag/pushrelay/internal/wire"
)

type fakePusher struct {
	mu     sync.Mutex
	next   uint64
	sent   []*models.Notification
	closed bool
}

func (p *fakePusher) Create(token []byte) *models.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return models.NewNotification(p.next, token)
}

func (p *fakePusher) Send(n *models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return push.ErrShutdown
	}
	p.sent = append(p.sent, n)
	return nil
}

func (p *fakePusher) Status() push.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return push.Status{State: "connected", Pending: len(p.sent), Shutdown: p.closed}
}

func newTestServer(t *testing.T, apiKey string) (*Server, *fakePusher, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	reg := prometheus.NewRegistry()
	metrics.New(reg)

	pusher := &fakePusher{}
	s := NewServer(config.ServerConfig{APIKey: apiKey}, pusher, store, reg, zerolog.Nop())
	return s, pusher, store
}

func do(t *testing.T, s *Server, method, path, body, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSendNotification(t *testing.T) {
	s, pusher, _ := newTestServer(t, "")

	rec := do(t, s, http.MethodPost, "/api/v1/notifications",
		`{"token":"aabbcc","alert":"hello","badge":3,"sound":"chime","expiry":1700000000,"extra":{"acme":{"id":7}}}`, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp sendNotificationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, uint64(1), resp.ID)
	assert.Equal(t, "queued", resp.Status)

	require.Len(t, pusher.sent, 1)
	n := pusher.sent[0]
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, n.Token)
	assert.Equal(t, int64(1700000000), n.Expiry().Unix())

	payload, err := wire.EncodePayload(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"aps":{"alert":"hello","badge":3,"sound":"chime"},"acme":{"id":7}}`, string(payload))
}

func TestSendNotification_LocalizedAlert(t *testing.T) {
	s, pusher, _ := newTestServer(t, "")

	rec := do(t, s, http.MethodPost, "/api/v1/notifications",
		`{"token":"01","localized_alert":{"loc_key":"GAME_INVITE","loc_args":["Jenna"]}}`, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	payload, err := wire.EncodePayload(pusher.sent[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"aps":{"alert":{"action-loc-key":null,"loc-key":"GAME_INVITE","loc-args":["Jenna"]}}}`, string(payload))
}

func TestSendNotification_Rejected(t *testing.T) {
	s, pusher, _ := newTestServer(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing token", `{"alert":"x"}`},
		{"non-hex token", `{"token":"zz"}`},
		{"both alerts", `{"token":"01","alert":"x","localized_alert":{"body":"y"}}`},
		{"payload too long", `{"token":"01","alert":"` + strings.Repeat("x", 70000) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/v1/notifications", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, pusher.sent)
}

func TestSendNotification_AfterShutdown(t *testing.T) {
	s, pusher, _ := newTestServer(t, "")
	pusher.closed = true

	rec := do(t, s, http.MethodPost, "/api/v1/notifications", `{"token":"01","alert":"x"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, s, http.MethodGet, "/health", "", "")
	assert.Contains(t, rec.Body.String(), "shutting_down")
}

func TestAuth(t *testing.T) {
	s, _, _ := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/v1/status", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/v1/status", "", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/status", "", "secret").Code)

	// Health and metrics stay open.
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/metrics", "", "").Code)
}

func TestStatus(t *testing.T) {
	s, _, _ := newTestServer(t, "")

	rec := do(t, s, http.MethodGet, "/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st push.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "connected", st.State)
}

func TestFeedbackEndpoints(t *testing.T) {
	s, _, store := newTestServer(t, "")
	ctx := context.Background()

	_, err := store.SaveFeedback(ctx, models.FeedbackRecord{Timestamp: 1300000000, Token: []byte{0xab, 0xcd}})
	require.NoError(t, err)
	_, err = store.SaveFeedback(ctx, models.FeedbackRecord{Timestamp: 1300000100, Token: []byte{0x01}})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/v1/feedback?limit=10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Feedback []models.StoredFeedback `json:"feedback"`
		Limit    int                     `json:"limit"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Feedback, 2)
	assert.Equal(t, 10, list.Limit)

	rec = do(t, s, http.MethodGet, "/api/v1/feedback/ABCD", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token":"abcd"`)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/feedback/xyz", "", "").Code)

	rec = do(t, s, http.MethodGet, "/api/v1/feedback/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats storage.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(2), stats.TotalTokens)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/v1/feedback/abcd", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/feedback/abcd", "", "").Code)
}
