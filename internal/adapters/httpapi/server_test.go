package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larriantoniy/im_relay/internal/domain"
	"github.com/larriantoniy/im_relay/internal/useCases"
)

func init() { gin.SetMode(gin.TestMode) }

type stubStatus struct {
	mu   sync.Mutex
	snap domain.Snapshot
}

func (s *stubStatus) CurrentStatus() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

type stubSender struct {
	mu   sync.Mutex
	reqs []domain.OutboundRequest
	res  domain.SendResult
	err  error
}

func (s *stubSender) Send(ctx context.Context, req domain.OutboundRequest) (domain.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	res := s.res
	res.To = domain.NormalizeTarget(req.TargetID)
	return res, s.err
}

func (s *stubSender) SendToChannel(ctx context.Context, req domain.OutboundRequest) (domain.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	res := s.res
	res.To = domain.NormalizeChannel(req.TargetID)
	return res, s.err
}

// stubSession отдаёт список чатов; ChatDirectory вызывает только ListChats
type stubSession struct {
	mu    sync.Mutex
	chats []domain.Chat
	err   error
	calls int
}

func (s *stubSession) Connect(ctx context.Context) error  { return nil }
func (s *stubSession) Events() <-chan domain.SessionEvent { return nil }
func (s *stubSession) Close() error                       { return nil }

func (s *stubSession) SendMessage(ctx context.Context, target, body string) (domain.SendResult, error) {
	return domain.SendResult{}, errors.New("not used")
}

func (s *stubSession) ListChats(ctx context.Context) ([]domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.chats, s.err
}

type fixture struct {
	status *stubStatus
	sender *stubSender
	chats  *stubSession
	clock  *clock.Mock
	h      http.Handler
}

func newFixture(t *testing.T, cfg Config, snap domain.Snapshot, gateOpts ...useCases.GateOption) *fixture {
	t.Helper()
	f := &fixture{
		status: &stubStatus{snap: snap},
		sender: &stubSender{res: domain.SendResult{ID: "true_1@c.us_ABC", Ack: domain.AckServer}},
		chats:  &stubSession{},
		clock:  clock.NewMock(),
	}
	f.clock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := useCases.NewReadinessGate(f.status, gateOpts...)
	dir := useCases.NewChatDirectory(logger, gate, f.chats, useCases.DirectoryConfig{})
	srv := NewServer(logger, cfg, gate, f.sender, dir,
		Info{Backend: "whatsapp", Sinks: []string{"webhook"}, WebhookConfigured: true}, f.clock)
	f.h = srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

var ready = domain.Snapshot{Status: domain.StatusReady, LastTransitionAt: time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)}

func TestRootAndStatus(t *testing.T) {
	f := newFixture(t, Config{}, ready)

	rec, body := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "ready", body["whatsapp_status"])
	assert.Equal(t, true, body["client_ready"])
	assert.Equal(t, "2024-03-01T12:00:00.000Z", body["timestamp"])

	rec, body = f.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["has_qr"])
	assert.Equal(t, true, body["webhook_configured"])
	assert.Equal(t, "whatsapp", body["backend"])
	assert.Equal(t, "2024-03-01T11:00:00.000Z", body["last_transition_at"])
	assert.NotContains(t, body, "error")
}

func TestReadinessComesFromGate(t *testing.T) {
	// Ready, но меньше MinReadyAge
	f := newFixture(t, Config{},
		domain.Snapshot{Status: domain.StatusReady, LastTransitionAt: time.Now()},
		useCases.WithMinReadyAge(time.Hour, nil))

	_, body := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, "ready", body["whatsapp_status"])
	assert.Equal(t, false, body["client_ready"])

	_, body = f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, false, body["client_ready"])

	rec, _ := f.do(t, http.MethodGet, "/qr", "")
	assert.NotContains(t, rec.Body.String(), "Already authenticated")
	assert.Contains(t, rec.Body.String(), "Connected, finishing startup")
	assert.Contains(t, rec.Body.String(), `http-equiv="refresh"`)

	rec, body = f.do(t, http.MethodGet, "/chats", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ready", body["status"])
	assert.Zero(t, f.chats.calls)
}

func TestWebhookConfiguredIgnoresOtherSinks(t *testing.T) {
	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{},
		useCases.NewReadinessGate(&stubStatus{snap: ready}), &stubSender{}, nil,
		Info{Backend: "whatsapp", Sinks: []string{"redis:im_relay:inbound"}}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["webhook_configured"])
	assert.Equal(t, []any{"redis:im_relay:inbound"}, body["sinks"])
}

func TestChats(t *testing.T) {
	f := newFixture(t, Config{}, ready)
	f.chats.chats = []domain.Chat{
		{ID: "15550101@c.us", Name: "Alice", Timestamp: 1700000000, UnreadCount: 2},
		{ID: "120363@g.us", Name: "Team", IsGroup: true, ParticipantsCount: 3},
	}

	rec, body := f.do(t, http.MethodGet, "/chats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, []any{
		map[string]any{"id": "15550101@c.us", "name": "Alice", "isGroup": false, "timestamp": float64(1700000000), "unreadCount": float64(2)},
		map[string]any{"id": "120363@g.us", "name": "Team", "isGroup": true, "timestamp": float64(0), "unreadCount": float64(0)},
	}, body["chats"])

	rec, body = f.do(t, http.MethodGet, "/groups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, []any{
		map[string]any{"id": "120363@g.us", "name": "Team", "timestamp": float64(0), "participantsCount": float64(3)},
	}, body["groups"])
}

func TestChatsEmptyListIsArray(t *testing.T) {
	f := newFixture(t, Config{}, ready)
	_, body := f.do(t, http.MethodGet, "/groups", "")
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []any{}, body["groups"])
}

func TestChatsErrorMapping(t *testing.T) {
	f := newFixture(t, Config{}, domain.Snapshot{Status: domain.StatusQrPending, QRPayload: "2@abc"})
	for _, path := range []string{"/chats", "/groups"} {
		rec, body := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, "qr_pending", body["status"])
	}
	assert.Zero(t, f.chats.calls)

	f = newFixture(t, Config{}, ready)
	f.chats.err = errors.New("store closed")
	rec, body := f.do(t, http.MethodGet, "/chats", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch chats", body["error"])
	assert.Equal(t, "list chats: store closed", body["details"])

	rec, body = f.do(t, http.MethodGet, "/groups", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch groups", body["error"])
}

func TestStatusShowsError(t *testing.T) {
	f := newFixture(t, Config{}, domain.Snapshot{Status: domain.StatusTimedOut, ErrorDetail: "session initialization timed out after 1m0s"})
	_, body := f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, "timed_out", body["whatsapp_status"])
	assert.Equal(t, "session initialization timed out after 1m0s", body["error"])
}

func TestQRRaw(t *testing.T) {
	f := newFixture(t, Config{}, domain.Snapshot{Status: domain.StatusQrPending, QRPayload: "2@abc"})
	_, body := f.do(t, http.MethodGet, "/qr/raw", "")
	assert.Equal(t, "qr_pending", body["status"])
	assert.Equal(t, "2@abc", body["qr"])

	f = newFixture(t, Config{}, ready)
	_, body = f.do(t, http.MethodGet, "/qr/raw", "")
	assert.NotContains(t, body, "qr")
}

func TestQRPage(t *testing.T) {
	tests := []struct {
		name    string
		snap    domain.Snapshot
		want    string
		refresh bool
	}{
		{"pending", domain.Snapshot{Status: domain.StatusQrPending, QRPayload: "2@abc"}, `src="data:image/png;base64,`, true},
		{"ready", ready, "Already authenticated", false},
		{"initializing", domain.Snapshot{Status: domain.StatusInitializing}, "Initializing client", true},
		{"errored", domain.Snapshot{Status: domain.StatusErrored, ErrorDetail: "boom"}, "Error: boom", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{}, tt.snap)
			rec, _ := f.do(t, http.MethodGet, "/qr", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Equal(t, tt.refresh, strings.Contains(rec.Body.String(), `http-equiv="refresh"`))
		})
	}
}

func TestSend(t *testing.T) {
	f := newFixture(t, Config{}, ready)

	rec, body := f.do(t, http.MethodPost, "/send", `{"to":"+91 907-469 1700","message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "919074691700@c.us", body["to"])
	assert.Equal(t, "true_1@c.us_ABC", body["id"])
	assert.Equal(t, float64(domain.AckServer), body["ack"])

	require.Len(t, f.sender.reqs, 1)
	assert.Equal(t, "+91 907-469 1700", f.sender.reqs[0].TargetID)
	assert.Equal(t, f.clock.Now(), f.sender.reqs[0].SubmittedAt)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t, Config{}, ready)

	for _, body := range []string{``, `{`, `{"to":"1"}`, `{"message":"x"}`, `{"to":"  ","message":"x"}`} {
		rec, out := f.do(t, http.MethodPost, "/send", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Missing required fields: to, message", out["error"])
	}
	assert.Empty(t, f.sender.reqs)
}

func TestSendErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not ready", &domain.NotReadyError{Status: domain.StatusQrPending}, http.StatusServiceUnavailable},
		{"timeout", domain.ErrSendTimeout, http.StatusInternalServerError},
		{"rejected", &domain.RejectedError{Detail: "invalid recipient"}, http.StatusInternalServerError},
		{"wrapped rejected", fmt.Errorf("deliver: %w", &domain.RejectedError{Detail: "x"}), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{}, ready)
			f.sender.err = tt.err

			rec, body := f.do(t, http.MethodPost, "/send", `{"to":"1","message":"x"}`)
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusServiceUnavailable {
				assert.Equal(t, "qr_pending", body["status"])
			} else {
				assert.Equal(t, "Failed to send message", body["error"])
				assert.Equal(t, tt.err.Error(), body["details"])
			}
		})
	}
}

func TestSendToChannel(t *testing.T) {
	f := newFixture(t, Config{}, ready)

	rec, body := f.do(t, http.MethodPost, "/send-to-channel", `{"channelId":"120363","message":"news"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "120363@newsletter", body["channelId"])

	rec, body = f.do(t, http.MethodPost, "/send-to-channel", `{"message":"news"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body, "example")
}

func TestSendRateLimited(t *testing.T) {
	f := newFixture(t, Config{SendRate: 0.001, SendBurst: 1}, ready)

	rec, _ := f.do(t, http.MethodPost, "/send", `{"to":"1","message":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/send", `{"to":"1","message":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// статусные маршруты не лимитируются
	rec, _ = f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKey(t *testing.T) {
	f := newFixture(t, Config{APIKey: "k1"}, ready)
	payload := `{"to":"1","message":"x"}`

	rec, _ := f.do(t, http.MethodPost, "/send", payload)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/send", payload, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/send", payload, "X-API-Key", "k1")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/send", payload, "Authorization", "Bearer k1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookTestEcho(t *testing.T) {
	f := newFixture(t, Config{}, ready)
	rec, body := f.do(t, http.MethodPost, "/webhook/test", `{"from":"1@c.us"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, "2024-03-01T12:00:00.000Z", body["timestamp"])
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, Config{}, ready)
	rec, _ := f.do(t, http.MethodGet, "/contacts", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		useCases.NewReadinessGate(&stubStatus{snap: ready}), &stubSender{}, nil, Info{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
