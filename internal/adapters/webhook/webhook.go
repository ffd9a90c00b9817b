package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/larriantoniy/im_relay/internal/domain"
)

const (
	SignatureHeader = "X-Relay-Signature"
	TimestampHeader = "X-Relay-Timestamp"
)

type Config struct {
	URL     string
	Secret  string            // HMAC-SHA256 тела, пусто — без подписи
	Headers map[string]string // например Authorization для n8n
}

// Sink отправляет входящие сообщения POST-запросом на вебхук (n8n и т.п.).
// Повторов нет: таймаут задаёт вызывающий через ctx.
type Sink struct {
	client *http.Client
	logger *slog.Logger
	cfg    Config
}

func New(cfg Config, logger *slog.Logger) *Sink {
	return &Sink{
		client: &http.Client{},
		logger: logger.With("component", "webhook"),
		cfg:    cfg,
	}
}

func (s *Sink) Name() string { return "webhook" }

func (s *Sink) Forward(ctx context.Context, evt domain.InboundEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TimestampHeader, time.Now().UTC().Format(time.RFC3339))
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	if sig := Sign(s.cfg.Secret, body); sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.logger.Error("webhook returned error",
			"status", resp.StatusCode,
			"body", string(data),
			"message_id", evt.ID,
		)
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.Debug("message forwarded to webhook", "message_id", evt.ID, "from", evt.From)
	return nil
}

// Sign возвращает "sha256=<hex>" или "" без секрета
func Sign(secret string, body []byte) string {
	if secret == "" {
		return ""
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
