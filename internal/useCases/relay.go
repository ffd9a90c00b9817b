package useCases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/larriantoniy/im_relay/internal/domain"
	"github.com/larriantoniy/im_relay/internal/ports"
)

const DefaultForwardTimeout = 5 * time.Second

type RelayConfig struct {
	ForwardTimeout time.Duration
}

// InboundRelay пересылает входящие сообщения в настроенные sink-и.
// Ошибки пересылки только логируются: сессия от них не должна страдать.
type InboundRelay struct {
	log     *slog.Logger
	sinks   []ports.Sink
	timeout time.Duration

	wg sync.WaitGroup
}

func NewInboundRelay(log *slog.Logger, cfg RelayConfig, sinks ...ports.Sink) *InboundRelay {
	timeout := cfg.ForwardTimeout
	if timeout <= 0 {
		timeout = DefaultForwardTimeout
	}
	return &InboundRelay{
		log:     log.With("component", "relay"),
		sinks:   sinks,
		timeout: timeout,
	}
}

// Configured — есть ли куда пересылать
func (r *InboundRelay) Configured() bool { return len(r.sinks) > 0 }

// Sinks возвращает имена настроенных sink-ов
func (r *InboundRelay) Sinks() []string {
	names := make([]string, 0, len(r.sinks))
	for _, s := range r.sinks {
		names = append(names, s.Name())
	}
	return names
}

// OnMessage не блокирует вызывающего: пересылка идёт в фоне
func (r *InboundRelay) OnMessage(raw domain.RawMessage) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("inbound handling panicked", "panic", fmt.Sprint(p))
		}
	}()

	evt, err := MapInbound(raw)
	if err != nil {
		r.log.Warn("inbound message dropped", "from", raw.From, "id", raw.ID, "error", err)
		return
	}
	r.log.Info("received message", "from", evt.From, "id", evt.ID, "type", evt.Type, "is_group", evt.IsGroup)

	if !r.Configured() {
		r.log.Warn("no sink configured, message not forwarded", "from", evt.From, "id", evt.ID)
		return
	}

	traceID := uuid.NewString()
	for _, sink := range r.sinks {
		r.wg.Add(1)
		go func(sink ports.Sink) {
			defer r.wg.Done()
			r.forward(sink, evt, traceID)
		}(sink)
	}
}

func (r *InboundRelay) forward(sink ports.Sink, evt domain.InboundEvent, traceID string) {
	log := r.log.With("sink", sink.Name(), "trace_id", traceID, "id", evt.ID)
	defer func() {
		if p := recover(); p != nil {
			log.Error("sink panicked", "panic", fmt.Sprint(p))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	err := sink.Forward(ctx, evt)
	latency := time.Since(start)
	switch {
	case err == nil:
		log.Info("message forwarded", "latency", latency)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Error("forward failed", "latency", latency, "error", fmt.Errorf("%w: %w", domain.ErrForwardTimeout, err))
	default:
		log.Error("forward failed", "latency", latency, "error", err)
	}
}

// Wait ждёт завершения пересылок в полёте, но не дольше ctx
func (r *InboundRelay) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MapInbound превращает сырое сообщение в InboundEvent
func MapInbound(raw domain.RawMessage) (domain.InboundEvent, error) {
	from := strings.TrimSpace(raw.From)
	_, server, ok := domain.SplitID(from)
	if !ok {
		return domain.InboundEvent{}, fmt.Errorf("%w: sender id %q", domain.ErrMalformedInbound, raw.From)
	}
	if raw.ID == "" {
		return domain.InboundEvent{}, fmt.Errorf("%w: empty message id", domain.ErrMalformedInbound)
	}

	kind := raw.Type
	if kind == "" {
		kind = "chat"
	}
	return domain.InboundEvent{
		From:      from,
		Body:      raw.Body,
		Timestamp: raw.Timestamp,
		ID:        raw.ID,
		HasMedia:  raw.HasMedia,
		Type:      kind,
		IsGroup:   "@"+server == domain.GroupSuffix,
	}, nil
}
