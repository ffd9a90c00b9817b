package useCases

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/larriantoniy/im_relay/internal/domain"
	"github.com/larriantoniy/im_relay/internal/ports"
)

const DefaultSendTimeout = 30 * time.Second

type DeliveryConfig struct {
	SendTimeout time.Duration
}

// DeliveryManager отправляет исходящие сообщения: одна попытка, ограниченное ожидание.
// Повторов нет: повторная отправка в живой сессии может продублировать сообщение.
type DeliveryManager struct {
	log     *slog.Logger
	gate    *ReadinessGate
	session ports.Session
	timeout time.Duration
}

func NewDeliveryManager(log *slog.Logger, gate *ReadinessGate, session ports.Session, cfg DeliveryConfig) *DeliveryManager {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &DeliveryManager{
		log:     log.With("component", "delivery"),
		gate:    gate,
		session: session,
		timeout: timeout,
	}
}

// Send отправляет сообщение контакту; TargetID нормализуется до "<digits>@c.us"
func (d *DeliveryManager) Send(ctx context.Context, req domain.OutboundRequest) (domain.SendResult, error) {
	return d.deliver(ctx, req, domain.NormalizeTarget(req.TargetID))
}

// SendToChannel отправляет сообщение в канал (newsletter), где аккаунт — админ
func (d *DeliveryManager) SendToChannel(ctx context.Context, req domain.OutboundRequest) (domain.SendResult, error) {
	return d.deliver(ctx, req, domain.NormalizeChannel(req.TargetID))
}

type sendOutcome struct {
	res domain.SendResult
	err error
}

func (d *DeliveryManager) deliver(ctx context.Context, req domain.OutboundRequest, target string) (domain.SendResult, error) {
	attemptID := uuid.NewString()
	log := d.log.With("attempt_id", attemptID, "target", target)

	if snap, ok := d.gate.Check(); !ok {
		log.Warn("send refused: session not ready", "raw_target", req.TargetID, "status", snap.Status.String())
		return domain.SendResult{}, &domain.NotReadyError{Status: snap.Status}
	}
	if target == "" {
		log.Warn("send refused: invalid recipient", "raw_target", req.TargetID)
		return domain.SendResult{}, &domain.RejectedError{Detail: "invalid recipient " + req.TargetID}
	}

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// буфер 1: горутина не зависнет, даже если ответ уже никому не нужен
	done := make(chan sendOutcome, 1)
	go func() {
		res, err := d.session.SendMessage(attemptCtx, target, req.Body)
		done <- sendOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		latency := time.Since(start)
		if out.err != nil {
			switch {
			case ctx.Err() != nil:
				log.Warn("send abandoned: caller went away", "outcome", "canceled", "latency", latency, "error", out.err)
				return domain.SendResult{}, ctx.Err()
			case errors.Is(out.err, context.DeadlineExceeded):
				log.Error("send failed", "outcome", "timeout", "latency", latency, "error", out.err)
				return domain.SendResult{}, domain.ErrSendTimeout
			}
			log.Error("send failed", "outcome", "rejected", "latency", latency, "error", out.err)
			return domain.SendResult{}, &domain.RejectedError{Detail: out.err.Error()}
		}
		out.res.To = target
		log.Info("send succeeded",
			"outcome", "ok",
			"latency", latency,
			"message_id", out.res.ID,
			"ack", int(out.res.Ack),
		)
		return out.res, nil

	case <-attemptCtx.Done():
		latency := time.Since(start)
		go d.discardLate(log, done)

		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			log.Error("send failed", "outcome", "timeout", "latency", latency, "timeout", d.timeout)
			return domain.SendResult{}, domain.ErrSendTimeout
		}
		log.Warn("send abandoned: caller went away", "outcome", "canceled", "latency", latency, "error", ctx.Err())
		return domain.SendResult{}, ctx.Err()
	}
}

// discardLate дожидается брошенной попытки и только логирует её результат
func (d *DeliveryManager) discardLate(log *slog.Logger, done <-chan sendOutcome) {
	out := <-done
	if out.err != nil {
		log.Warn("late send completion discarded", "error", out.err)
		return
	}
	log.Warn("late send completion discarded", "message_id", out.res.ID, "ack", int(out.res.Ack))
}
