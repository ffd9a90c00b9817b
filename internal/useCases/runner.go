package useCases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/larriantoniy/im_relay/internal/domain"
	"github.com/larriantoniy/im_relay/internal/ports"
)

const (
	DefaultInitTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

type RunnerConfig struct {
	InitTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Runner ведёт жизненный цикл сессии: подключение, поток событий, остановка
type Runner struct {
	log     *slog.Logger
	session ports.Session
	machine *SessionStateMachine
	relay   *InboundRelay
	cfg     RunnerConfig
	onQR    func(payload string)
}

type RunnerOption func(*Runner)

// WithQRHandler вызывается на каждый новый QR (например, печать в терминал)
func WithQRHandler(fn func(payload string)) RunnerOption {
	return func(r *Runner) { r.onQR = fn }
}

func NewRunner(
	log *slog.Logger,
	session ports.Session,
	machine *SessionStateMachine,
	relay *InboundRelay,
	cfg RunnerConfig,
	opts ...RunnerOption,
) *Runner {
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	r := &Runner{
		log:     log.With("component", "runner"),
		session: session,
		machine: machine,
		relay:   relay,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run блокируется до отмены ctx, затем закрывает сессию с ограничением по времени
func (r *Runner) Run(ctx context.Context) error {
	r.machine.StartInitTimer(r.cfg.InitTimeout)
	events := r.session.Events()

	connectErr := make(chan error, 1)
	go func() { connectErr <- r.session.Connect(ctx) }()
	r.log.Info("session starting", "init_timeout", r.cfg.InitTimeout)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("shutdown requested, stopping session")
			return r.shutdown()

		case err := <-connectErr:
			connectErr = nil
			if err != nil && ctx.Err() == nil {
				r.log.Error("session connect failed", "error", err)
				r.dispatch(domain.Fault(fmt.Sprintf("connect: %v", err)))
			}

		case evt, ok := <-events:
			if !ok {
				r.log.Warn("session event stream closed")
				events = nil
				continue
			}
			r.dispatch(evt)
		}
	}
}

func (r *Runner) dispatch(evt domain.SessionEvent) {
	if evt.Kind == domain.EventMessage {
		if evt.Message == nil {
			r.log.Warn("message event without payload, ignored")
			return
		}
		r.relay.OnMessage(*evt.Message)
		return
	}

	if r.machine.OnEvent(evt) && evt.Kind == domain.EventQR && r.onQR != nil {
		r.onQR(evt.Payload)
	}
}

func (r *Runner) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error

	closed := make(chan error, 1)
	go func() { closed <- r.session.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("close session: %w", ctx.Err()))
	}

	if err := r.relay.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain inbound forwards: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		r.log.Error("session stopped with errors", "error", err)
		return err
	}
	r.log.Info("session stopped")
	return nil
}
