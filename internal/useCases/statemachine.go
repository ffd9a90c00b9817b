package useCases

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/larriantoniy/im_relay/internal/domain"
)

// transitions — единственная таблица допустимых переходов.
// Таймер инициализации (→ TimedOut) обрабатывается отдельно.
var transitions = map[domain.Status]map[domain.EventKind]domain.Status{
	domain.StatusInitializing: {
		domain.EventQR:            domain.StatusQrPending,
		domain.EventAuthenticated: domain.StatusAuthenticated,
		domain.EventError:         domain.StatusErrored,
	},
	domain.StatusQrPending: {
		domain.EventQR:            domain.StatusQrPending,
		domain.EventAuthenticated: domain.StatusAuthenticated,
		domain.EventAuthFailure:   domain.StatusAuthFailed,
		domain.EventQRTimeout:     domain.StatusTimedOut,
		domain.EventError:         domain.StatusErrored,
	},
	domain.StatusAuthenticated: {
		domain.EventReady:        domain.StatusReady,
		domain.EventDisconnected: domain.StatusDisconnected,
		domain.EventError:        domain.StatusErrored,
	},
	domain.StatusReady: {
		domain.EventDisconnected: domain.StatusDisconnected,
		domain.EventError:        domain.StatusErrored,
	},
	domain.StatusDisconnected: {
		domain.EventQR:    domain.StatusQrPending,
		domain.EventError: domain.StatusErrored,
	},
	domain.StatusAuthFailed: {
		domain.EventError: domain.StatusErrored,
	},
	domain.StatusTimedOut: {
		domain.EventError: domain.StatusErrored,
	},
	domain.StatusErrored: {},
}

// SessionStateMachine владеет SessionState.
// Запись сериализована mu (события и таймер), чтение — через атомарный снимок.
type SessionStateMachine struct {
	log   *slog.Logger
	clock clock.Clock

	mu        sync.Mutex
	initTimer *clock.Timer
	timerGen  uint64

	state atomic.Pointer[domain.Snapshot]
}

func NewSessionStateMachine(log *slog.Logger, clk clock.Clock) *SessionStateMachine {
	if clk == nil {
		clk = clock.New()
	}
	m := &SessionStateMachine{
		log:   log.With("component", "session"),
		clock: clk,
	}
	m.state.Store(&domain.Snapshot{
		Status:           domain.StatusInitializing,
		LastTransitionAt: clk.Now(),
	})
	return m
}

// CurrentStatus возвращает снимок последнего применённого состояния
func (m *SessionStateMachine) CurrentStatus() domain.Snapshot {
	return *m.state.Load()
}

// StartInitTimer взводит одноразовый таймер: если за d не пришли qr/authenticated,
// сессия переходит в TimedOut. Вне Initializing ничего не делает.
func (m *SessionStateMachine) StartInitTimer(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Load().Status != domain.StatusInitializing {
		m.log.Warn("init timer not armed: session already left initializing",
			"status", m.state.Load().Status.String())
		return
	}
	m.stopTimerLocked()

	m.timerGen++
	gen := m.timerGen
	m.initTimer = m.clock.AfterFunc(d, func() { m.onInitTimeout(gen, d) })
	m.log.Info("init timer armed", "timeout", d)
}

// OnEvent применяет событие сессии. Возвращает true, если состояние изменилось.
// Недопустимое для текущего состояния событие логируется и игнорируется.
func (m *SessionStateMachine) OnEvent(evt domain.SessionEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.state.Load()
	next, ok := transitions[cur.Status][evt.Kind]
	if !ok {
		if isDuplicate(cur.Status, evt.Kind) {
			m.log.Debug("duplicate event ignored", "event", evt.Kind.String(), "status", cur.Status.String())
			return false
		}
		m.log.Warn("event not valid for current state, ignored",
			"event", evt.Kind.String(),
			"status", cur.Status.String(),
			"payload", evt.Payload,
		)
		return false
	}

	snap := domain.Snapshot{
		Status:           next,
		LastTransitionAt: m.clock.Now(),
	}
	switch next {
	case domain.StatusQrPending:
		snap.QRPayload = evt.Payload
	case domain.StatusAuthFailed:
		snap.ErrorDetail = evt.Payload
	case domain.StatusTimedOut:
		snap.ErrorDetail = fmt.Sprintf("%s: %s", domain.ErrInitTimeout, evt.Payload)
	case domain.StatusErrored:
		snap.ErrorDetail = fmt.Sprintf("%s: %s", domain.ErrSessionFault, evt.Payload)
	}

	if cur.Status == domain.StatusInitializing || next == domain.StatusErrored {
		m.stopTimerLocked()
	}
	m.state.Store(&snap)

	m.logTransition(cur.Status, next, evt)
	return true
}

func (m *SessionStateMachine) onInitTimeout(gen uint64, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// таймер мог быть отменён уже после срабатывания
	if gen != m.timerGen || m.initTimer == nil {
		return
	}
	m.initTimer = nil

	cur := m.state.Load()
	if cur.Status != domain.StatusInitializing {
		return
	}
	m.state.Store(&domain.Snapshot{
		Status:           domain.StatusTimedOut,
		ErrorDetail:      fmt.Sprintf("%s after %s", domain.ErrInitTimeout, d),
		LastTransitionAt: m.clock.Now(),
	})
	m.log.Error("session initialization timed out",
		"timeout", d,
		"error", domain.ErrInitTimeout,
	)
}

func (m *SessionStateMachine) stopTimerLocked() {
	if m.initTimer == nil {
		return
	}
	m.initTimer.Stop()
	m.initTimer = nil
	m.timerGen++
}

func (m *SessionStateMachine) logTransition(from, to domain.Status, evt domain.SessionEvent) {
	attrs := []any{"from", from.String(), "to", to.String(), "event", evt.Kind.String()}
	switch to {
	case domain.StatusErrored, domain.StatusAuthFailed, domain.StatusTimedOut:
		m.log.Error("session transition", append(attrs, "reason", evt.Payload)...)
	case domain.StatusDisconnected:
		m.log.Warn("session transition", append(attrs, "reason", evt.Payload)...)
	case domain.StatusQrPending:
		if from == domain.StatusQrPending {
			m.log.Debug("qr payload refreshed")
			return
		}
		m.log.Info("session transition", attrs...)
	default:
		m.log.Info("session transition", attrs...)
	}
}

// isDuplicate — повтор события, которое уже привело в текущее состояние
func isDuplicate(s domain.Status, k domain.EventKind) bool {
	return (s == domain.StatusReady && k == domain.EventReady) ||
		(s == domain.StatusAuthenticated && k == domain.EventAuthenticated) ||
		(s == domain.StatusErrored && k == domain.EventError)
}
