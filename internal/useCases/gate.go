package useCases

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/larriantoniy/im_relay/internal/domain"
)

// StatusSource отдаёт текущий снимок сессии
type StatusSource interface {
	CurrentStatus() domain.Snapshot
}

// ReadinessGate решает, можно ли пользоваться сессией.
// Своего состояния не имеет — только политика над снимком.
type ReadinessGate struct {
	src         StatusSource
	clock       clock.Clock
	minReadyAge time.Duration
}

type GateOption func(*ReadinessGate)

// WithMinReadyAge требует, чтобы сессия пробыла в Ready не меньше d
func WithMinReadyAge(d time.Duration, clk clock.Clock) GateOption {
	return func(g *ReadinessGate) {
		g.minReadyAge = d
		if clk != nil {
			g.clock = clk
		}
	}
}

func NewReadinessGate(src StatusSource, opts ...GateOption) *ReadinessGate {
	g := &ReadinessGate{src: src, clock: clock.New()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *ReadinessGate) IsReady() bool {
	return g.ready(g.src.CurrentStatus())
}

// Check возвращает снимок и решение по нему одним чтением
func (g *ReadinessGate) Check() (domain.Snapshot, bool) {
	snap := g.src.CurrentStatus()
	return snap, g.ready(snap)
}

func (g *ReadinessGate) ready(snap domain.Snapshot) bool {
	if snap.Status != domain.StatusReady {
		return false
	}
	if g.minReadyAge > 0 && g.clock.Since(snap.LastTransitionAt) < g.minReadyAge {
		return false
	}
	return true
}
