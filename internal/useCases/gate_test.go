package useCases

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/larriantoniy/im_relay/internal/domain"
)

type staticSource struct{ snap domain.Snapshot }

func (s *staticSource) CurrentStatus() domain.Snapshot { return s.snap }

func TestGateReadyIffStatusReady(t *testing.T) {
	src := &staticSource{}
	gate := NewReadinessGate(src)

	for _, st := range allStatuses {
		src.snap = domain.Snapshot{Status: st}
		assert.Equal(t, st == domain.StatusReady, gate.IsReady(), "status %s", st)
	}
}

func TestGateReadyForEveryReachableState(t *testing.T) {
	for _, st := range allStatuses {
		m, _ := newMachine(t)
		apply(m, pathTo(st)...)
		gate := NewReadinessGate(m)
		assert.Equal(t, st == domain.StatusReady, gate.IsReady(), "status %s", st)
	}
}

func TestGateMinReadyAge(t *testing.T) {
	clk := clock.NewMock()
	src := &staticSource{snap: domain.Snapshot{Status: domain.StatusReady, LastTransitionAt: clk.Now()}}
	gate := NewReadinessGate(src, WithMinReadyAge(5*time.Second, clk))

	assert.False(t, gate.IsReady())
	clk.Add(5 * time.Second)
	assert.True(t, gate.IsReady())

	snap, ok := gate.Check()
	assert.True(t, ok)
	assert.Equal(t, domain.StatusReady, snap.Status)
}
