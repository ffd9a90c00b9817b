package useCases

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/larriantoniy/im_relay/internal/domain"
)

// fakeSession — тестовый двойник ports.Session
type fakeSession struct {
	calls atomic.Int32

	mu      sync.Mutex
	targets []string
	sendFn  func(ctx context.Context, target, body string) (domain.SendResult, error)
	listFn  func(ctx context.Context) ([]domain.Chat, error)

	events     chan domain.SessionEvent
	connectErr error
	connected  atomic.Bool
	closed     atomic.Bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan domain.SessionEvent, 16)}
}

func (f *fakeSession) Connect(ctx context.Context) error {
	f.connected.Store(true)
	return f.connectErr
}

func (f *fakeSession) Events() <-chan domain.SessionEvent { return f.events }

func (f *fakeSession) SendMessage(ctx context.Context, target, body string) (domain.SendResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.targets = append(f.targets, target)
	fn := f.sendFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, target, body)
	}
	return domain.SendResult{ID: "msg-1", Ack: domain.AckServer}, nil
}

func (f *fakeSession) ListChats(ctx context.Context) ([]domain.Chat, error) {
	f.calls.Add(1)
	f.mu.Lock()
	fn := f.listFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil, nil
}

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

// fakeSink — тестовый двойник ports.Sink
type fakeSink struct {
	name string
	err  error
	wait bool

	mu     sync.Mutex
	events []domain.InboundEvent
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Forward(ctx context.Context, evt domain.InboundEvent) error {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
	if s.wait {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *fakeSink) received() []domain.InboundEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.InboundEvent(nil), s.events...)
}
