package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larriantoniy/im_relay/internal/domain"
)

type fakeClient struct {
	args   []*redis.XAddArgs
	err    error
	closed bool
}

func (f *fakeClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1700000000000-0", f.err)
}

func (f *fakeClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestForwardAppendsEvent(t *testing.T) {
	fc := &fakeClient{}
	s := newSink(fc, Config{Stream: "inbound"}, discard())

	evt := domain.InboundEvent{From: "1203630@g.us", ID: "X1", Body: "hi", Type: "chat", IsGroup: true}
	require.NoError(t, s.Forward(context.Background(), evt))
	require.Len(t, fc.args, 1)

	a := fc.args[0]
	assert.Equal(t, "inbound", a.Stream)
	assert.Equal(t, int64(DefaultMaxLen), a.MaxLen)
	assert.True(t, a.Approx)

	values, ok := a.Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1203630@g.us", values["from"])
	assert.Equal(t, true, values["isGroup"])

	var got domain.InboundEvent
	require.NoError(t, json.Unmarshal([]byte(values["event"].(string)), &got))
	assert.Equal(t, evt, got)
}

func TestForwardError(t *testing.T) {
	fc := &fakeClient{err: errors.New("READONLY")}
	s := newSink(fc, Config{Stream: "inbound", MaxLen: 10}, discard())

	err := s.Forward(context.Background(), domain.InboundEvent{ID: "X"})
	assert.ErrorContains(t, err, "xadd inbound")
	assert.ErrorContains(t, s.Ping(context.Background()), "READONLY")
	assert.Equal(t, "redis:inbound", s.Name())

	require.NoError(t, s.Close())
	assert.True(t, fc.closed)
}
