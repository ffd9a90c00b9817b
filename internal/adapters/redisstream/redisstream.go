package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/larriantoniy/im_relay/internal/domain"
)

const DefaultMaxLen = 10000

type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64 // приблизительный MAXLEN ~
}

// streamClient — часть redis.Cmdable, которой пользуется Sink
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Sink пишет входящие сообщения в Redis Stream: XADD <stream> MAXLEN ~ n * event <json>
type Sink struct {
	client streamClient
	logger *slog.Logger
	stream string
	maxLen int64
}

func New(cfg Config, logger *slog.Logger) *Sink {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newSink(client, cfg, logger)
}

func newSink(client streamClient, cfg Config, logger *slog.Logger) *Sink {
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Sink{
		client: client,
		logger: logger.With("component", "redisstream", "stream", cfg.Stream),
		stream: cfg.Stream,
		maxLen: maxLen,
	}
}

func (s *Sink) Name() string { return "redis:" + s.stream }

func (s *Sink) Forward(ctx context.Context, evt domain.InboundEvent) error {
	args, err := s.xaddArgs(evt)
	if err != nil {
		return err
	}
	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	s.logger.Debug("message appended to stream", "message_id", evt.ID, "entry_id", id)
	return nil
}

func (s *Sink) xaddArgs(evt domain.InboundEvent) (*redis.XAddArgs, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{
			"event":   string(payload),
			"from":    evt.From,
			"isGroup": evt.IsGroup,
		},
	}, nil
}

// Ping проверяет доступность Redis при старте
func (s *Sink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.client.Close()
}
