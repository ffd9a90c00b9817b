package useCases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/larriantoniy/im_relay/internal/domain"
	"github.com/larriantoniy/im_relay/internal/ports"
)

const DefaultListTimeout = 30 * time.Second

type DirectoryConfig struct {
	ListTimeout time.Duration
}

// ChatDirectory отдаёт список чатов сессии через тот же ReadinessGate, что и отправка
type ChatDirectory struct {
	log     *slog.Logger
	gate    *ReadinessGate
	session ports.Session
	timeout time.Duration
}

func NewChatDirectory(log *slog.Logger, gate *ReadinessGate, session ports.Session, cfg DirectoryConfig) *ChatDirectory {
	timeout := cfg.ListTimeout
	if timeout <= 0 {
		timeout = DefaultListTimeout
	}
	return &ChatDirectory{
		log:     log.With("component", "chats"),
		gate:    gate,
		session: session,
		timeout: timeout,
	}
}

// Chats возвращает все чаты: контакты, группы, каналы
func (d *ChatDirectory) Chats(ctx context.Context) ([]domain.Chat, error) {
	if snap, ok := d.gate.Check(); !ok {
		d.log.Warn("chat list refused: session not ready", "status", snap.Status.String())
		return nil, &domain.NotReadyError{Status: snap.Status}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	chats, err := d.session.ListChats(ctx)
	if err != nil {
		d.log.Error("list chats failed", "latency", time.Since(start), "error", err)
		return nil, fmt.Errorf("list chats: %w", err)
	}
	d.log.Debug("chats listed", "count", len(chats), "latency", time.Since(start))
	return chats, nil
}

// Groups — только групповые чаты из Chats
func (d *ChatDirectory) Groups(ctx context.Context) ([]domain.Chat, error) {
	chats, err := d.Chats(ctx)
	if err != nil {
		return nil, err
	}
	groups := make([]domain.Chat, 0, len(chats))
	for _, c := range chats {
		if c.IsGroup {
			groups = append(groups, c)
		}
	}
	return groups, nil
}
