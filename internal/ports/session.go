package ports

import (
	"context"

	"github.com/larriantoniy/im_relay/internal/domain"
)

// Session определяет внешнюю сессию мессенджера.
// Реализуется адаптерами (whatsmeow, TDLib).
type Session interface {
	// Connect запускает подключение; события приходят в Events
	Connect(ctx context.Context) error
	// Events возвращает канал событий. События идут строго по одному.
	Events() <-chan domain.SessionEvent
	// SendMessage отправляет текст на канонический id ("<digits>@c.us", "<id>@newsletter")
	SendMessage(ctx context.Context, target, body string) (domain.SendResult, error)
	// ListChats возвращает чаты аккаунта; id в формате поля from входящих сообщений
	ListChats(ctx context.Context) ([]domain.Chat, error)
	// Close освобождает ресурсы сессии
	Close() error
}
