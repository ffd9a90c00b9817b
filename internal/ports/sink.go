package ports

import (
	"context"

	"github.com/larriantoniy/im_relay/internal/domain"
)

// Sink принимает нормализованные входящие сообщения (вебхук, redis stream)
type Sink interface {
	Name() string
	Forward(ctx context.Context, evt domain.InboundEvent) error
}
