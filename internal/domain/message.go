package domain

import "time"

// Ack — подтверждение доставки, как его сообщила сессия
type Ack int

const (
	AckError   Ack = -1
	AckPending Ack = 0
	AckServer  Ack = 1
	AckDevice  Ack = 2
	AckRead    Ack = 3
	AckPlayed  Ack = 4
)

// OutboundRequest — одна отправка через API, не сохраняется
type OutboundRequest struct {
	TargetID    string
	Body        string
	SubmittedAt time.Time
}

// SendResult — что вернула сессия после отправки
type SendResult struct {
	ID  string `json:"id"`
	Ack Ack    `json:"ack"`
	To  string `json:"to,omitempty"`
}

// RawMessage описывает входящее сообщение так, как его отдал адаптер сессии
type RawMessage struct {
	From      string
	Body      string
	Timestamp int64
	ID        string
	HasMedia  bool
	Type      string
}

// InboundEvent — нормализованный payload для вебхука
type InboundEvent struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id"`
	HasMedia  bool   `json:"hasMedia"`
	Type      string `json:"type"`
	IsGroup   bool   `json:"isGroup"`
}
