package domain

// Chat — элемент списка чатов сессии
type Chat struct {
	ID                string
	Name              string
	IsGroup           bool
	Timestamp         int64 // unix-время последней активности, 0 если неизвестно
	UnreadCount       int
	ParticipantsCount int
}
