package domain

import "strings"

const (
	ContactSuffix = "@c.us"
	GroupSuffix   = "@g.us"
	ChannelSuffix = "@newsletter"
)

// NormalizeTarget приводит номер к каноническому виду "<digits>@c.us".
// Для строки без цифр возвращает "".
func NormalizeTarget(id string) string {
	id = strings.TrimSuffix(strings.TrimSpace(id), ContactSuffix)

	var b strings.Builder
	b.Grow(len(id) + len(ContactSuffix))
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	b.WriteString(ContactSuffix)
	return b.String()
}

// NormalizeChannel добавляет "@newsletter", если его нет
func NormalizeChannel(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasSuffix(id, ChannelSuffix) {
		return id
	}
	return id + ChannelSuffix
}

// SplitID разбирает "<user>@<server>"; ok=false если одна из частей пустая
func SplitID(id string) (user, server string, ok bool) {
	user, server, found := strings.Cut(id, "@")
	if !found || user == "" || server == "" || strings.ContainsAny(server, "@ ") {
		return "", "", false
	}
	return user, server, true
}
