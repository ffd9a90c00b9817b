package wa

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.mau.fi/whatsmeow/types"

	"github.com/larriantoniy/im_relay/internal/domain"
)

// ListChats собирает группы с сервера и контакты из локального хранилища.
// Счётчика непрочитанных whatsmeow не ведёт, UnreadCount всегда 0.
func (s *Session) ListChats(ctx context.Context) ([]domain.Chat, error) {
	s.mu.Lock()
	cli := s.client
	s.mu.Unlock()
	if cli == nil {
		return nil, ErrNotStarted
	}

	groups, err := cli.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}
	contacts, err := cli.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	return buildChats(groups, contacts), nil
}

// buildChats: сначала группы, затем контакты; внутри — по id
func buildChats(groups []*types.GroupInfo, contacts map[types.JID]types.ContactInfo) []domain.Chat {
	out := make([]domain.Chat, 0, len(groups)+len(contacts))
	for _, g := range groups {
		if g != nil {
			out = append(out, groupChat(g))
		}
	}
	slices.SortFunc(out, func(a, b domain.Chat) int { return cmp.Compare(a.ID, b.ID) })

	start := len(out)
	for jid, info := range contacts {
		if jid.Server != types.DefaultUserServer {
			continue
		}
		out = append(out, contactChat(jid, info))
	}
	slices.SortFunc(out[start:], func(a, b domain.Chat) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func groupChat(g *types.GroupInfo) domain.Chat {
	c := domain.Chat{
		ID:                fromJID(g.JID),
		Name:              g.Name,
		IsGroup:           true,
		ParticipantsCount: len(g.Participants),
	}
	if !g.GroupCreated.IsZero() {
		c.Timestamp = g.GroupCreated.Unix()
	}
	return c
}

func contactChat(jid types.JID, info types.ContactInfo) domain.Chat {
	name := cmp.Or(info.FullName, info.PushName, info.BusinessName, info.FirstName, jid.User)
	return domain.Chat{ID: fromJID(jid), Name: name}
}
