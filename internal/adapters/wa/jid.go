package wa

import (
	"fmt"

	"go.mau.fi/whatsmeow/types"

	"github.com/larriantoniy/im_relay/internal/domain"
)

// Внешний формат id — как у WhatsApp Web: "<digits>@c.us", "<id>@g.us", "<id>@newsletter".
// whatsmeow использует s.whatsapp.net для пользователей.
const legacyUserServer = "c.us"

func toJID(target string) (types.JID, error) {
	user, server, ok := domain.SplitID(target)
	if !ok {
		return types.JID{}, fmt.Errorf("malformed target %q", target)
	}
	switch server {
	case legacyUserServer, types.DefaultUserServer:
		return types.NewJID(user, types.DefaultUserServer), nil
	case types.GroupServer, types.NewsletterServer, types.HiddenUserServer:
		return types.NewJID(user, server), nil
	default:
		return types.JID{}, fmt.Errorf("unsupported server %q in target %q", server, target)
	}
}

func fromJID(j types.JID) string {
	if j.User == "" || j.Server == "" {
		return ""
	}
	server := j.Server
	if server == types.DefaultUserServer {
		server = legacyUserServer
	}
	return j.User + "@" + server
}
