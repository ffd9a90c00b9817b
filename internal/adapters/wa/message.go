package wa

import (
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/larriantoniy/im_relay/internal/domain"
)

// toRawMessage переводит входящее сообщение whatsmeow в RawMessage.
// Свои сообщения и статусы пропускаются.
func toRawMessage(v *events.Message) (domain.RawMessage, bool) {
	if v == nil || v.Info.IsFromMe || v.Info.Chat == types.StatusBroadcastJID {
		return domain.RawMessage{}, false
	}

	raw := domain.RawMessage{
		From:      fromJID(v.Info.Chat),
		Timestamp: v.Info.Timestamp.Unix(),
		ID:        string(v.Info.ID),
		Type:      "chat",
	}

	m := v.Message
	if m == nil {
		raw.Type = "unknown"
		return raw, true
	}

	switch {
	case m.GetConversation() != "":
		raw.Body = m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		raw.Body = m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage() != nil:
		raw.Type, raw.HasMedia, raw.Body = "image", true, m.GetImageMessage().GetCaption()
	case m.GetVideoMessage() != nil:
		raw.Type, raw.HasMedia, raw.Body = "video", true, m.GetVideoMessage().GetCaption()
	case m.GetAudioMessage() != nil:
		raw.Type, raw.HasMedia = "audio", true
		if m.GetAudioMessage().GetPTT() {
			raw.Type = "ptt"
		}
	case m.GetDocumentMessage() != nil:
		raw.Type, raw.HasMedia, raw.Body = "document", true, m.GetDocumentMessage().GetCaption()
	case m.GetStickerMessage() != nil:
		raw.Type, raw.HasMedia = "sticker", true
	case m.GetLocationMessage() != nil:
		raw.Type = "location"
	case m.GetContactMessage() != nil:
		raw.Type = "vcard"
	default:
		raw.Type = "unknown"
	}
	return raw, true
}
