package tg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/zelenin/go-tdlib/client"

	"github.com/larriantoniy/im_relay/internal/domain"
)

var (
	ErrRateLimited = errors.New("tdlib: too many requests")
	ErrNotStarted  = errors.New("tdlib: client not started")
)

type Config struct {
	APIID        int32
	APIHash      string
	SessionsDir  string // "/sessions"
	SessionName  string // "923345799730" и т.п.
	LogVerbosity int32
}

// Session реализует ports.Session поверх TDLib
type Session struct {
	log    *slog.Logger
	cfg    Config
	events chan domain.SessionEvent

	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	auth     *qrAuthorizer
	client   *client.Client
	listener *client.Listener
}

func New(log *slog.Logger, cfg Config) *Session {
	return &Session{
		log:    log.With("component", "telegram", "session", cfg.SessionName),
		cfg:    cfg,
		events: make(chan domain.SessionEvent, 64),
		done:   make(chan struct{}),
	}
}

func (s *Session) Events() <-chan domain.SessionEvent { return s.events }

// Connect готовит каталоги сессии и запускает авторизацию в фоне.
// client.NewClient блокируется до завершения авторизации.
func (s *Session) Connect(ctx context.Context) error {
	raw, err := LoadRawSessionConfig(s.cfg.SessionsDir, s.cfg.SessionName)
	if err != nil {
		return err
	}
	sc, err := raw.ToSessionConfig()
	if err != nil {
		return err
	}

	sessionDir := filepath.Join(s.cfg.SessionsDir, sc.SessionName)
	dbDir := filepath.Join(sessionDir, "database")
	filesDir := filepath.Join(sessionDir, "files")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return fmt.Errorf("mkdir files dir: %w", err)
	}

	if _, err := client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
		NewVerbosityLevel: s.cfg.LogVerbosity,
	}); err != nil {
		s.log.Error("TDLib SetLogVerbosityLevel", "error", err)
	}

	checkConnectivity(ctx, s.log, sc.Proxy)

	var opts []client.Option
	if sc.Proxy != nil && sc.Proxy.Enabled {
		opts = append(opts, proxyOption(sc.Proxy))
	}

	auth := newQRAuthorizer(s.log,
		tdParams(sc, s.cfg.APIID, s.cfg.APIHash, dbDir, filesDir),
		raw.Password,
		s.emit,
	)
	s.mu.Lock()
	s.auth = auth
	s.mu.Unlock()

	go s.start(auth, opts)
	return nil
}

func (s *Session) start(auth *qrAuthorizer, opts []client.Option) {
	tdCli, err := client.NewClient(auth, opts...)
	if err != nil {
		if s.stopped() {
			return
		}
		s.log.Error("TDLib NewClient error", "error", err)
		if auth.qrShown() {
			s.emit(domain.AuthFailure(err.Error()))
		} else {
			s.emit(domain.Fault(err.Error()))
		}
		return
	}

	s.mu.Lock()
	if s.stopped() {
		s.mu.Unlock()
		tdCli.Close()
		return
	}
	s.client = tdCli
	s.listener = tdCli.GetListener()
	listener := s.listener
	s.mu.Unlock()

	if me, err := tdCli.GetMe(); err != nil {
		s.log.Warn("GetMe failed", "error", err)
	} else {
		s.log.Info("TDLib client initialized and authorized", "self_id", me.Id)
	}

	s.emit(domain.Authenticated())
	s.emit(domain.Ready())
	s.listen(listener)
}

func (s *Session) listen(listener *client.Listener) {
	for {
		select {
		case <-s.done:
			return
		case update, ok := <-listener.Updates:
			if !ok {
				s.emit(domain.Disconnected("update stream closed"))
				return
			}
			switch upd := update.(type) {
			case *client.UpdateNewMessage:
				if raw, ok := toRawMessage(upd.Message); ok {
					s.emit(domain.Incoming(raw))
				}
			case *client.UpdateAuthorizationState:
				switch upd.AuthorizationState.(type) {
				case *client.AuthorizationStateLoggingOut, *client.AuthorizationStateClosed:
					s.emit(domain.Disconnected(upd.AuthorizationState.AuthorizationStateType()))
				}
			}
		}
	}
}

func (s *Session) SendMessage(ctx context.Context, target, body string) (domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendResult{}, err
	}
	s.mu.Lock()
	tdCli := s.client
	s.mu.Unlock()
	if tdCli == nil {
		return domain.SendResult{}, ErrNotStarted
	}

	chatID, err := s.resolveChat(tdCli, target)
	if err != nil {
		return domain.SendResult{}, err
	}

	msg, err := tdCli.SendMessage(&client.SendMessageRequest{
		ChatId: chatID,
		InputMessageContent: &client.InputMessageText{
			Text:       &client.FormattedText{Text: body},
			ClearDraft: true,
		},
	})
	if err != nil {
		if isTooManyRequests(err) {
			s.log.Error("SendMessage rate-limited", "chat_id", chatID, "error", err)
			return domain.SendResult{}, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return domain.SendResult{}, fmt.Errorf("send message: %w", err)
	}

	return domain.SendResult{
		ID:  strconv.FormatInt(msg.Id, 10),
		Ack: ackOf(msg.SendingState),
	}, nil
}

// chatListLimit — сколько чатов основного списка отдаёт ListChats
const chatListLimit = 100

func (s *Session) ListChats(ctx context.Context) ([]domain.Chat, error) {
	s.mu.Lock()
	tdCli := s.client
	s.mu.Unlock()
	if tdCli == nil {
		return nil, ErrNotStarted
	}

	chatsResp, err := tdCli.GetChats(&client.GetChatsRequest{
		ChatList: &client.ChatListMain{},
		Limit:    chatListLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("GetChats failed: %w", err)
	}

	chats := make([]domain.Chat, 0, len(chatsResp.ChatIds))
	for _, chatID := range chatsResp.ChatIds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chat, err := tdCli.GetChat(&client.GetChatRequest{ChatId: chatID})
		if err != nil {
			s.log.Error("GetChat failed", "chat_id", chatID, "error", err)
			continue
		}
		chats = append(chats, chatOf(chat, s.memberCount(tdCli, chat.Type)))
	}
	return chats, nil
}

func (s *Session) memberCount(tdCli *client.Client, ct client.ChatType) int32 {
	switch t := ct.(type) {
	case *client.ChatTypeBasicGroup:
		g, err := tdCli.GetBasicGroup(&client.GetBasicGroupRequest{BasicGroupId: t.BasicGroupId})
		if err != nil {
			s.log.Warn("GetBasicGroup failed", "group_id", t.BasicGroupId, "error", err)
			return 0
		}
		return g.MemberCount
	case *client.ChatTypeSupergroup:
		sup, err := tdCli.GetSupergroup(&client.GetSupergroupRequest{SupergroupId: t.SupergroupId})
		if err != nil {
			s.log.Warn("GetSupergroup failed", "supergroup_id", t.SupergroupId, "error", err)
			return 0
		}
		return sup.MemberCount
	default:
		return 0
	}
}

func (s *Session) resolveChat(tdCli *client.Client, target string) (int64, error) {
	t, err := parseTarget(target)
	if err != nil {
		return 0, err
	}
	if t.chatID != 0 {
		return t.chatID, nil
	}

	if t.phone != "" {
		user, err := tdCli.SearchUserByPhoneNumber(&client.SearchUserByPhoneNumberRequest{
			PhoneNumber: t.phone,
		})
		if err != nil {
			return 0, fmt.Errorf("search user by phone: %w", err)
		}
		chat, err := tdCli.CreatePrivateChat(&client.CreatePrivateChatRequest{UserId: user.Id})
		if err != nil {
			return 0, fmt.Errorf("create private chat: %w", err)
		}
		return chat.Id, nil
	}

	chat, err := tdCli.SearchPublicChat(&client.SearchPublicChatRequest{Username: t.username})
	if err != nil {
		return 0, fmt.Errorf("search public chat %q: %w", t.username, err)
	}
	return chat.Id, nil
}

// Close останавливает авторизацию и TDLib-клиент. Повторный вызов ничего не делает.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		auth, tdCli, listener := s.auth, s.client, s.listener
		s.mu.Unlock()

		if listener != nil {
			listener.Close()
		}
		if auth != nil {
			auth.Close()
			// авторизация ещё идёт: NewClient вернётся после закрытия клиента
			if tdCli == nil {
				tdCli = auth.tdClient()
			}
		}
		if tdCli != nil {
			tdCli.Close()
		}
		s.log.Info("TDLib client closed")
	})
	return nil
}

func (s *Session) emit(evt domain.SessionEvent) {
	select {
	case s.events <- evt:
	case <-s.done:
	}
}

func (s *Session) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type chatTarget struct {
	phone    string
	chatID   int64
	username string
}

// parseTarget: "<digits>@c.us" — номер телефона,
// "<id|username>@newsletter" и "<id>@g.us" — канал или группа
func parseTarget(target string) (chatTarget, error) {
	if id, ok := strings.CutSuffix(target, domain.ChannelSuffix); ok {
		return chatRef(id)
	}
	if id, ok := strings.CutSuffix(target, domain.GroupSuffix); ok {
		return chatRef(id)
	}
	if phone, ok := strings.CutSuffix(target, domain.ContactSuffix); ok && phone != "" {
		return chatTarget{phone: phone}, nil
	}
	return chatTarget{}, fmt.Errorf("unsupported target %q", target)
}

func chatRef(id string) (chatTarget, error) {
	id = strings.TrimPrefix(id, "@")
	if id == "" {
		return chatTarget{}, errors.New("empty chat reference")
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return chatTarget{chatID: n}, nil
	}
	return chatTarget{username: id}, nil
}

// toRawMessage: группы и каналы в TDLib имеют отрицательный chat id
func toRawMessage(m *client.Message) (domain.RawMessage, bool) {
	if m == nil || m.IsOutgoing || m.Content == nil {
		return domain.RawMessage{}, false
	}

	server := domain.ContactSuffix
	if m.ChatId < 0 {
		server = domain.GroupSuffix
	}
	raw := domain.RawMessage{
		From:      strconv.FormatInt(m.ChatId, 10) + server,
		Timestamp: int64(m.Date),
		ID:        strconv.FormatInt(m.Id, 10),
	}

	switch c := m.Content.(type) {
	case *client.MessageText:
		raw.Type = "chat"
		raw.Body = formatted(c.Text)
	case *client.MessagePhoto:
		raw.Type, raw.HasMedia, raw.Body = "image", true, formatted(c.Caption)
	case *client.MessageVideo:
		raw.Type, raw.HasMedia, raw.Body = "video", true, formatted(c.Caption)
	case *client.MessageDocument:
		raw.Type, raw.HasMedia, raw.Body = "document", true, formatted(c.Caption)
	case *client.MessageAudio:
		raw.Type, raw.HasMedia, raw.Body = "audio", true, formatted(c.Caption)
	case *client.MessageVoiceNote:
		raw.Type, raw.HasMedia, raw.Body = "ptt", true, formatted(c.Caption)
	case *client.MessageSticker:
		raw.Type, raw.HasMedia = "sticker", true
	default:
		raw.Type = m.Content.MessageContentType()
	}
	return raw, true
}

// chatOf: каналы получают суффикс @newsletter, группы и супергруппы @g.us
func chatOf(c *client.Chat, members int32) domain.Chat {
	out := domain.Chat{
		Name:              c.Title,
		UnreadCount:       int(c.UnreadCount),
		ParticipantsCount: int(members),
	}
	if c.LastMessage != nil {
		out.Timestamp = int64(c.LastMessage.Date)
	}

	server := domain.ContactSuffix
	switch t := c.Type.(type) {
	case *client.ChatTypeBasicGroup:
		server, out.IsGroup = domain.GroupSuffix, true
	case *client.ChatTypeSupergroup:
		if t.IsChannel {
			server = domain.ChannelSuffix
		} else {
			server, out.IsGroup = domain.GroupSuffix, true
		}
	}
	out.ID = strconv.FormatInt(c.Id, 10) + server
	return out
}

func formatted(t *client.FormattedText) string {
	if t == nil {
		return ""
	}
	return t.Text
}

func ackOf(state client.MessageSendingState) domain.Ack {
	switch state.(type) {
	case nil:
		return domain.AckServer
	case *client.MessageSendingStatePending:
		return domain.AckPending
	case *client.MessageSendingStateFailed:
		return domain.AckError
	default:
		return domain.AckPending
	}
}

// isTooManyRequests: TDLib отдаёт "429 Too Many Requests: retry after N"
func isTooManyRequests(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}
