package wa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/larriantoniy/im_relay/internal/domain"
)

var ErrNotStarted = errors.New("whatsmeow: client not started")

type Config struct {
	StorePath string // sqlite-файл с ключами устройства
}

// Session реализует ports.Session поверх whatsmeow
type Session struct {
	log    *slog.Logger
	cfg    Config
	events chan domain.SessionEvent

	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	client *whatsmeow.Client

	authenticated atomic.Bool
}

func New(log *slog.Logger, cfg Config) *Session {
	return &Session{
		log:    log.With("component", "whatsapp"),
		cfg:    cfg,
		events: make(chan domain.SessionEvent, 64),
		done:   make(chan struct{}),
	}
}

func (s *Session) Events() <-chan domain.SessionEvent { return s.events }

// Connect открывает хранилище устройства и подключается.
// Без сохранённой сессии сначала поднимается QR-канал.
func (s *Session) Connect(ctx context.Context) error {
	waLogger := newLogger(s.log)

	container, err := sqlstore.New(ctx, "sqlite3", "file:"+s.cfg.StorePath+"?_foreign_keys=on", waLogger.Sub("Database"))
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && device == nil) {
		device = container.NewDevice()
	} else if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	cli := whatsmeow.NewClient(device, waLogger.Sub("Client"))
	// разрыв фиксируется как Disconnected, переподключение только перезапуском
	cli.EnableAutoReconnect = false
	cli.AddEventHandler(s.handleEvent)

	s.mu.Lock()
	s.client = cli
	s.mu.Unlock()

	if cli.Store.ID == nil {
		qrChan, err := cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go s.pumpQR(qrChan)
	} else {
		s.log.Info("restoring stored session", "jid", cli.Store.ID.String())
	}

	if err := cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (s *Session) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			s.emit(domain.QR(item.Code))
		case "success":
			// дальше ведёт PairSuccess
		case "timeout":
			s.emit(domain.QRTimeout("qr pairing window expired"))
		default:
			reason := item.Event
			if item.Error != nil {
				reason = fmt.Sprintf("%s: %v", item.Event, item.Error)
			}
			s.emit(domain.AuthFailure(reason))
		}
	}
}

func (s *Session) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		s.log.Info("device paired", "jid", v.ID.String())
		s.markAuthenticated()
	case *events.Connected:
		s.markAuthenticated()
		s.emit(domain.Ready())
	case *events.Disconnected:
		s.emit(domain.Disconnected("connection lost"))
	case *events.StreamReplaced:
		s.emit(domain.Disconnected("stream replaced by another client"))
	case *events.LoggedOut:
		s.authenticated.Store(false)
		if v.OnConnect {
			s.emit(domain.Fault(fmt.Sprintf("stored session rejected on connect (reason %v), pairing required", v.Reason)))
			return
		}
		s.emit(domain.Disconnected(fmt.Sprintf("logged out (reason %v)", v.Reason)))
	case *events.ConnectFailure:
		s.emit(domain.Fault(fmt.Sprintf("connect failure: %v %s", v.Reason, v.Message)))
	case *events.TemporaryBan:
		s.emit(domain.Fault(fmt.Sprintf("temporary ban: %v", v)))
	case *events.ClientOutdated:
		s.emit(domain.Fault("client outdated"))
	case *events.Message:
		if raw, ok := toRawMessage(v); ok {
			s.emit(domain.Incoming(raw))
		}
	}
}

func (s *Session) markAuthenticated() {
	if !s.authenticated.Swap(true) {
		s.emit(domain.Authenticated())
	}
}

func (s *Session) SendMessage(ctx context.Context, target, body string) (domain.SendResult, error) {
	s.mu.Lock()
	cli := s.client
	s.mu.Unlock()
	if cli == nil {
		return domain.SendResult{}, ErrNotStarted
	}

	jid, err := toJID(target)
	if err != nil {
		return domain.SendResult{}, err
	}
	resp, err := cli.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(body)})
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("send message: %w", err)
	}
	// SendMessage возвращается после ответа сервера
	return domain.SendResult{ID: string(resp.ID), Ack: domain.AckServer}, nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		cli := s.client
		s.mu.Unlock()

		if cli != nil {
			cli.Disconnect()
		}
		s.log.Info("whatsapp client disconnected")
	})
	return nil
}

func (s *Session) emit(evt domain.SessionEvent) {
	select {
	case s.events <- evt:
	case <-s.done:
	}
}
