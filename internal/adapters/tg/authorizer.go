package tg

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zelenin/go-tdlib/client"

	"github.com/larriantoniy/im_relay/internal/domain"
)

var (
	errAuthClosed       = errors.New("tdlib: authorization closed")
	errPasswordRequired = errors.New("tdlib: two-step verification password required")
)

// qrPollInterval — client.Authorize опрашивает состояние в цикле,
// без паузы в ожидании подтверждения он крутится вхолостую
const qrPollInterval = time.Second

// qrAuthorizer — вход через QR-ссылку tg://login вместо кода из SMS
type qrAuthorizer struct {
	log      *slog.Logger
	params   *client.SetTdlibParametersRequest
	password string
	emit     func(domain.SessionEvent)

	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	lastLink string
	cli      *client.Client
}

func newQRAuthorizer(
	log *slog.Logger,
	params *client.SetTdlibParametersRequest,
	password string,
	emit func(domain.SessionEvent),
) *qrAuthorizer {
	return &qrAuthorizer{
		log:      log,
		params:   params,
		password: password,
		emit:     emit,
		done:     make(chan struct{}),
	}
}

func (a *qrAuthorizer) Handle(c *client.Client, state client.AuthorizationState) error {
	a.mu.Lock()
	a.cli = c
	a.mu.Unlock()

	switch s := state.(type) {
	case *client.AuthorizationStateWaitTdlibParameters:
		_, err := c.SetTdlibParameters(a.params)
		return err

	case *client.AuthorizationStateWaitPhoneNumber:
		a.log.Info("requesting QR code authentication")
		_, err := c.RequestQrCodeAuthentication(&client.RequestQrCodeAuthenticationRequest{})
		return err

	case *client.AuthorizationStateWaitOtherDeviceConfirmation:
		if a.rememberLink(s.Link) {
			a.emit(domain.QR(s.Link))
		}
		select {
		case <-a.done:
			return errAuthClosed
		case <-time.After(qrPollInterval):
			return nil
		}

	case *client.AuthorizationStateWaitPassword:
		if a.password == "" {
			return errPasswordRequired
		}
		_, err := c.CheckAuthenticationPassword(&client.CheckAuthenticationPasswordRequest{
			Password: a.password,
		})
		return err

	case *client.AuthorizationStateReady:
		return nil

	case *client.AuthorizationStateLoggingOut, *client.AuthorizationStateClosing, *client.AuthorizationStateClosed:
		return errAuthClosed

	default:
		return fmt.Errorf("unsupported authorization state %s", state.AuthorizationStateType())
	}
}

// Close вызывается client.Authorize по завершении и нами при остановке
func (a *qrAuthorizer) Close() {
	a.closeOnce.Do(func() { close(a.done) })
}

// rememberLink возвращает true, если ссылка новая
func (a *qrAuthorizer) rememberLink(link string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if link == "" || link == a.lastLink {
		return false
	}
	a.lastLink = link
	return true
}

func (a *qrAuthorizer) qrShown() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastLink != ""
}

func (a *qrAuthorizer) tdClient() *client.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cli
}
