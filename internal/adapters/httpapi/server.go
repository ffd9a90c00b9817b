package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/larriantoniy/im_relay/internal/domain"
)

// isoMillis — формат JS toISOString, его ждут существующие клиенты
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Readiness — снимок сессии вместе с решением ReadinessGate по нему
type Readiness interface {
	Check() (domain.Snapshot, bool)
}

type Sender interface {
	Send(ctx context.Context, req domain.OutboundRequest) (domain.SendResult, error)
	SendToChannel(ctx context.Context, req domain.OutboundRequest) (domain.SendResult, error)
}

type ChatLister interface {
	Chats(ctx context.Context) ([]domain.Chat, error)
	Groups(ctx context.Context) ([]domain.Chat, error)
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	SendRate        float64 // запросов в секунду на /send*, 0 — без ограничения
	SendBurst       int
	APIKey          string // если задан, /send* требуют X-API-Key или Bearer
	CORSOrigins     []string
}

// Info — статичные сведения для /status
type Info struct {
	Backend           string
	Sinks             []string
	WebhookConfigured bool // только HTTP-вебхук, остальные приёмники видны в Sinks
}

type Server struct {
	log    *slog.Logger
	cfg    Config
	ready  Readiness
	sender Sender
	chats  ChatLister
	info   Info
	clock  clock.Clock

	engine *gin.Engine
	srv    *http.Server
}

func NewServer(log *slog.Logger, cfg Config, ready Readiness, sender Sender, chats ChatLister, info Info, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		log:    log.With("component", "http"),
		cfg:    cfg,
		ready:  ready,
		sender: sender,
		chats:  chats,
		info:   info,
		clock:  clk,
	}
	s.engine = s.routes()
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", apiKeyHeader},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/", s.handleRoot)
	r.GET("/status", s.handleStatus)
	r.GET("/qr", s.handleQRPage)
	r.GET("/qr/raw", s.handleQRRaw)
	r.GET("/chats", s.handleChats)
	r.GET("/groups", s.handleGroups)
	r.POST("/webhook/test", s.handleWebhookTest)

	send := r.Group("/")
	send.Use(apiKeyAuth(s.cfg.APIKey))
	if s.cfg.SendRate > 0 {
		burst := s.cfg.SendBurst
		if burst <= 0 {
			burst = 1
		}
		send.Use(rateLimit(rate.NewLimiter(rate.Limit(s.cfg.SendRate), burst)))
	}
	send.POST("/send", s.handleSend)
	send.POST("/send-to-channel", s.handleSendToChannel)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return r
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run слушает до отмены ctx, затем останавливается в пределах ShutdownTimeout
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) now() string {
	return s.clock.Now().UTC().Format(isoMillis)
}
