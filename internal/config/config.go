package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"

	BackendWhatsApp = "whatsapp"
	BackendTelegram = "telegram"
)

type AppConfig struct {
	Env     string `yaml:"env" env:"ENV" env-default:"prod"`
	Backend string `yaml:"backend" env:"BACKEND" env-default:"whatsapp"`

	HTTP     HTTPConfig     `yaml:"http"`
	Session  SessionConfig  `yaml:"session"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Redis    RedisConfig    `yaml:"redis"`
}

type HTTPConfig struct {
	Host        string   `yaml:"host" env:"HOST"`
	Port        string   `yaml:"port" env:"PORT" env-default:"3000"`
	SendRate    float64  `yaml:"send_rate" env:"SEND_RATE" env-default:"5"` // < 0 — без ограничения
	SendBurst   int      `yaml:"send_burst" env:"SEND_BURST" env-default:"10"`
	APIKey      string   `yaml:"api_key" env:"API_KEY"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:","`
}

type SessionConfig struct {
	InitTimeout     time.Duration `yaml:"init_timeout" env:"INIT_TIMEOUT" env-default:"60s"`
	SendTimeout     time.Duration `yaml:"send_timeout" env:"SEND_TIMEOUT" env-default:"30s"`
	ForwardTimeout  time.Duration `yaml:"forward_timeout" env:"FORWARD_TIMEOUT" env-default:"5s"`
	ListTimeout     time.Duration `yaml:"list_timeout" env:"LIST_TIMEOUT" env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	MinReadyAge     time.Duration `yaml:"min_ready_age" env:"MIN_READY_AGE"`
	// cleanenv подставляет default поверх нулевых значений, поэтому флаг «выключающий»
	DisableTerminalQR bool `yaml:"disable_terminal_qr" env:"DISABLE_TERMINAL_QR"`
}

type WhatsAppConfig struct {
	StorePath string `yaml:"store_path" env:"WA_STORE_PATH" env-default:"whatsapp-session.db"`
}

type TelegramConfig struct {
	ApiID        int32  `yaml:"api_id" env:"TELEGRAM_API_ID"`
	ApiHash      string `yaml:"api_hash" env:"TELEGRAM_API_HASH"`
	BaseDir      string `yaml:"base_dir" env:"TELEGRAM_BASE_DIR" env-default:"./sessions"`
	SessionName  string `yaml:"session_name" env:"TELEGRAM_SESSION"`
	LogVerbosity int32  `yaml:"log_verbosity" env:"TELEGRAM_LOG_VERBOSITY" env-default:"1"`
}

type WebhookConfig struct {
	URL     string            `yaml:"url" env:"N8N_WEBHOOK_URL"`
	Secret  string            `yaml:"secret" env:"WEBHOOK_SECRET"`
	Headers map[string]string `yaml:"headers" env:"WEBHOOK_HEADERS"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Stream   string `yaml:"stream" env:"REDIS_STREAM" env-default:"im_relay:inbound"`
	MaxLen   int64  `yaml:"max_len" env:"REDIS_STREAM_MAXLEN" env-default:"10000"`
}

// Load читает .env, затем YAML (если задан путь) с переопределением из окружения
func Load(args []string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path, err := fetchConfigPath(args)
	if err != nil {
		return nil, err
	}

	var cfg AppConfig
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("ошибка загрузки конфига %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка чтения окружения: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	var errs []error
	if !slices.Contains([]string{EnvDev, EnvProd}, c.Env) {
		errs = append(errs, fmt.Errorf("env must be %q or %q, got %q", EnvDev, EnvProd, c.Env))
	}
	switch c.Backend {
	case BackendWhatsApp:
		if c.WhatsApp.StorePath == "" {
			errs = append(errs, errors.New("whatsapp.store_path must be set"))
		}
	case BackendTelegram:
		if c.Telegram.ApiID == 0 || c.Telegram.ApiHash == "" || c.Telegram.BaseDir == "" || c.Telegram.SessionName == "" {
			errs = append(errs, errors.New("TELEGRAM_API_ID, TELEGRAM_API_HASH, base_dir, session_name должны быть заданы"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.HTTP.Port == "" {
		errs = append(errs, errors.New("http port must be set"))
	}
	if c.Session.InitTimeout <= 0 || c.Session.SendTimeout <= 0 ||
		c.Session.ForwardTimeout <= 0 || c.Session.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("session timeouts must be positive"))
	}
	if c.Session.MinReadyAge < 0 {
		errs = append(errs, errors.New("min_ready_age must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *AppConfig) HTTPAddr() string {
	return net.JoinHostPort(c.HTTP.Host, c.HTTP.Port)
}

// fetchConfigPath: флаг --config, иначе CONFIG_PATH, иначе пусто (только окружение)
func fetchConfigPath(args []string) (string, error) {
	var res string

	fs := pflag.NewFlagSet("im_relay", pflag.ContinueOnError)
	fs.StringVarP(&res, "config", "c", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("parse flags: %w", err)
	}

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res, nil
}
