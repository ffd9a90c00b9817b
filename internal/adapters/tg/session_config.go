package tg

import (
	"fmt"

	"github.com/zelenin/go-tdlib/client"

	"github.com/larriantoniy/im_relay/internal/ports"
)

// RawSessionConfig — config.json рядом с базой сессии
type RawSessionConfig struct {
	SessionFile string `json:"session_file"`
	Phone       string `json:"phone"`
	Password    string `json:"password"` // 2FA, если включена

	SDK        string `json:"sdk"`         // SystemVersion
	AppVersion string `json:"app_version"` // ApplicationVersion
	Device     string `json:"device"`      // DeviceModel
	LangCode   string `json:"lang_code"`   // SystemLanguageCode

	Proxy []any `json:"proxy"` // [type, host, port, useAuth, user, pass]
}

func (c *RawSessionConfig) ToProxyConfig() (*ports.ProxyConfig, error) {
	if len(c.Proxy) == 0 {
		return nil, nil
	}
	if len(c.Proxy) < 6 {
		return nil, fmt.Errorf("invalid proxy length: %d", len(c.Proxy))
	}

	host, _ := c.Proxy[1].(string)

	// из json.Unmarshal порт приходит как float64
	var port int32
	switch v := c.Proxy[2].(type) {
	case float64:
		port = int32(v)
	case int:
		port = int32(v)
	default:
		return nil, fmt.Errorf("invalid proxy port type %T", c.Proxy[2])
	}

	if host == "" || port == 0 {
		return nil, nil
	}

	p := &ports.ProxyConfig{
		Enabled: true,
		Server:  host,
		Port:    port,
	}
	if useAuth, _ := c.Proxy[3].(bool); useAuth {
		p.Username, _ = c.Proxy[4].(string)
		p.Password, _ = c.Proxy[5].(string)
	}
	return p, nil
}

// ToSessionConfig подставляет значения по умолчанию для параметров устройства
func (c *RawSessionConfig) ToSessionConfig() (ports.SessionConfig, error) {
	proxy, err := c.ToProxyConfig()
	if err != nil {
		return ports.SessionConfig{}, fmt.Errorf("parse proxy: %w", err)
	}

	sc := ports.SessionConfig{
		SessionName:        c.SessionFile,
		Phone:              c.Phone,
		DeviceModel:        c.Device,
		SystemVersion:      c.SDK,
		ApplicationVersion: c.AppVersion,
		LangCode:           c.LangCode,
		Proxy:              proxy,
	}
	if sc.LangCode == "" {
		sc.LangCode = "en"
	}
	if sc.SystemVersion == "" {
		sc.SystemVersion = "Windows 10"
	}
	if sc.ApplicationVersion == "" {
		sc.ApplicationVersion = "2.0"
	}
	if sc.DeviceModel == "" {
		sc.DeviceModel = "Desktop"
	}
	return sc, nil
}

func tdParams(sc ports.SessionConfig, apiID int32, apiHash, dbDir, filesDir string) *client.SetTdlibParametersRequest {
	return &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   dbDir,
		FilesDirectory:      filesDir,
		UseFileDatabase:     true,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  true,
		UseSecretChats:      false,
		ApiId:               apiID,
		ApiHash:             apiHash,
		SystemLanguageCode:  sc.LangCode,
		DeviceModel:         sc.DeviceModel,
		SystemVersion:       sc.SystemVersion,
		ApplicationVersion:  sc.ApplicationVersion,
	}
}

func proxyOption(p *ports.ProxyConfig) client.Option {
	return client.WithProxy(&client.AddProxyRequest{
		Server: p.Server,
		Port:   p.Port,
		Enable: true,
		Type: &client.ProxyTypeSocks5{
			Username: p.Username,
			Password: p.Password,
		},
	})
}
