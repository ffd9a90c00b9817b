package ports

type ProxyConfig struct {
	Enabled  bool
	Server   string
	Port     int32
	Username string
	Password string
}

// SessionConfig — параметры устройства для TDLib-сессии
type SessionConfig struct {
	SessionName        string
	Phone              string
	DeviceModel        string
	SystemVersion      string
	ApplicationVersion string
	LangCode           string
	Proxy              *ProxyConfig
}
