package tg

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/larriantoniy/im_relay/internal/ports"
)

const (
	probeTimeout = 3 * time.Second
	proxyTimeout = 5 * time.Second
)

func dial(ctx context.Context, network, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// checkConnectivity только логирует: TDLib сам переподключается, старт не блокируем
func checkConnectivity(ctx context.Context, logger *slog.Logger, proxy *ports.ProxyConfig) {
	if err := dial(ctx, "tcp4", "8.8.8.8:53", probeTimeout); err != nil {
		logger.Warn("IPv4 seems not working", "error", err)
	} else {
		logger.Debug("IPv4 OK")
	}
	if err := dial(ctx, "tcp6", "[2606:4700:4700::1111]:53", probeTimeout); err != nil {
		logger.Warn("IPv6 seems not working", "error", err)
	} else {
		logger.Debug("IPv6 OK")
	}
	checkProxy(ctx, logger, proxy)
}

func checkProxy(ctx context.Context, logger *slog.Logger, proxy *ports.ProxyConfig) {
	if proxy == nil || !proxy.Enabled {
		logger.Info("proxy disabled, skipping check")
		return
	}

	addr6 := fmt.Sprintf("[%s]:%d", proxy.Server, proxy.Port)
	addr4 := fmt.Sprintf("%s:%d", proxy.Server, proxy.Port)

	ip := net.ParseIP(proxy.Server)
	switch {
	case ip != nil && ip.To4() == nil:
		if err := dial(ctx, "tcp6", addr6, proxyTimeout); err != nil {
			logger.Error("IPv6 proxy unreachable", "addr", addr6, "error", err)
			return
		}
		logger.Info("proxy reachable on IPv6", "addr", addr6)
	case ip != nil:
		if err := dial(ctx, "tcp4", addr4, proxyTimeout); err != nil {
			logger.Error("IPv4 proxy unreachable", "addr", addr4, "error", err)
			return
		}
		logger.Info("proxy reachable on IPv4", "addr", addr4)
	default:
		// hostname: сначала IPv6, потом IPv4
		err6 := dial(ctx, "tcp6", addr6, proxyTimeout)
		if err6 == nil {
			logger.Info("proxy reachable on IPv6 via hostname", "addr", addr6)
			return
		}
		if err4 := dial(ctx, "tcp4", addr4, proxyTimeout); err4 != nil {
			logger.Error("proxy unreachable via hostname on both IPv6 and IPv4",
				"addr_v6", addr6, "addr_v4", addr4, "error_v6", err6, "error_v4", err4)
			return
		}
		logger.Info("proxy reachable on IPv4 via hostname", "addr", addr4)
	}
}
