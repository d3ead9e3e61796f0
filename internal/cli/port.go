package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"expenses/internal/log"
)

// ListenAvailable binds host:port, or when that port is taken, the next free
// port among the following attempts-1 ports. With attempts <= 1 only the
// configured port is tried. The returned listener holds the port, so there is
// no window between discovery and use.
func ListenAvailable(ctx context.Context, logger *log.Logger, host string, port, attempts int) (net.Listener, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	if attempts < 1 {
		attempts = 1
	}

	var lc net.ListenConfig
	var lastErr error
	for p := port; p < port+attempts && p <= 65535; p++ {
		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err == nil {
			if p != port {
				logger.Warn("Configured port unavailable, using next free port",
					"configured_port", port, "port", p)
			}
			return ln, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		logger.Debug("Port unavailable", "port", p, log.FieldError, err)
	}

	// Fall back to the configured port in case it was released during the scan.
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("no free port in %d-%d: %w", port, port+attempts-1, errors.Join(lastErr, err))
	}
	return ln, nil
}

// ListenerPort returns the TCP port a listener is bound to.
func ListenerPort(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
