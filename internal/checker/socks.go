package checker

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// socks5Dialer builds a context-aware dialer that tunnels through the SOCKS5
// server at addr.
func socks5Dialer(addr, user, pass string, timeout time.Duration) (proxy.ContextDialer, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("invalid socks5 address %q: %w", addr, err)
	}

	var auth *proxy.Auth
	if user != "" || pass != "" {
		auth = &proxy.Auth{User: user, Password: pass}
	}

	d, err := proxy.SOCKS5("tcp", addr, auth, &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer: %w", err)
	}

	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("socks5 dialer does not implement DialContext")
	}
	return cd, nil
}
