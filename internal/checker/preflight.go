package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// PreflightSOCKS5 performs the SOCKS5 greeting (and username/password
// sub-negotiation when credentials are set) against the jump host at addr,
// then disconnects. It catches a misconfigured jump host at startup instead
// of on the first probe.
func PreflightSOCKS5(ctx context.Context, addr, username, password string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("socks5 preflight: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	// 1. greeting
	//   0x00 = no auth
	//   0x02 = username/password
	methods := []byte{0x00}
	useAuth := username != "" || password != ""
	if useAuth {
		methods = []byte{0x02}
	}
	req := append([]byte{0x05, byte(len(methods))}, methods...)
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("socks5 preflight: greeting: %w", err)
	}

	// server chooses method
	buf := make([]byte, 2)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return fmt.Errorf("socks5 preflight: read method: %w", err)
	}
	if buf[0] != 0x05 {
		return fmt.Errorf("socks5 preflight: unexpected version 0x%02x", buf[0])
	}

	// 2. auth if required
	switch buf[1] {
	case 0x00:
		return nil
	case 0x02:
		if !useAuth {
			return errors.New("socks5 preflight: server requires credentials")
		}
		if err := socks5UserPassAuth(conn, username, password); err != nil {
			return fmt.Errorf("socks5 preflight: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("socks5 preflight: no acceptable auth method (0x%02x)", buf[1])
	}
}

func socks5UserPassAuth(conn net.Conn, username, password string) error {
	// Username/Password auth subnegotiation per RFC1929.
	// VER=0x01, ULEN, U, PLEN, P
	ulen := len(username)
	plen := len(password)
	if ulen > 255 || plen > 255 {
		return errors.New("username/password too long for socks5 auth")
	}
	req := []byte{0x01, byte(ulen)}
	req = append(req, username...)
	req = append(req, byte(plen))
	req = append(req, password...)

	if _, err := conn.Write(req); err != nil {
		return err
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return err
	}
	if resp[0] != 0x01 {
		return errors.New("invalid auth response version")
	}
	if resp[1] != 0x00 {
		return errors.New("socks5 auth failed")
	}
	return nil
}
