package socksconn

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/onioncat-go/gocatsocks/pkg/config"
)

// SyncProbe is the blocking one-shot startup check of spec.md §4.7. It
// builds no Request and never touches the shared Queue: it performs the
// same SOCKS4a/SOCKS5/DIRECT handshake steps as the reactor's state
// machine by calling the codec helpers directly over blocking I/O. name is
// the overlay hostname sent to the proxy; probeAddr (e.g. the daemon's own
// loopback overlay address) is not used by the probe itself.
//
// On success it returns the established connection so the caller can hand
// it off exactly as the reactor's activate would. If cfg.RandAddr is set,
// the function returns failure immediately after the first successful
// connect, without retrying: a random local overlay address makes a full
// loopback handshake meaningless, per spec.md §4.7.
func SyncProbe(cfg *config.Config, probeAddr netip.Addr, name string, maxAttempts int) (net.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		conn, err := syncProbeOnce(cfg, probeAddr, name)
		if err == nil {
			return conn, nil
		}
		if err == errRandAddrSkip {
			return nil, err
		}
		lastErr = err
		time.Sleep(cfg.ConnTimeout)
	}
	return nil, fmt.Errorf("socksconn: sync probe exhausted %d attempts: %w", maxAttempts, lastErr)
}

var errRandAddrSkip = fmt.Errorf("loopback probing skipped: rand_addr is set")

func syncProbeOnce(cfg *config.Config, probeAddr netip.Addr, name string) (net.Conn, error) {
	dst := cfg.ProxyAddr
	if cfg.Mode == config.ModeDirect {
		var err error
		dst, err = hostnameAddr(name, cfg.DestPort)
		if err != nil {
			return nil, fmt.Errorf("resolve destination: %w", err)
		}
	}

	conn, err := net.DialTimeout("tcp", dst.String(), cfg.ConnTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if cfg.RandAddr {
		conn.Close()
		return nil, errRandAddrSkip
	}

	switch cfg.Mode {
	case config.ModeSocks4a:
		if err := syncHandshakeSOCKS4a(conn, cfg.Username, name, cfg.DestPort); err != nil {
			conn.Close()
			return nil, err
		}
	case config.ModeSocks5:
		if err := syncHandshakeSOCKS5(conn, name, cfg.DestPort); err != nil {
			conn.Close()
			return nil, err
		}
	case config.ModeDirect:
		// DIRECT mode has no handshake: the TCP connect itself is the probe.
	default:
		conn.Close()
		return nil, fmt.Errorf("unsupported mode for sync probe: %v", cfg.Mode)
	}

	return conn, nil
}

func syncHandshakeSOCKS4a(conn net.Conn, user, name string, port uint16) error {
	if err := writeFull(conn, encodeSOCKS4a(user, name, port)); err != nil {
		return fmt.Errorf("socks4a request: %w", err)
	}
	reply := make([]byte, 8)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return fmt.Errorf("socks4a reply: %w", err)
	}
	if !parseSOCKS4aReply(reply) {
		return fmt.Errorf("socks4a request rejected")
	}
	return nil
}

func syncHandshakeSOCKS5(conn net.Conn, name string, port uint16) error {
	if err := writeFull(conn, encodeSOCKS5Greeting()); err != nil {
		return fmt.Errorf("socks5 greeting: %w", err)
	}
	greetReply := make([]byte, 2)
	if _, err := io.ReadFull(conn, greetReply); err != nil {
		return fmt.Errorf("socks5 greeting reply: %w", err)
	}
	if !parseSOCKS5GreetingReply(greetReply) {
		return fmt.Errorf("socks5 greeting rejected")
	}

	req, err := encodeSOCKS5Request(name, port)
	if err != nil {
		return fmt.Errorf("socks5 request encode: %w", err)
	}
	if err := writeFull(conn, req); err != nil {
		return fmt.Errorf("socks5 request: %w", err)
	}

	reply := make([]byte, socks5MaxReplyLen)
	n, err := conn.Read(reply)
	if err != nil {
		return fmt.Errorf("socks5 reply: %w", err)
	}
	if n < 4 || !parseSOCKS5Reply(reply[:n]) {
		return fmt.Errorf("socks5 request rejected")
	}
	return nil
}
