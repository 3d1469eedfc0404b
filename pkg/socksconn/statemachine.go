package socksconn

import (
	"net"
	"net/netip"
	"time"

	"github.com/onioncat-go/gocatsocks/pkg/config"
	"github.com/onioncat-go/gocatsocks/pkg/errors"
)

// processNew implements the NEW-entry rules of spec.md §4.4.
func (c *Connector) processNew(r *Request, now time.Time) {
	if now.Before(r.RestartTime) {
		return
	}
	r.Retry++
	if !r.Perm && r.Retry > c.cfg.MaxRetry {
		r.State = StateDelete
		return
	}

	if r.Name == "" && !r.SkipNameLookup {
		if name, ok := c.lookupName(r.Addr); ok {
			r.Name = name
		} else if c.cfg.DNSLookup && r.Retry <= 1 {
			if err := c.resolver.Initiate(r, now); err != nil {
				c.log.Peer(r.Addr).Warn("dns probe initiate failed", "error", errors.DNSError("dns probe initiate", err))
				r.State = StateNew
				r.RestartTime = now.Add(c.cfg.ConnTimeout)
				return
			}
			r.State = StateDNSSent
			r.Retry = 0
			r.RestartTime = now.Add(c.cfg.DNSRetryTimeout)
			return
		}
	}

	if r.Name == "" {
		r.Name = c.deriveName(r.Addr)
	}
	r.SkipNameLookup = false

	dst, err := c.destination(r)
	if err != nil {
		c.log.Peer(r.Addr).Warn("destination resolution failed", "error", errors.ConnectionError("destination resolution", err))
		c.reschedule(r, now)
		return
	}

	fd, inProgress, err := dialNonBlocking(dst)
	if err != nil {
		c.log.Peer(r.Addr).Warn("connect initiation failed", "error", errors.ConnectionError("connect initiation", err))
		c.reschedule(r, now)
		return
	}
	r.FD = fd
	r.ConnectTime = now
	r.State = StateConnecting
	_ = inProgress
}

// destination computes the TCP endpoint per spec.md §4.4: the configured
// proxy in SOCKS modes, or the peer's own resolved address in DIRECT mode.
func (c *Connector) destination(r *Request) (netip.AddrPort, error) {
	if c.cfg.Mode == config.ModeDirect {
		return hostnameAddr(r.Name, c.cfg.DestPort)
	}
	return c.cfg.ProxyAddr, nil
}

// hostnameAddr resolves name to an IPv6 endpoint for DIRECT mode, the
// equivalent of ocatsocks.c's hostname_addr.
func hostnameAddr(name string, port uint16) (netip.AddrPort, error) {
	ips, err := net.LookupIP(name)
	if err != nil {
		return netip.AddrPort{}, err
	}
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip.To16()); ok {
			return netip.AddrPortFrom(addr, port), nil
		}
	}
	return netip.AddrPort{}, net.InvalidAddrError("no address found for " + name)
}

// processConnectingWritable implements "CONNECTING (writable)" of spec.md §4.4.
func (c *Connector) processConnectingWritable(r *Request, now time.Time) {
	if err := soError(r.FD); err != nil {
		c.log.Peer(r.Addr).Warn("connect failed", "error", errors.ConnectionError("connect", err))
		c.reschedule(r, now)
		return
	}

	switch c.cfg.Mode {
	case config.ModeSocks4a:
		if err := writeFull(fdWriter{r.FD}, encodeSOCKS4a(c.cfg.Username, r.Name, c.cfg.DestPort)); err != nil {
			c.log.Peer(r.Addr).Warn("socks4a request write failed", "error", errors.ProtocolError("socks4a request write", err))
			c.reschedule(r, now)
			return
		}
		r.State = StateS4AReqSent

	case config.ModeSocks5:
		if err := writeFull(fdWriter{r.FD}, encodeSOCKS5Greeting()); err != nil {
			c.log.Peer(r.Addr).Warn("socks5 greeting write failed", "error", errors.ProtocolError("socks5 greeting write", err))
			c.reschedule(r, now)
			return
		}
		r.State = StateS5GreetSent

	case config.ModeDirect:
		c.activate(r, now)

	default:
		panic("socksconn: unreachable: unknown connection mode reached the reactor")
	}
}

// processS4AReadable implements "S4A_REQ_SENT (readable)".
func (c *Connector) processS4AReadable(r *Request, now time.Time) {
	reply := make([]byte, 8)
	if err := readFull(r.FD, reply); err != nil {
		c.log.Peer(r.Addr).Warn("socks4a reply read failed", "error", errors.ProtocolError("socks4a reply read", err))
		c.reschedule(r, now)
		return
	}
	if !parseSOCKS4aReply(reply) {
		c.reschedule(r, now)
		return
	}
	c.activate(r, now)
}

// processS5GreetReadable implements "S5_GREET_SENT (readable)".
func (c *Connector) processS5GreetReadable(r *Request, now time.Time) {
	reply := make([]byte, 2)
	if err := readFull(r.FD, reply); err != nil {
		c.log.Peer(r.Addr).Warn("socks5 greeting reply read failed", "error", errors.ProtocolError("socks5 greeting reply read", err))
		c.reschedule(r, now)
		return
	}
	if !parseSOCKS5GreetingReply(reply) {
		c.reschedule(r, now)
		return
	}
	req, err := encodeSOCKS5Request(r.Name, c.cfg.DestPort)
	if err != nil {
		c.log.Peer(r.Addr).Warn("socks5 request encode failed", "error", errors.ProtocolError("socks5 request encode", err))
		c.reschedule(r, now)
		return
	}
	if err := writeFull(fdWriter{r.FD}, req); err != nil {
		c.log.Peer(r.Addr).Warn("socks5 request write failed", "error", errors.ProtocolError("socks5 request write", err))
		c.reschedule(r, now)
		return
	}
	r.State = StateS5ReqSent
}

// processS5ReqReadable implements "S5_REQ_SENT (readable)".
func (c *Connector) processS5ReqReadable(r *Request, now time.Time) {
	reply := make([]byte, socks5MaxReplyLen)
	n, err := readSome(r.FD, reply)
	if err != nil || n < 4 {
		c.log.Peer(r.Addr).Warn("socks5 reply read failed", "error", errors.ProtocolError("socks5 reply read", err))
		c.reschedule(r, now)
		return
	}
	if !parseSOCKS5Reply(reply[:n]) {
		c.reschedule(r, now)
		return
	}
	c.activate(r, now)
}

// reschedule closes fd and returns the request to NEW with a flat backoff,
// per spec.md §4.4 "Reschedule". The retry counter is not reset here.
func (c *Connector) reschedule(r *Request, now time.Time) {
	closeFD(r.FD)
	r.FD = 0
	r.State = StateNew
	r.RestartTime = now.Add(c.cfg.ConnTimeout)
}

// reset closes fd and returns the request to NEW without backoff, used on
// protocol-level invariant violations per spec.md §4.4 "Reset".
func (c *Connector) reset(r *Request) {
	closeFD(r.FD)
	r.FD = 0
	r.RestartTime = time.Time{}
	r.State = StateNew
}

// activate hands the established fd to the peer registry and sends the
// initial keepalive, per spec.md §4.4 "Activation". The entry is marked
// DELETE immediately after, matching invariant I3: READY is transient on
// the reactor path.
func (c *Connector) activate(r *Request, now time.Time) {
	elapsed := now.Sub(r.ConnectTime)
	if elapsed < 0 {
		elapsed = 0
	}
	if err := c.registry.Insert(r.Addr, r.FD, elapsed); err != nil {
		c.log.Peer(r.Addr).Error("insert_peer failed", "error", errors.InternalError("insert_peer", err))
		c.reset(r)
		return
	}
	if err := c.registry.Keepalive(r.Addr); err != nil {
		// Invariant I5: a just-inserted peer must be found. Any miss is an
		// internal error in the registry, not the connector's fd handling.
		c.log.Peer(r.Addr).Error("newly inserted peer not found for keepalive", "error", errors.InternalError("keepalive lookup", err))
	}
	r.State = StateDelete
}
