// Package socksconn implements the outbound SOCKS connector: a
// single-goroutine reactor that drives a queue of in-flight peer
// connection attempts through SOCKS4a, SOCKS5, or DIRECT handshakes and
// hands established sockets off to a peer registry.
package socksconn

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/onioncat-go/gocatsocks/pkg/config"
	"github.com/onioncat-go/gocatsocks/pkg/hostsdir"
	"github.com/onioncat-go/gocatsocks/pkg/logger"
	"github.com/onioncat-go/gocatsocks/pkg/overlayname"
	"github.com/onioncat-go/gocatsocks/pkg/peerregistry"

	"golang.org/x/sys/unix"
)

// Connector owns the Request Queue, the Request Pipe, and the reactor
// goroutine that drives them (spec.md §2). It must be constructed with
// New and driven by calling Run in its own goroutine.
type Connector struct {
	cfg *config.Config
	log *logger.Logger

	resolver NameResolver
	deriver  overlayname.Deriver
	hosts    hostsdir.Provider
	registry peerregistry.Registry

	q *queue

	msgCh chan pipeMsg

	pipeR, pipeW int

	pendingMu sync.Mutex
	pending   []pipeMsg
}

// New constructs a Connector. resolver may be nil, in which case overlay
// name resolution always fails immediately (suitable for DIRECT mode or
// when neither hosts_lookup nor dns_lookup is enabled).
func New(cfg *config.Config, log *logger.Logger, resolver NameResolver, deriver overlayname.Deriver, hosts hostsdir.Provider, registry peerregistry.Registry) (*Connector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("socksconn: config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("socksconn: invalid config: %w", err)
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if resolver == nil {
		resolver = noopResolver{}
	}

	r, w, err := selfPipe()
	if err != nil {
		return nil, fmt.Errorf("socksconn: self-pipe: %w", err)
	}

	c := &Connector{
		cfg:      cfg.Clone(),
		log:      log.Component("socksconn"),
		resolver: resolver,
		deriver:  deriver,
		hosts:    hosts,
		registry: registry,
		q:        newQueue(),
		msgCh:    make(chan pipeMsg, 64),
		pipeR:    r,
		pipeW:    w,
	}
	go c.forwardMessages()
	return c, nil
}

// selfPipe creates a non-blocking pipe used only to wake the reactor's
// unix.Poll wait when a message arrives on msgCh — the literal self-pipe
// pattern spec.md's pipe protocol is built on, kept underneath a Go
// channel so external callers get an idiomatic API (Submitter) instead of
// a raw fd to write records into.
func selfPipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func (c *Connector) forwardMessages() {
	for msg := range c.msgCh {
		c.pendingMu.Lock()
		c.pending = append(c.pending, msg)
		c.pendingMu.Unlock()
		unix.Write(c.pipeW, []byte{1})
	}
}

// drainPending pops every message queued since the last call, draining
// the wakeup byte(s) from the self-pipe first.
func (c *Connector) drainPending() []pipeMsg {
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(c.pipeR, buf)
		if n <= 0 || err != nil {
			break
		}
	}
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	msgs := c.pending
	c.pending = nil
	return msgs
}

// Submitter returns the handle other goroutines use to enqueue requests,
// wake the reactor, or request an introspection dump.
func (c *Connector) Submitter() *Submitter {
	return &Submitter{ch: c.msgCh}
}

// Close releases the self-pipe file descriptors. Call after Run has
// returned.
func (c *Connector) Close() error {
	unix.Close(c.pipeR)
	unix.Close(c.pipeW)
	return nil
}

// queueLen reports the current number of in-flight requests, for tests.
func (c *Connector) queueLen() int {
	return c.q.len()
}

// lookupName resolves a request's overlay hostname through the
// hosts/nameserver provider when available, without touching the resolver
// (used as the first check on a NEW pass while the request's name is still
// unknown, before falling back to DNS or algorithmic derivation).
func (c *Connector) lookupName(addr netip.Addr) (string, bool) {
	if c.cfg.HostsLookup && c.hosts != nil && c.hosts.Check() {
		if name, ok := c.hosts.GetName(addr); ok {
			return name, true
		}
	}
	return "", false
}

// deriveName falls back to the algorithmic overlay name when no hosts
// entry or DNS result is available.
func (c *Connector) deriveName(addr netip.Addr) string {
	if c.deriver == nil {
		return addr.String()
	}
	return c.deriver.Derive(addr)
}
