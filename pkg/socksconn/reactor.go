package socksconn

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/onioncat-go/gocatsocks/pkg/config"
	"github.com/onioncat-go/gocatsocks/pkg/errors"

	"golang.org/x/sys/unix"
)

// Run is the reactor's single-threaded cooperative loop (spec.md §4.3).
// It must be called from exactly one goroutine and runs until ctx is
// canceled. All Queue mutation happens inside this goroutine; external
// callers communicate only through the Submitter returned by
// Connector.Submitter.
func (c *Connector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := time.Now()

		// Phase A: state scan. NEW entries may synchronously initiate a
		// connect or a DNS probe; DNS_SENT entries are polled for
		// resend/timeout.
		c.q.iterate(func(r *Request) {
			switch r.State {
			case StateNew:
				c.processNew(r, now)
			case StateDNSSent:
				c.pollDNS(r, now)
			}
		})

		pollfds := c.buildPollFDs()
		timeoutMs := int(c.cfg.DNSRetryTimeout / time.Millisecond)
		if timeoutMs <= 0 {
			timeoutMs = 1000
		}
		n, err := unix.Poll(pollfds, timeoutMs)
		if err != nil && err != unix.EINTR {
			return fmt.Errorf("socksconn: poll: %w", err)
		}

		if n > 0 {
			if pollfds[0].Revents&unix.POLLIN != 0 {
				for _, msg := range c.drainPending() {
					c.handleMessage(msg)
				}
			}

			now = time.Now()

			// Phase B: fd dispatch. Writable events apply only to CONNECTING;
			// readable events drive handshake and DNS-response parsing.
			for _, pfd := range pollfds[1:] {
				if pfd.Revents == 0 {
					continue
				}
				r, ok := c.q.findByFD(int(pfd.Fd))
				if !ok {
					continue
				}
				if pfd.Revents&unix.POLLOUT != 0 && r.State == StateConnecting {
					c.processConnectingWritable(r, now)
				}
				if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
					c.dispatchReadable(r, now)
				}
			}
		}

		// Phase C: reap. Invariant I3: no DELETE entries survive past this point.
		c.q.reap()
	}
}

// dispatchReadable routes a readable event to the state-appropriate
// handler, per spec.md §4.4.
func (c *Connector) dispatchReadable(r *Request, now time.Time) {
	switch r.State {
	case StateS4AReqSent:
		c.processS4AReadable(r, now)
	case StateS5GreetSent:
		c.processS5GreetReadable(r, now)
	case StateS5ReqSent:
		c.processS5ReqReadable(r, now)
	case StateDNSSent:
		c.onDNSReadable(r, now)
	}
}

// pollDNS advances a DNS_SENT entry's resend/timeout bookkeeping via the
// configured NameResolver, per spec.md §4.6 step 3.
func (c *Connector) pollDNS(r *Request, now time.Time) {
	switch c.resolver.Poll(r, now) {
	case Pending:
	case Resolved:
		r.State = StateNew
		r.Retry = 0
		r.RestartTime = time.Time{}
	case Failed:
		closeFD(r.FD)
		r.FD = 0
		r.SkipNameLookup = true
		r.State = StateNew
		r.Retry = 1
		r.RestartTime = time.Time{}
	}
}

// onDNSReadable parses an incoming PTR response via the configured
// NameResolver, per spec.md §4.6 step 4.
func (c *Connector) onDNSReadable(r *Request, now time.Time) {
	result, err := c.resolver.OnReadable(r)
	if err != nil {
		c.log.Peer(r.Addr).Warn("dns probe response rejected", "error", errors.DNSError("dns probe response", err))
		closeFD(r.FD)
		r.FD = 0
		r.State = StateDelete
		return
	}
	if result == Resolved {
		closeFD(r.FD)
		r.FD = 0
		r.State = StateNew
		r.Retry = 0
		r.RestartTime = time.Time{}
	}
}

// buildPollFDs assembles the poll(2) descriptor set: slot 0 is always the
// self-pipe read end; the rest are every in-flight request's socket,
// registered for writability while CONNECTING and for readability
// otherwise.
func (c *Connector) buildPollFDs() []unix.PollFd {
	fds := []unix.PollFd{{Fd: int32(c.pipeR), Events: unix.POLLIN}}
	c.q.iterate(func(r *Request) {
		if r.FD <= 0 || !r.State.needsFD() {
			return
		}
		events := int16(unix.POLLIN)
		if r.State == StateConnecting {
			events = unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(r.FD), Events: events})
	})
	return fds
}

// handleMessage applies one drained pipe message: enqueue, wakeup, or dump.
func (c *Connector) handleMessage(msg pipeMsg) {
	switch msg.kind {
	case msgEnqueue:
		// spec.md §3: mode NONE disables the connector; requests are
		// silently dropped rather than queued.
		if c.cfg.Mode != config.ModeNone {
			c.q.enqueue(msg.addr, msg.perm)
		}
	case msgWakeup:
		// no-op: draining the self-pipe already woke the poll wait.
	case msgDump:
		c.writeDump(msg.dump)
		close(msg.done)
	}
}

// writeDump writes the introspection listing, one line per entry in
// iteration order, matching print_socks_queue/socks_output_queue.
func (c *Connector) writeDump(w io.Writer) {
	idx := 0
	c.q.iterate(func(r *Request) {
		line := c.FormatQueueLine(idx, r)
		io.WriteString(w, line)
		idx++
	})
	w.Write([]byte{0})
}

// FormatQueueLine renders one introspection-dump line for r, preserving
// the original format verbatim per spec.md §6 and §9: index, address,
// overlay name, numeric state, PERMANENT/TEMPORARY tag with its boolean,
// retry count, connect_time, restart_time.
func (c *Connector) FormatQueueLine(idx int, r *Request) string {
	perm := "TEMPORARY"
	permBit := 0
	if r.Perm {
		perm = "PERMANENT"
		permBit = 1
	}
	return fmt.Sprintf("%d: %s, %s, state = %d, %s(%d), retry = %d, connect_time = %d, restart_time = %d\n",
		idx, r.Addr, r.Name, int(r.State), perm, permBit, r.Retry,
		r.ConnectTime.Unix(), r.RestartTime.Unix())
}
