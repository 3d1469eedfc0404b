package socksconn

import (
	"io"
	"net/netip"
)

// pipeMsg is the tagged variant replacing the original Request Pipe's
// overloaded payload (spec.md §9 DESIGN NOTE "smuggling fds through
// pointer fields"): a fixed-size record whose meaning depended on whether
// addr was unspecified and whether a "next" pointer field was set. Here
// the three meanings get three distinct constructors instead of one
// ambiguous struct.
type pipeMsg struct {
	kind pipeMsgKind
	addr netip.Addr
	perm bool
	dump io.Writer
	done chan struct{}
}

type pipeMsgKind int

const (
	msgEnqueue pipeMsgKind = iota
	msgWakeup
	msgDump
)

// Submitter is the handle external callers use to talk to a running
// Connector: enqueue a connection request, force the reactor out of its
// wait, or request an introspection dump. It wraps the same channel the
// reactor reads from the way socks_queue/sig_socks_connector/
// print_socks_queue wrote to the original's byte pipe.
type Submitter struct {
	ch chan pipeMsg
}

// Queue posts a new connection request for addr. Matches socks_queue: a
// duplicate addr already in the queue is silently deduplicated by the
// reactor, not by the submitter.
func (s *Submitter) Queue(addr netip.Addr, perm bool) {
	s.ch <- pipeMsg{kind: msgEnqueue, addr: addr, perm: perm}
}

// Wakeup forces the reactor out of its bounded wait without enqueueing or
// dumping anything. Matches sig_socks_connector.
func (s *Submitter) Wakeup() {
	s.ch <- pipeMsg{kind: msgWakeup}
}

// Dump requests a human-readable listing of the queue be written to w,
// one line per entry in iteration order, matching print_socks_queue. It
// blocks until the reactor has finished writing.
func (s *Submitter) Dump(w io.Writer) {
	done := make(chan struct{})
	s.ch <- pipeMsg{kind: msgDump, dump: w, done: done}
	<-done
}
