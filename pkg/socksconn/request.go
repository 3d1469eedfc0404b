package socksconn

import (
	"net/netip"
	"time"
)

// State is a Request's position in the connector's state machine.
type State int

const (
	// StateNew is the entry state: queued, not yet connecting.
	StateNew State = iota
	// StateConnecting is waiting for a non-blocking TCP connect to complete.
	StateConnecting
	// StateS4AReqSent has written a SOCKS4a CONNECT and awaits the reply.
	StateS4AReqSent
	// StateS5GreetSent has written the SOCKS5 greeting and awaits the method reply.
	StateS5GreetSent
	// StateS5ReqSent has written the SOCKS5 CONNECT and awaits the reply.
	StateS5ReqSent
	// StateDNSSent has a PTR query in flight on a UDP socket.
	StateDNSSent
	// StateReady means the TCP connection is established and handed off.
	StateReady
	// StateDelete marks the entry for removal at the next reap phase.
	StateDelete
)

// String renders the state the way the introspection dump expects: a bare
// integer is what spec.md's wire format uses, but a name helps in logs.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateConnecting:
		return "CONNECTING"
	case StateS4AReqSent:
		return "S4A_REQ_SENT"
	case StateS5GreetSent:
		return "S5_GREET_SENT"
	case StateS5ReqSent:
		return "S5_REQ_SENT"
	case StateDNSSent:
		return "DNS_SENT"
	case StateReady:
		return "READY"
	case StateDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// needsFD reports whether a Request in this state must hold an open fd.
// Invariant I2 of spec.md §8: state in {CONNECTING, S4A_REQ_SENT,
// S5_GREET_SENT, S5_REQ_SENT, DNS_SENT} implies fd > 0.
func (s State) needsFD() bool {
	switch s {
	case StateConnecting, StateS4AReqSent, StateS5GreetSent, StateS5ReqSent, StateDNSSent:
		return true
	default:
		return false
	}
}

// Request is one outstanding connection attempt, keyed by peer overlay
// address. It is mutated exclusively by the reactor goroutine; the
// synchronous probe in syncprobe.go builds no Request and never touches
// the shared queue.
type Request struct {
	Addr netip.Addr
	Perm bool

	State State
	FD    int

	Retry       int
	ConnectTime time.Time
	RestartTime time.Time

	// Name is the peer's overlay hostname, once known (from hosts lookup,
	// a completed DNS probe, or algorithmic derivation).
	Name string

	// SkipNameLookup replaces the original's overloaded retry=1 sentinel
	// (spec.md §9 DESIGN NOTE 4): set when a DNS probe exhausted its
	// retries and fell back to the algorithmic name, cleared the next time
	// a name becomes available through another path. It still counts
	// toward MaxRetry on every NEW pass per the Open Question resolution.
	SkipNameLookup bool

	// DNS sub-state, valid only while State == StateDNSSent.
	NSAddr  netip.Addr
	NSSrc   int
	DNSID   uint16
	DNSSent int // queries sent so far: the first one plus at most Config.DNSRetry resends
}
