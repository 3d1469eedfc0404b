package socksconn

import (
	"net/netip"
	"time"
)

// PollResult is the outcome of polling an in-flight name resolution.
type PollResult int

const (
	// Pending means the resolution has not completed yet.
	Pending PollResult = iota
	// Resolved means req.Name has been populated with the peer's overlay name.
	Resolved
	// Failed means the resolution's retry budget is exhausted; the caller
	// falls back to the algorithmic overlay name rather than deleting the
	// request (spec.md §4.6 step 3).
	Failed
)

// NameResolver is the trait-style interface spec.md §9 DESIGN NOTE 3
// prescribes in place of the original's compile-time choice between a UDP
// PTR probe and an asynchronous resolver callback. Exactly one
// implementation is selected when a Connector is constructed.
type NameResolver interface {
	// Initiate starts resolving req.Addr's overlay name, transitioning req
	// into whatever sub-state the implementation needs (e.g. sending a UDP
	// query) — the caller moves req.State to StateDNSSent itself.
	Initiate(req *Request, now time.Time) error
	// Poll is called once per reactor iteration while req is in
	// StateDNSSent, to check for a resend/timeout. Pending means keep
	// waiting; Failed means the retry budget is exhausted and the caller
	// should fall back to the algorithmic name (spec.md §4.6 step 3).
	Poll(req *Request, now time.Time) PollResult
	// OnReadable is called when req's fd becomes readable. Resolved means
	// req.Name was populated from a validated response. A non-nil error
	// means the response must be treated as a terminal protocol failure
	// (spec.md §4.6 step 4: a source-mismatched datagram is dropped and
	// the request is deleted, not merely rescheduled).
	OnReadable(req *Request) (PollResult, error)
}

// noopResolver always fails immediately; used when overlay-name resolution
// is disabled entirely (DNSLookup false, or DIRECT/NONE modes that never
// reach the lookup branch).
type noopResolver struct{}

func (noopResolver) Initiate(*Request, time.Time) error      { return nil }
func (noopResolver) Poll(*Request, time.Time) PollResult     { return Failed }
func (noopResolver) OnReadable(*Request) (PollResult, error) { return Failed, nil }

var _ NameResolver = noopResolver{}

// AddrReversed renders addr as the reversed-nibble ip6.arpa label used by
// PTR queries, exported so resolver implementations outside this package
// (ptrprobe.UDPResolver) can build the same query name ocatsocks.c's
// oc_mk_ptrquery does.
func AddrReversed(addr netip.Addr) string {
	a16 := addr.As16()
	const hex = "0123456789abcdef"
	out := make([]byte, 0, 73)
	for i := len(a16) - 1; i >= 0; i-- {
		out = append(out, hex[a16[i]&0x0f], '.', hex[a16[i]>>4], '.')
	}
	out = append(out, "ip6.arpa."...)
	return string(out)
}
