package socksconn

import (
	"net/netip"
	"testing"
	"time"
)

func TestNoopResolverAlwaysFails(t *testing.T) {
	var r noopResolver
	req := &Request{Addr: netip.MustParseAddr("fd80::1")}

	if err := r.Initiate(req, time.Now()); err != nil {
		t.Errorf("Initiate() error = %v, want nil", err)
	}
	if got := r.Poll(req, time.Now()); got != Failed {
		t.Errorf("Poll() = %v, want Failed", got)
	}
	result, err := r.OnReadable(req)
	if result != Failed || err != nil {
		t.Errorf("OnReadable() = (%v, %v), want (Failed, nil)", result, err)
	}
}

func TestAddrReversed(t *testing.T) {
	addr := netip.MustParseAddr("::1")
	got := AddrReversed(addr)

	if got[len(got)-1] != '.' {
		t.Fatalf("AddrReversed() = %q, want trailing dot", got)
	}
	const suffix = "ip6.arpa."
	if got[len(got)-len(suffix):] != suffix {
		t.Errorf("AddrReversed() = %q, want suffix %q", got, suffix)
	}
	// Every nibble of a 128-bit address is rendered, reversed: 32 hex
	// digits plus 32 separating dots plus the ip6.arpa. label.
	wantNibbles := 32
	gotNibbles := 0
	for _, r := range got[:len(got)-len(suffix)] {
		if r != '.' {
			gotNibbles++
		}
	}
	if gotNibbles != wantNibbles {
		t.Errorf("AddrReversed() has %d nibbles, want %d", gotNibbles, wantNibbles)
	}
}
