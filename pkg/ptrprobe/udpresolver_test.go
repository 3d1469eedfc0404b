package ptrprobe

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/sys/unix"

	"github.com/onioncat-go/gocatsocks/pkg/hostsdir"
	"github.com/onioncat-go/gocatsocks/pkg/socksconn"
)

func ptrReply(id uint16, q []dnsmessage.Question, name string) []byte {
	ptrName, _ := dnsmessage.NewName(name + ".")
	msg := dnsmessage.Message{
		Header:    dnsmessage.Header{ID: id, Response: true, RecursionAvailable: true},
		Questions: q,
		Answers: []dnsmessage.Resource{{
			Header: dnsmessage.ResourceHeader{Name: q[0].Name, Type: dnsmessage.TypePTR, Class: dnsmessage.ClassINET, TTL: 60},
			Body:   &dnsmessage.PTRResource{PTR: ptrName},
		}},
	}
	packed, _ := msg.Pack()
	return packed
}

// Scenario 5 of spec.md §8: a validated PTR response populates req.Name and
// signals Resolved.
func TestUDPResolverSuccessfulProbe(t *testing.T) {
	ns, err := net.ListenUDP("udp6", &net.UDPAddr{IP: net.ParseIP("::1")})
	if err != nil {
		t.Skipf("no IPv6 UDP loopback available: %v", err)
	}
	defer ns.Close()

	nsPort := ns.LocalAddr().(*net.UDPAddr).Port
	hosts := hostsdir.NewMapProvider()
	hosts.AddNameserver(netip.MustParseAddr("::1"))

	resolver := &UDPResolver{Hosts: hosts, NSPort: uint16(nsPort), MaxRetry: 2, RetryTimeout: 50 * time.Millisecond}
	req := &socksconn.Request{Addr: netip.MustParseAddr("fd80::1")}

	if err := resolver.Initiate(req, time.Now()); err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	defer unix.Close(req.FD)

	buf := make([]byte, 512)
	n, from, err := ns.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("nameserver ReadFromUDP() error = %v", err)
	}
	var q dnsmessage.Message
	if err := q.Unpack(buf[:n]); err != nil {
		t.Fatalf("unpack query: %v", err)
	}

	reply := ptrReply(q.Header.ID, q.Questions, "peer1.onion")
	if _, err := ns.WriteToUDP(reply, from); err != nil {
		t.Fatalf("nameserver WriteToUDP() error = %v", err)
	}

	waitReadable(t, req.FD)
	result, err := resolver.OnReadable(req)
	if err != nil {
		t.Fatalf("OnReadable() error = %v", err)
	}
	if result != socksconn.Resolved {
		t.Fatalf("OnReadable() = %v, want Resolved", result)
	}
	if req.Name != "peer1.onion" {
		t.Errorf("req.Name = %q, want peer1.onion", req.Name)
	}
}

// Scenario 6 of spec.md §8: a datagram from an unexpected source must be
// rejected rather than accepted as the probe's answer.
func TestUDPResolverSourceMismatch(t *testing.T) {
	ns, err := net.ListenUDP("udp6", &net.UDPAddr{IP: net.ParseIP("::1")})
	if err != nil {
		t.Skipf("no IPv6 UDP loopback available: %v", err)
	}
	defer ns.Close()
	impostor, err := net.ListenUDP("udp6", &net.UDPAddr{IP: net.ParseIP("::1")})
	if err != nil {
		t.Skipf("no IPv6 UDP loopback available: %v", err)
	}
	defer impostor.Close()

	nsPort := ns.LocalAddr().(*net.UDPAddr).Port
	hosts := hostsdir.NewMapProvider()
	hosts.AddNameserver(netip.MustParseAddr("::1"))

	resolver := &UDPResolver{Hosts: hosts, NSPort: uint16(nsPort), MaxRetry: 2, RetryTimeout: 50 * time.Millisecond}
	req := &socksconn.Request{Addr: netip.MustParseAddr("fd80::1")}

	if err := resolver.Initiate(req, time.Now()); err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	defer unix.Close(req.FD)

	buf := make([]byte, 512)
	n, _, err := ns.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("nameserver ReadFromUDP() error = %v", err)
	}
	var q dnsmessage.Message
	if err := q.Unpack(buf[:n]); err != nil {
		t.Fatalf("unpack query: %v", err)
	}

	// The query went to ns, but the reply comes from a different UDP
	// endpoint (impostor) — OnReadable must reject it.
	reply := ptrReply(q.Header.ID, q.Questions, "peer1.onion")
	clientAddr := &net.UDPAddr{IP: net.ParseIP("::1"), Port: reqLocalPort(t, req)}
	if _, err := impostor.WriteToUDP(reply, clientAddr); err != nil {
		t.Fatalf("impostor WriteToUDP() error = %v", err)
	}

	waitReadable(t, req.FD)
	result, err := resolver.OnReadable(req)
	if err == nil {
		t.Fatal("expected OnReadable() to reject a mismatched source")
	}
	if result == socksconn.Resolved {
		t.Error("a mismatched source must never resolve the request")
	}
}

// waitReadable blocks until fd has a datagram pending, so the subsequent
// non-blocking recvfrom cannot race the loopback delivery.
func waitReadable(t *testing.T, fd int) {
	t.Helper()
	pfds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfds, 2000)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if n == 0 {
		t.Fatal("socket never became readable")
	}
}

// reqLocalPort reads back the local UDP port bound to req's socket, via
// getsockname(2), so the test can address a reply directly at it.
func reqLocalPort(t *testing.T, req *socksconn.Request) int {
	t.Helper()
	sa, err := unix.Getsockname(req.FD)
	if err != nil {
		t.Fatalf("Getsockname() error = %v", err)
	}
	sa6, ok := sa.(*unix.SockaddrInet6)
	if !ok {
		t.Fatalf("unexpected sockaddr type %T", sa)
	}
	return sa6.Port
}
