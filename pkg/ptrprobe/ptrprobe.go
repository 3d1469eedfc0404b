// Package ptrprobe implements the connector's anonymous DNS sub-protocol:
// a UDP reverse-PTR query used to obtain a peer's overlay hostname before
// the SOCKS handshake (spec.md §4.6), plus an asynchronous-resolver
// alternative behind the same NameResolver interface.
package ptrprobe

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/sys/unix"

	"github.com/onioncat-go/gocatsocks/pkg/hostsdir"
	"github.com/onioncat-go/gocatsocks/pkg/socksconn"
)

// UDPResolver implements socksconn.NameResolver by sending a PTR query
// over UDP to a nameserver drawn from a hostsdir.Provider and validating
// the reply's source endpoint, per spec.md §4.6.
type UDPResolver struct {
	Hosts        hostsdir.Provider
	NSPort       uint16
	MaxRetry     int
	RetryTimeout time.Duration
}

var _ socksconn.NameResolver = (*UDPResolver)(nil)

// Initiate selects a nameserver, opens a non-blocking UDP socket, and
// sends the first PTR query, per spec.md §4.6 steps 1-2.
func (u *UDPResolver) Initiate(req *socksconn.Request, now time.Time) error {
	if u.Hosts == nil || !u.Hosts.Check() {
		return fmt.Errorf("ptrprobe: no hosts/nameserver directory configured")
	}
	ns, src, ok := u.Hosts.GetNS()
	if !ok {
		return fmt.Errorf("ptrprobe: no nameserver available")
	}

	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("ptrprobe: socket: %w", err)
	}

	id, err := randomID()
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("ptrprobe: transaction id: %w", err)
	}

	req.FD = fd
	req.NSAddr = ns
	req.NSSrc = src
	req.DNSID = id
	req.DNSSent = 0

	if err := u.send(req); err != nil {
		unix.Close(fd)
		req.FD = 0
		return err
	}
	return nil
}

// Poll resends the query on timeout, up to MaxRetry times, per spec.md
// §4.6 step 3.
func (u *UDPResolver) Poll(req *socksconn.Request, now time.Time) socksconn.PollResult {
	if now.Before(req.RestartTime) {
		return socksconn.Pending
	}
	if req.DNSSent > u.MaxRetry {
		return socksconn.Failed
	}
	if err := u.send(req); err != nil {
		return socksconn.Failed
	}
	req.RestartTime = now.Add(u.RetryTimeout)
	return socksconn.Pending
}

// OnReadable reads a pending datagram, validates its source against
// ns_addr and NSPort, and parses the PTR answer, per spec.md §4.6 step 4.
func (u *UDPResolver) OnReadable(req *socksconn.Request) (socksconn.PollResult, error) {
	buf := make([]byte, 512)
	n, from, err := unix.Recvfrom(req.FD, buf, 0)
	if err != nil {
		return socksconn.Pending, fmt.Errorf("ptrprobe: recvfrom: %w", err)
	}

	fromAddr, fromPort, ok := sockaddrToAddrPort(from)
	if !ok || fromAddr != req.NSAddr || fromPort != int(u.NSPort) {
		return socksconn.Pending, fmt.Errorf("ptrprobe: response from unexpected source %v:%d, want %v:%d", fromAddr, fromPort, req.NSAddr, u.NSPort)
	}

	name, err := parsePTRResponse(buf[:n], req.DNSID)
	if err != nil {
		return socksconn.Pending, fmt.Errorf("ptrprobe: %w", err)
	}

	req.Name = name
	return socksconn.Resolved, nil
}

func (u *UDPResolver) send(req *socksconn.Request) error {
	query, err := buildPTRQuery(req.Addr, req.DNSID)
	if err != nil {
		return fmt.Errorf("ptrprobe: build query: %w", err)
	}
	sa := &unix.SockaddrInet6{Port: int(u.NSPort), Addr: req.NSAddr.As16()}
	if err := unix.Sendto(req.FD, query, 0, sa); err != nil {
		return fmt.Errorf("ptrprobe: sendto: %w", err)
	}
	req.DNSSent++
	return nil
}

// buildPTRQuery builds a PTR question for addr's reversed ip6.arpa label
// using the x/net DNS message codec, the equivalent of
// ocatsocks.c's oc_mk_ptrquery.
func buildPTRQuery(addr netip.Addr, id uint16) ([]byte, error) {
	name, err := dnsmessage.NewName(socksconn.AddrReversed(addr))
	if err != nil {
		return nil, err
	}
	msg := dnsmessage.Message{
		Header: dnsmessage.Header{ID: id, RecursionDesired: true},
		Questions: []dnsmessage.Question{{
			Name:  name,
			Type:  dnsmessage.TypePTR,
			Class: dnsmessage.ClassINET,
		}},
	}
	return msg.Pack()
}

// parsePTRResponse validates the response id and extracts the PTR
// answer's name, the equivalent of ocatsocks.c's oc_proc_response.
func parsePTRResponse(buf []byte, wantID uint16) (string, error) {
	var msg dnsmessage.Message
	if err := msg.Unpack(buf); err != nil {
		return "", fmt.Errorf("unpack: %w", err)
	}
	if msg.Header.ID != wantID {
		return "", fmt.Errorf("transaction id mismatch: got %d, want %d", msg.Header.ID, wantID)
	}
	if msg.Header.RCode != dnsmessage.RCodeSuccess {
		return "", fmt.Errorf("rcode %v", msg.Header.RCode)
	}
	if msg.Header.Truncated {
		return "", fmt.Errorf("truncated response")
	}
	for _, ans := range msg.Answers {
		if ptr, ok := ans.Body.(*dnsmessage.PTRResource); ok {
			return trimTrailingDot(ptr.PTR.String()), nil
		}
	}
	return "", fmt.Errorf("no PTR record in response")
}

func trimTrailingDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}

func randomID() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// sockaddrToAddrPort extracts the address and port spec.md §4.6 step 4
// requires matching against ns_addr:port before accepting a PTR response.
func sockaddrToAddrPort(sa unix.Sockaddr) (netip.Addr, int, bool) {
	sa6, ok := sa.(*unix.SockaddrInet6)
	if !ok {
		return netip.Addr{}, 0, false
	}
	return netip.AddrFrom16(sa6.Addr), sa6.Port, true
}
