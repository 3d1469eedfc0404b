package socksconn

import (
	"encoding/binary"
	"fmt"
	"io"
)

// writeFull writes all of b to w, treating a short write as a failure
// (spec.md §4.5: "All writes must be complete; short writes are treated as
// failures").
func writeFull(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("socksconn: short write: wrote %d of %d bytes", n, len(b))
	}
	return nil
}

// encodeSOCKS4a builds a SOCKS4a CONNECT request per spec.md §4.5: VN=4,
// CD=1, destination port, the literal invalid IPv4 address 0.0.0.1 that
// signals "resolve by name" to the proxy, a NUL-terminated user id, and a
// NUL-terminated destination hostname.
func encodeSOCKS4a(user, host string, port uint16) []byte {
	buf := make([]byte, 0, 9+len(user)+len(host))
	buf = append(buf, 4, 1)
	buf = binary.BigEndian.AppendUint16(buf, port)
	buf = append(buf, 0, 0, 0, 1)
	buf = append(buf, user...)
	buf = append(buf, 0)
	buf = append(buf, host...)
	buf = append(buf, 0)
	return buf
}

// parseSOCKS4aReply reports success per law L1 of spec.md §8: a
// well-formed 8-byte reply with VN==0 and CD==90 is success; anything else
// is failure.
func parseSOCKS4aReply(reply []byte) bool {
	if len(reply) != 8 {
		return false
	}
	return reply[0] == 0 && reply[1] == 90
}

const (
	socks5Version    = 0x05
	socks5MethodNone = 0x00
	socks5CmdConnect = 0x01
	socks5AtypDomain = 0x03
)

// encodeSOCKS5Greeting builds the no-auth-only greeting of spec.md §4.5.
func encodeSOCKS5Greeting() []byte {
	return []byte{socks5Version, 0x01, socks5MethodNone}
}

// parseSOCKS5GreetingReply reports success iff the 2-byte reply is
// {0x05, 0x00}.
func parseSOCKS5GreetingReply(reply []byte) bool {
	if len(reply) != 2 {
		return false
	}
	return reply[0] == socks5Version && reply[1] == socks5MethodNone
}

// encodeSOCKS5Request builds a SOCKS5 CONNECT request with ATYP=DOMAIN per
// spec.md §4.5. name must be at most 255 bytes.
func encodeSOCKS5Request(name string, port uint16) ([]byte, error) {
	if len(name) > 255 {
		return nil, fmt.Errorf("socksconn: domain name too long: %d bytes", len(name))
	}
	buf := make([]byte, 0, 7+len(name))
	buf = append(buf, socks5Version, socks5CmdConnect, 0x00, socks5AtypDomain, byte(len(name)))
	buf = append(buf, name...)
	buf = binary.BigEndian.AppendUint16(buf, port)
	return buf, nil
}

// socks5MaxReplyLen is sized for the largest ATYP=DOMAIN reply: 4-byte
// header, 1 length byte, up to 255 name bytes, 2-byte port.
const socks5MaxReplyLen = 4 + 1 + 255 + 2

// parseSOCKS5Reply reports success iff VER==5, RSV==0, REP==0. Only REP
// (offset 1) is interpreted; BND fields are ignored per spec.md §4.5.
func parseSOCKS5Reply(reply []byte) bool {
	if len(reply) < 4 {
		return false
	}
	return reply[0] == socks5Version && reply[1] == 0x00 && reply[2] == 0x00
}

// parseSOCKS5ReplyName decodes the bound name/port from an ATYP=DOMAIN
// reply, used by codec round-trip tests (law L2); the connector itself
// never needs BND.ADDR/BND.PORT.
func parseSOCKS5ReplyName(reply []byte) (string, uint16, error) {
	if len(reply) < 5 {
		return "", 0, fmt.Errorf("socksconn: reply too short")
	}
	if reply[3] != socks5AtypDomain {
		return "", 0, fmt.Errorf("socksconn: unexpected ATYP %d", reply[3])
	}
	nameLen := int(reply[4])
	if len(reply) < 5+nameLen+2 {
		return "", 0, fmt.Errorf("socksconn: truncated domain reply")
	}
	name := string(reply[5 : 5+nameLen])
	port := binary.BigEndian.Uint16(reply[5+nameLen : 5+nameLen+2])
	return name, port, nil
}

// encodeSOCKS5ReplySuccess builds a synthetic success reply carrying name
// and port as BND.ADDR/BND.PORT, used only by tests simulating a proxy.
func encodeSOCKS5ReplySuccess(name string, port uint16) []byte {
	buf := []byte{socks5Version, 0x00, 0x00, socks5AtypDomain, byte(len(name))}
	buf = append(buf, name...)
	buf = binary.BigEndian.AppendUint16(buf, port)
	return buf
}
