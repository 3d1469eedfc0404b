package socksconn

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// fdWriter adapts a raw non-blocking fd to io.Writer for writeFull. It is
// only ever called immediately after Poll reports the fd writable, so a
// single unix.Write is expected to succeed or fail outright rather than
// need retrying.
type fdWriter struct {
	fd int
}

func (w fdWriter) Write(b []byte) (int, error) {
	return unix.Write(w.fd, b)
}

// readFull reads exactly len(buf) bytes from fd, called only after Poll
// has reported fd readable for a handshake reply whose length is fixed and
// known in advance (SOCKS4a's 8-byte reply, SOCKS5's 2-byte greeting
// reply).
func readFull(fd int, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := unix.Read(fd, buf[total:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("socksconn: connection closed during handshake read")
		}
		total += n
	}
	return nil
}

// readSome reads whatever is available into buf in a single call, for the
// SOCKS5 CONNECT reply whose true length depends on ATYP and isn't known
// until after the first read (spec.md §9 Open Question on SOCKS5 reply
// framing).
func readSome(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("socksconn: connection closed during handshake read")
	}
	return n, nil
}
