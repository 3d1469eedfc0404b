package socksconn

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// dialNonBlocking creates a non-blocking TCP socket and initiates a
// connect to dst, per spec.md §4.4 NEW-entry rules and §5 ("all sockets
// owned by the reactor are non-blocking"). A nil error with inProgress
// true means the connect is underway and the fd should be registered for
// writability; any other error means the caller should reschedule.
func dialNonBlocking(dst netip.AddrPort) (fd int, inProgress bool, err error) {
	fd, err = unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, false, fmt.Errorf("socksconn: socket: %w", err)
	}

	sa := &unix.SockaddrInet6{Port: int(dst.Port()), Addr: dst.Addr().As16()}
	err = unix.Connect(fd, sa)
	if err == nil {
		return fd, false, nil
	}
	if err == unix.EINPROGRESS {
		return fd, true, nil
	}
	unix.Close(fd)
	return -1, false, fmt.Errorf("socksconn: connect: %w", err)
}

// dialUDPNonBlocking creates a non-blocking UDP socket for the DNS probe,
// per spec.md §4.6 step 2.
func dialUDPNonBlocking() (fd int, err error) {
	fd, err = unix.Socket(unix.AF_INET6, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("socksconn: udp socket: %w", err)
	}
	return fd, nil
}

// soError reads SO_ERROR off fd, the non-blocking-connect completion check
// of spec.md §4.4 ("CONNECTING (writable): read socket error via
// SO_ERROR").
func soError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// closeFD closes fd if it is a valid descriptor, ignoring "already closed"
// style errors since reschedule/reset may be called more than once against
// state that already cleared fd to 0.
func closeFD(fd int) {
	if fd > 0 {
		unix.Close(fd)
	}
}
