// Package peerregistry models the peer registry collaborator that owns
// established connections and the tunnel engine's keepalive machinery.
// It is out of scope for the connector itself (spec ocatsocks.c calls
// insert_peer/search_peer/send_keepalive under a registry-wide lock plus a
// per-peer lock); this package provides the minimal in-memory stand-in the
// connector's state machine hands established sockets to.
package peerregistry

import (
	"fmt"
	"net/netip"
	"sync"
	"time"
)

// Peer is an established connection held by the registry.
type Peer struct {
	Addr      netip.Addr
	FD        int
	Elapsed   time.Duration
	Keepalive int
}

// Registry receives activated connections from the connector and issues
// keepalives on them. Go's defer-scoped mutexes make the original's
// explicit lock_peers/lock_peer/unlock pairing unnecessary: callers never
// see a lock, only the two operations that used to bracket it.
type Registry interface {
	// Insert registers a newly-activated peer connection.
	Insert(addr netip.Addr, fd int, elapsed time.Duration) error
	// Keepalive looks up addr and sends it a keepalive, returning an error
	// if the peer cannot be found — mirroring the original's "critical
	// internal error" when a just-inserted peer search misses.
	Keepalive(addr netip.Addr) error
	// Search reports whether addr is currently registered.
	Search(addr netip.Addr) (Peer, bool)
}

// Table is an in-memory Registry implementation suitable for tests and the
// demo binary.
type Table struct {
	mu    sync.Mutex
	peers map[netip.Addr]*Peer
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{peers: make(map[netip.Addr]*Peer)}
}

// Insert implements Registry.
func (t *Table) Insert(addr netip.Addr, fd int, elapsed time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[addr] = &Peer{Addr: addr, FD: fd, Elapsed: elapsed}
	return nil
}

// Keepalive implements Registry.
func (t *Table) Keepalive(addr netip.Addr) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[addr]
	if !ok {
		return fmt.Errorf("peerregistry: keepalive for unknown peer %s", addr)
	}
	p.Keepalive++
	return nil
}

// Search implements Registry.
func (t *Table) Search(addr netip.Addr) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[addr]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}
