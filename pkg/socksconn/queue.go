package socksconn

import "net/netip"

// queue is the Request Queue of spec.md §4.1: a set of outstanding
// connection attempts keyed by peer address, owned exclusively by the
// reactor goroutine. A map keyed by addr replaces the original's
// intrusive linked list (spec.md §9 DESIGN NOTE "mutable intrusive linked
// list") for O(1) get/enqueue/unqueue instead of a linear scan.
type queue struct {
	entries map[netip.Addr]*Request
}

func newQueue() *queue {
	return &queue{entries: make(map[netip.Addr]*Request)}
}

// get returns the entry for addr, if any.
func (q *queue) get(addr netip.Addr) (*Request, bool) {
	r, ok := q.entries[addr]
	return r, ok
}

// enqueue inserts a new Request for addr unless one already exists, in
// which case it is a no-op (matching spec.md §4.1: "if get(template.addr)
// exists, no-op").
func (q *queue) enqueue(addr netip.Addr, perm bool) *Request {
	if existing, ok := q.entries[addr]; ok {
		return existing
	}
	r := &Request{Addr: addr, Perm: perm, State: StateNew}
	q.entries[addr] = r
	return r
}

// unqueue removes r from the queue.
func (q *queue) unqueue(r *Request) {
	delete(q.entries, r.Addr)
}

// iterate calls fn for every entry. It snapshots the key set up front so a
// callback that deletes the current entry (or any other) cannot corrupt
// traversal — the original needed a restart-the-traversal dance only
// because it mutated an intrusive list in place while walking it.
func (q *queue) iterate(fn func(*Request)) {
	keys := make([]netip.Addr, 0, len(q.entries))
	for k := range q.entries {
		keys = append(keys, k)
	}
	for _, k := range keys {
		if r, ok := q.entries[k]; ok {
			fn(r)
		}
	}
}

// reap removes every entry currently in StateDelete. Invariant I3 of
// spec.md §8: after any reactor iteration, no entry has state == DELETE.
func (q *queue) reap() {
	for addr, r := range q.entries {
		if r.State == StateDelete {
			delete(q.entries, addr)
		}
	}
}

func (q *queue) len() int {
	return len(q.entries)
}

// findByFD locates the entry currently holding fd. The queue is small
// (spec.md §4.1: "typical sizes are tens"), so a linear scan here is
// acceptable; the map above remains the canonical index by address.
func (q *queue) findByFD(fd int) (*Request, bool) {
	for _, r := range q.entries {
		if r.FD == fd {
			return r, true
		}
	}
	return nil, false
}
