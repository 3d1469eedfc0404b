package ptrprobe

import (
	"net/netip"
	"sync"
	"time"

	"github.com/onioncat-go/gocatsocks/pkg/socksconn"
)

// CallbackResolver implements socksconn.NameResolver on top of an external
// asynchronous resolver, the equivalent of ocatsocks.c's
// ocres_query_callback alternative to the UDP probe (spec.md §6, §9
// DESIGN NOTE 3). It never touches a socket of its own; the connector's
// poll set simply has nothing to wait on for these requests, so results
// are collected in memory and the reactor is nudged awake via Wakeup.
type CallbackResolver struct {
	// Lookup starts resolving addr asynchronously and must eventually call
	// report exactly once, from any goroutine.
	Lookup func(addr netip.Addr, report func(name string, err error))
	// Wakeup forces the reactor out of its poll wait once a result lands,
	// typically (*socksconn.Submitter).Wakeup.
	Wakeup func()

	mu      sync.Mutex
	results map[netip.Addr]callbackResult
}

type callbackResult struct {
	name string
	err  error
}

var _ socksconn.NameResolver = (*CallbackResolver)(nil)

// Initiate starts the asynchronous lookup. req is not given an fd: there
// is nothing for the reactor's poll set to wait on for this path.
func (c *CallbackResolver) Initiate(req *socksconn.Request, now time.Time) error {
	if c.results == nil {
		c.results = make(map[netip.Addr]callbackResult)
	}
	addr := req.Addr
	go c.Lookup(addr, func(name string, err error) {
		c.mu.Lock()
		c.results[addr] = callbackResult{name: name, err: err}
		c.mu.Unlock()
		if c.Wakeup != nil {
			c.Wakeup()
		}
	})
	return nil
}

// Poll checks whether the asynchronous lookup for req has reported back.
func (c *CallbackResolver) Poll(req *socksconn.Request, now time.Time) socksconn.PollResult {
	c.mu.Lock()
	res, ok := c.results[req.Addr]
	if ok {
		delete(c.results, req.Addr)
	}
	c.mu.Unlock()

	if !ok {
		return socksconn.Pending
	}
	if res.err != nil || res.name == "" {
		return socksconn.Failed
	}
	req.Name = res.name
	return socksconn.Resolved
}

// OnReadable is never invoked for callback-backed requests: they hold no
// fd, so the reactor's poll set never reports them readable.
func (c *CallbackResolver) OnReadable(req *socksconn.Request) (socksconn.PollResult, error) {
	return socksconn.Pending, nil
}
