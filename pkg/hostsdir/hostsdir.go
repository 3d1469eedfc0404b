// Package hostsdir models the hosts/nameserver directory collaborator: a
// lookup table mapping overlay addresses to known names, and a small pool
// of anonymous DNS nameservers to query when a name isn't known locally.
package hostsdir

import "net/netip"

// Provider answers name and nameserver lookups for the connector.
type Provider interface {
	// Check reports whether the directory is usable at all.
	Check() bool
	// GetName returns the known overlay name for addr, if any.
	GetName(addr netip.Addr) (string, bool)
	// GetNS returns a nameserver endpoint and a source tag used to validate
	// the reply's origin, or false if no nameserver is configured.
	GetNS() (addr netip.Addr, src int, ok bool)
}

// MapProvider is an in-memory Provider backed by plain maps, standing in
// for a parsed hosts file.
type MapProvider struct {
	names       map[netip.Addr]string
	nameservers []netip.Addr
	nsCursor    int
}

// NewMapProvider returns an empty MapProvider. Use AddName/AddNameserver to
// populate it.
func NewMapProvider() *MapProvider {
	return &MapProvider{names: make(map[netip.Addr]string)}
}

// AddName registers a known overlay name for addr.
func (p *MapProvider) AddName(addr netip.Addr, name string) {
	p.names[addr] = name
}

// AddNameserver appends a nameserver to the rotation GetNS draws from.
func (p *MapProvider) AddNameserver(addr netip.Addr) {
	p.nameservers = append(p.nameservers, addr)
}

// Check implements Provider.
func (p *MapProvider) Check() bool {
	return p != nil
}

// GetName implements Provider.
func (p *MapProvider) GetName(addr netip.Addr) (string, bool) {
	name, ok := p.names[addr]
	return name, ok
}

// GetNS implements Provider, round-robining across registered nameservers
// so ns_src disambiguates which one a given probe is waiting on.
func (p *MapProvider) GetNS() (netip.Addr, int, bool) {
	if len(p.nameservers) == 0 {
		return netip.Addr{}, 0, false
	}
	src := p.nsCursor
	addr := p.nameservers[src]
	p.nsCursor = (p.nsCursor + 1) % len(p.nameservers)
	return addr, src, true
}
