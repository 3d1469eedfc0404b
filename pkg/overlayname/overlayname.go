// Package overlayname derives DNS-like overlay names from IPv6 peer
// addresses, the ipv6tonion address transform.
package overlayname

import (
	"encoding/base32"
	"net/netip"
)

// Deriver turns a peer's overlay IPv6 address into the hostname used in
// SOCKS CONNECT requests.
type Deriver interface {
	Derive(addr netip.Addr) string
}

// onionEncoding is the base32 alphabet onion hostnames use: lowercase
// letters followed by the digits 2-7, unpadded.
var onionEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// SuffixDeriver renders the overlay name algorithmically: the low 80 bits
// of the peer's IPv6 address (everything after the overlay prefix) encoded
// as a 16-character base32 label, with a configured domain suffix appended.
type SuffixDeriver struct {
	Suffix string
}

// NewSuffixDeriver returns a SuffixDeriver using suffix (e.g. ".onion").
func NewSuffixDeriver(suffix string) *SuffixDeriver {
	return &SuffixDeriver{Suffix: suffix}
}

// Derive implements Deriver.
func (d *SuffixDeriver) Derive(addr netip.Addr) string {
	a16 := addr.As16()
	return onionEncoding.EncodeToString(a16[6:]) + d.Suffix
}
