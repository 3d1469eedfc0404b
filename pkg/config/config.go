// Package config provides configuration management for the SOCKS connector.
package config

import (
	"fmt"
	"net/netip"
	"time"
)

// ConnMode selects how the connector reaches a remote overlay peer.
type ConnMode int

const (
	// ModeSocks4a routes through a SOCKS4a proxy using a hostname destination.
	ModeSocks4a ConnMode = iota
	// ModeSocks5 routes through a SOCKS5 proxy using ATYP=DOMAIN.
	ModeSocks5
	// ModeDirect dials the resolved overlay name directly, bypassing any proxy.
	ModeDirect
	// ModeNone disables the connector; requests are silently dropped.
	ModeNone
)

// String renders the connection mode the way it appears in config files and logs.
func (m ConnMode) String() string {
	switch m {
	case ModeSocks4a:
		return "SOCKS4A"
	case ModeSocks5:
		return "SOCKS5"
	case ModeDirect:
		return "DIRECT"
	case ModeNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseConnMode parses a mode string as accepted in config files.
func ParseConnMode(s string) (ConnMode, error) {
	switch s {
	case "SOCKS4A", "socks4a":
		return ModeSocks4a, nil
	case "SOCKS5", "socks5":
		return ModeSocks5, nil
	case "DIRECT", "direct":
		return ModeDirect, nil
	case "NONE", "none", "":
		return ModeNone, nil
	default:
		return ModeNone, fmt.Errorf("invalid connection mode: %s", s)
	}
}

// Config holds the settings the connector consumes, per the recognized-keys
// table of the connector specification.
type Config struct {
	// ProxyAddr is the SOCKS proxy endpoint (socks_dst). Validate rejects
	// the zero value in SOCKS4A and SOCKS5 modes; DIRECT and NONE modes do
	// not use it.
	ProxyAddr netip.AddrPort

	// Mode selects SOCKS4A, SOCKS5, DIRECT, or NONE (socks5).
	Mode ConnMode

	// DestPort is the TCP port requested at the destination overlay peer
	// (ocat_dest_port).
	DestPort uint16

	// NameserverPort is the UDP port of the anonymous DNS nameserver used
	// by the PTR probe (ocat_ns_port).
	NameserverPort uint16

	// Username is sent in the SOCKS4a user field (usrname).
	Username string

	// Domain is appended to algorithmically-derived overlay names (domain).
	Domain string

	// HostsLookup enables hosts-file name resolution (hosts_lookup).
	HostsLookup bool

	// DNSLookup enables the DNS/resolver reverse lookup sub-protocol (dns_lookup).
	DNSLookup bool

	// RandAddr, when set, skips the loopback probe in the synchronous
	// startup probe (rand_addr).
	RandAddr bool

	// ConnTimeout is the backoff delay applied by reschedule
	// (TOR_SOCKS_CONN_TIMEOUT).
	ConnTimeout time.Duration

	// DNSRetryTimeout bounds the reactor's poll wait and the DNS probe's
	// retry spacing (SOCKS_DNS_RETRY_TIMEOUT).
	DNSRetryTimeout time.Duration

	// MaxRetry is the number of failed attempts a temporary request
	// tolerates before removal (SOCKS_MAX_RETRY).
	MaxRetry int

	// DNSRetry is the number of PTR-query resends attempted before falling
	// back to the algorithmic overlay name (SOCKS_DNS_RETRY).
	DNSRetry int
}

// DefaultConfig returns a configuration with OnionCat's historical defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:            ModeSocks4a,
		DestPort:        8060,
		NameserverPort:  53,
		Username:        "",
		Domain:          ".onion",
		HostsLookup:     true,
		DNSLookup:       false,
		RandAddr:        false,
		ConnTimeout:     20 * time.Second,
		DNSRetryTimeout: 5 * time.Second,
		MaxRetry:        3,
		DNSRetry:        3,
	}
}

// Validate checks whether the configuration can be safely handed to a Connector.
func (c *Config) Validate() error {
	if c.Mode < ModeSocks4a || c.Mode > ModeNone {
		return fmt.Errorf("invalid Mode: %d", c.Mode)
	}
	if c.Mode != ModeNone && c.Mode != ModeDirect && !c.ProxyAddr.IsValid() {
		return fmt.Errorf("ProxyAddr must be set for mode %s", c.Mode)
	}
	if c.DestPort == 0 {
		return fmt.Errorf("DestPort must be non-zero")
	}
	if c.DNSLookup && c.NameserverPort == 0 {
		return fmt.Errorf("NameserverPort must be non-zero when DNSLookup is enabled")
	}
	if c.ConnTimeout <= 0 {
		return fmt.Errorf("ConnTimeout must be positive")
	}
	if c.DNSRetryTimeout <= 0 {
		return fmt.Errorf("DNSRetryTimeout must be positive")
	}
	if c.MaxRetry < 0 {
		return fmt.Errorf("MaxRetry must be non-negative")
	}
	if c.DNSRetry < 0 {
		return fmt.Errorf("DNSRetry must be non-negative")
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Enabled reports whether the connector should process requests at all.
func (c *Config) Enabled() bool {
	return c.Mode != ModeNone
}
