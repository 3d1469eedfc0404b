package config

import (
	"net/netip"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}
	if cfg.Mode != ModeSocks4a {
		t.Errorf("Mode = %v, want ModeSocks4a", cfg.Mode)
	}
	if cfg.DestPort != 8060 {
		t.Errorf("DestPort = %v, want 8060", cfg.DestPort)
	}
	if cfg.MaxRetry != 3 {
		t.Errorf("MaxRetry = %v, want 3", cfg.MaxRetry)
	}
}

func TestConfigValidate(t *testing.T) {
	proxy := netip.MustParseAddrPort("127.0.0.1:9050")

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name: "valid socks5 config",
			modify: func(c *Config) {
				c.Mode = ModeSocks5
				c.ProxyAddr = proxy
			},
			wantErr: false,
		},
		{
			name:    "none mode never needs a proxy",
			modify:  func(c *Config) { c.Mode = ModeNone },
			wantErr: false,
		},
		{
			name:    "direct mode never needs a proxy",
			modify:  func(c *Config) { c.Mode = ModeDirect },
			wantErr: false,
		},
		{
			name: "socks5 without proxy addr",
			modify: func(c *Config) {
				c.Mode = ModeSocks5
				c.ProxyAddr = netip.AddrPort{}
			},
			wantErr: true,
		},
		{
			name:    "zero dest port",
			modify:  func(c *Config) { c.DestPort = 0 },
			wantErr: true,
		},
		{
			name: "dns lookup without nameserver port",
			modify: func(c *Config) {
				c.DNSLookup = true
				c.NameserverPort = 0
			},
			wantErr: true,
		},
		{
			name:    "negative max retry",
			modify:  func(c *Config) { c.MaxRetry = -1 },
			wantErr: true,
		},
		{
			name:    "zero conn timeout",
			modify:  func(c *Config) { c.ConnTimeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ProxyAddr = proxy
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()

	clone.Domain = ".i2p"
	if cfg.Domain == clone.Domain {
		t.Error("Clone() did not produce an independent copy")
	}
}

func TestParseConnMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ConnMode
		wantErr bool
	}{
		{"SOCKS4A", ModeSocks4a, false},
		{"socks5", ModeSocks5, false},
		{"DIRECT", ModeDirect, false},
		{"", ModeNone, false},
		{"bogus", ModeNone, true},
	}

	for _, tt := range tests {
		got, err := ParseConnMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseConnMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseConnMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConnModeString(t *testing.T) {
	if ModeSocks5.String() != "SOCKS5" {
		t.Errorf("String() = %q, want SOCKS5", ModeSocks5.String())
	}
}
