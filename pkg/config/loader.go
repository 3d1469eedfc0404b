package config

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromFile loads configuration from a torrc-compatible file: one
// "Key Value" pair per line, "#" starts a comment, blank lines are ignored.
// Unrecognized keys are rejected so typos surface at startup rather than
// silently falling back to defaults.
func LoadFromFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 1 {
			continue
		}

		key := parts[0]
		value := ""
		if len(parts) > 1 {
			value = strings.Join(parts[1:], " ")
		}

		if err := processConfigOption(cfg, key, value); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return cfg.Validate()
}

func processConfigOption(cfg *Config, key, value string) error {
	switch key {
	case "socks_dst":
		addr, err := netip.ParseAddrPort(value)
		if err != nil {
			return fmt.Errorf("invalid socks_dst value %q: %w", value, err)
		}
		cfg.ProxyAddr = addr

	case "socks5":
		mode, err := ParseConnMode(value)
		if err != nil {
			return err
		}
		cfg.Mode = mode

	case "ocat_dest_port":
		port, err := parsePort(value)
		if err != nil {
			return fmt.Errorf("invalid ocat_dest_port value: %s", value)
		}
		cfg.DestPort = port

	case "ocat_ns_port":
		port, err := parsePort(value)
		if err != nil {
			return fmt.Errorf("invalid ocat_ns_port value: %s", value)
		}
		cfg.NameserverPort = port

	case "usrname":
		cfg.Username = value

	case "domain":
		cfg.Domain = value

	case "hosts_lookup":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid hosts_lookup value: %s", value)
		}
		cfg.HostsLookup = b

	case "dns_lookup":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid dns_lookup value: %s", value)
		}
		cfg.DNSLookup = b

	case "rand_addr":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid rand_addr value: %s", value)
		}
		cfg.RandAddr = b

	case "socks_conn_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid socks_conn_timeout value: %s", value)
		}
		cfg.ConnTimeout = d

	case "socks_dns_retry_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid socks_dns_retry_timeout value: %s", value)
		}
		cfg.DNSRetryTimeout = d

	case "socks_max_retry":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid socks_max_retry value: %s", value)
		}
		cfg.MaxRetry = n

	case "socks_dns_retry":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid socks_dns_retry value: %s", value)
		}
		cfg.DNSRetry = n

	default:
		return fmt.Errorf("unrecognized configuration key: %s", key)
	}

	return nil
}

func parsePort(value string) (uint16, error) {
	n, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}
