// Package main provides a small demo daemon that wires the outbound SOCKS
// connector end to end: config, logger, an in-memory peer registry and
// hosts directory, and the reactor.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/onioncat-go/gocatsocks/pkg/config"
	"github.com/onioncat-go/gocatsocks/pkg/hostsdir"
	"github.com/onioncat-go/gocatsocks/pkg/logger"
	"github.com/onioncat-go/gocatsocks/pkg/overlayname"
	"github.com/onioncat-go/gocatsocks/pkg/peerregistry"
	"github.com/onioncat-go/gocatsocks/pkg/ptrprobe"
	"github.com/onioncat-go/gocatsocks/pkg/socksconn"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file (torrc format)")
	socksDst := flag.String("socks-dst", "", "SOCKS proxy endpoint, e.g. 127.0.0.1:9050")
	mode := flag.String("mode", "SOCKS5", "Connection mode: SOCKS4A, SOCKS5, DIRECT, NONE")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configFile != "" {
		if err := config.LoadFromFile(*configFile, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config file: %v\n", err)
			os.Exit(1)
		}
	}
	if *socksDst != "" {
		addr, err := netip.ParseAddrPort(*socksDst)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -socks-dst: %v\n", err)
			os.Exit(1)
		}
		cfg.ProxyAddr = addr
	}
	if *mode != "" {
		m, err := config.ParseConnMode(*mode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -mode: %v\n", err)
			os.Exit(1)
		}
		cfg.Mode = m
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(level, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cancel, cfg, log); err != nil {
		log.Error("connector exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, log *logger.Logger) error {
	hosts := hostsdir.NewMapProvider()
	registry := peerregistry.NewTable()
	deriver := overlayname.NewSuffixDeriver(cfg.Domain)

	var resolver socksconn.NameResolver
	if cfg.DNSLookup {
		resolver = &ptrprobe.UDPResolver{
			Hosts:        hosts,
			NSPort:       cfg.NameserverPort,
			MaxRetry:     cfg.DNSRetry,
			RetryTimeout: cfg.DNSRetryTimeout,
		}
	}

	conn, err := socksconn.New(cfg, log, resolver, deriver, hosts, registry)
	if err != nil {
		return fmt.Errorf("failed to create connector: %w", err)
	}
	defer conn.Close()

	sub := conn.Submitter()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- conn.Run(ctx) }()

	log.Info("connector started",
		"mode", cfg.Mode.String(),
		"proxy", cfg.ProxyAddr.String())

	for {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				sub.Dump(os.Stdout)
			default:
				log.Info("received shutdown signal", "signal", sig.String())
				cancel()
				return waitForRun(runErrCh)
			}
		case err := <-runErrCh:
			return err
		}
	}
}

func waitForRun(runErrCh chan error) error {
	err := <-runErrCh
	if err == context.Canceled {
		return nil
	}
	return err
}
