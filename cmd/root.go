// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"microservice/config"
	"microservice/internal/core"
	"microservice/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X microservice/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stderr receives usage text and dry-run output.
var stderr io.Writer = os.Stderr //nolint:gochecknoglobals

// Execute parses args and runs the selected mode until ctx is cancelled.
//
// Settings are layered: defaults, then MICROSERVICE_* environment
// variables, then flags.  Flags are registered with the environment
// values as their defaults, so only flags actually given override them.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("microservice", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── listener ─────────────────────────────────────────────────
	fs.StringVarP(&cfg.Host, "host", "H", cfg.Host, "Interface to bind")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "TCP port to bind (0 = any free port)")
	var addr string
	fs.StringVarP(&addr, "addr", "a", "", "Listen address as host:port (overrides -H/-p)")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Time allowed to read one request head (0 = none)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Time allowed to write one response (0 = none)")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Keep-alive wait for the next request (0 = none)")
	fs.DurationVar(&cfg.GracePeriod, "grace", cfg.GracePeriod, "Shutdown wait for open connections")
	fs.BoolVar(&cfg.ReusePort, "reuse-port", cfg.ReusePort, "Set SO_REUSEPORT so several instances share the port")

	// ── protocol ─────────────────────────────────────────────────
	fs.BoolVar(&cfg.HTTP1Only, "http1-only", cfg.HTTP1Only, "Refuse HTTP/2 prior-knowledge connections")
	fs.Uint32Var(&cfg.MaxConcurrentStreams, "max-streams", cfg.MaxConcurrentStreams, "Concurrent HTTP/2 streams per connection")
	fs.IntVar(&cfg.MaxHeaderBytes, "max-header-bytes", cfg.MaxHeaderBytes, "Largest accepted HTTP/1 request head")

	// ── invocation ───────────────────────────────────────────────
	fs.BoolVar(&cfg.Invoke, "invoke", cfg.Invoke, "Answer JSON events on stdin instead of listening")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Publish through an SSH gateway at [user@]host[:port]")
	fs.IntVar(&cfg.RemotePort, "remote-port", cfg.RemotePort, "Port to open on the gateway")
	fs.StringVar(&cfg.RemoteBindAddress, "remote-bind", cfg.RemoteBindAddress, "Address to bind on the gateway (default: gateway's choice)")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	var verbose int
	var quiet bool
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Log errors only")

	var showVersion, showHelp bool
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Validate the configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("microservice %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	if addr != "" {
		if err := cfg.SetAddress(addr); err != nil {
			return err
		}
	}
	cfg.Verbose += verbose
	if quiet {
		cfg.Verbose = 0
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DryRun {
		fmt.Fprintf(stderr, "configuration OK: %s\n", describe(cfg))
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// describe summarises where the service will take requests from.
func describe(cfg *config.Config) string {
	switch {
	case cfg.Invoke:
		return "invoke (stdin/stdout)"
	case cfg.TunnelEnabled:
		return fmt.Sprintf("%s via ssh %s:%d, gateway port %d",
			cfg.Address(), cfg.TunnelHost, cfg.TunnelPort, cfg.RemotePort)
	default:
		return cfg.Address()
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `microservice – minimal HTTP/1.1 and h2c service v%s

Serves GET / with a fixed HTML page and 404 for everything else.

Usage:
  microservice [options]                        Listen on 127.0.0.1:8080
  microservice -T user@gateway --remote-port N  Publish through SSH
  microservice --invoke < events.ndjson         Answer JSON events

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Environment:
  MICROSERVICE_HOST, MICROSERVICE_PORT, MICROSERVICE_ADDR, MICROSERVICE_TUNNEL, ...
  Flags take precedence over environment variables.

Examples:
  microservice -p 3000                          Listen on port 3000
  microservice -a 0.0.0.0:80 --grace 10s        Listen on all interfaces
  microservice --http1-only -vv                 HTTP/1 only, verbose
  microservice -T deploy@bastion --remote-port 8080
`)
}
