package core

import (
	"microservice/config"
	"microservice/internal/metrics"
	"microservice/internal/proto"
	"microservice/internal/retry"
	"microservice/internal/router"
	"microservice/internal/transport"
	"microservice/tunnel"
	"microservice/util"
)

// Build constructs the Mode for cfg.  Every mode serves the same
// router; the config only chooses how requests arrive.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := metrics.New()
	h := router.New()

	if cfg.Invoke {
		return &InvokeMode{Handler: h, Logger: logger, Metrics: m}, nil
	}

	return &ServeMode{
		Listener:    buildListener(cfg, logger, m),
		Handler:     h,
		Options:     protoOptions(cfg),
		GracePeriod: cfg.GracePeriod,
		Logger:      logger,
		Metrics:     m,
	}, nil
}

// ── helpers ──────────────────────────────────────────────────────────

// buildListener picks a local TCP socket, or a gateway port when an SSH
// tunnel is configured.
func buildListener(cfg *config.Config, logger *util.Logger, m *metrics.Collector) transport.Listener {
	if !cfg.TunnelEnabled {
		return &transport.TCPListener{Address: cfg.Address(), ReusePort: cfg.ReusePort}
	}

	b := retry.DefaultBackoff()
	b.MaxAttempts = config.DefaultTunnelAttempts

	return &transport.SSHListener{
		Config: &tunnel.SSHConfig{
			User:                     cfg.TunnelUser,
			Host:                     cfg.TunnelHost,
			Port:                     cfg.TunnelPort,
			KeyPath:                  cfg.SSHKeyPath,
			PromptPass:               cfg.SSHPassword,
			UseAgent:                 cfg.UseSSHAgent,
			StrictHostKey:            cfg.StrictHostKey,
			KnownHosts:               cfg.KnownHostsPath,
			ConnTimeout:              config.DefaultConnTimeout,
			KeepAliveInterval:        config.DefaultTunnelKeepAlive,
			AllowKeyboardInteractive: true,
		},
		RemoteBindAddress: cfg.RemoteBindAddress,
		RemotePort:        cfg.RemotePort,
		Backoff:           b,
		Logger:            logger,
		Metrics:           m,
	}
}

func protoOptions(cfg *config.Config) proto.Options {
	return proto.Options{
		ReadTimeout:          cfg.ReadTimeout,
		WriteTimeout:         cfg.WriteTimeout,
		IdleTimeout:          cfg.IdleTimeout,
		MaxHeaderBytes:       cfg.MaxHeaderBytes,
		MaxConcurrentStreams: cfg.MaxConcurrentStreams,
		HTTP1Only:            cfg.HTTP1Only,
	}
}
