package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/isometry/adauth/internal/config"
	"github.com/isometry/adauth/internal/identity"
	"github.com/isometry/adauth/internal/ldap"
	"github.com/isometry/adauth/internal/logging"
	"github.com/isometry/adauth/internal/metrics"
)

// app holds the wired components shared by the commands.
type app struct {
	config   *config.Config
	logger   hclog.Logger
	metrics  *metrics.Recorder
	resolver *identity.Resolver
	close    func() error
}

// bootstrap loads configuration and wires the directory client, metrics and resolver.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New("adauth", logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, err
	}

	directory, closeDirectory, err := newDirectory(ctx, cfg, logging.Subsystem(logger, "directory"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s directory: %w", cfg.Directory.Backend, err)
	}

	var (
		recorder *metrics.Recorder
		observer identity.Metrics
	)
	if cfg.Metrics.Enabled {
		recorder = metrics.New()
		observer = recorder
	}

	resolver, err := identity.NewResolver(directory, cfg.ResolverConfig(), logging.Subsystem(logger, "identity"), observer)
	if err != nil {
		_ = closeDirectory()
		return nil, err
	}

	logger.Debug("Configuration loaded",
		"backend", cfg.Directory.Backend,
		"domain", cfg.Directory.Domain,
		"urls", cfg.Directory.URLs,
		"upn_suffix", cfg.Identity.UPNSuffix,
		"netbios_domain", cfg.Identity.NetBIOSDomain,
		"metrics", cfg.Metrics.Enabled,
	)

	return &app{
		config:   cfg,
		logger:   logger,
		metrics:  recorder,
		resolver: resolver,
		close:    closeDirectory,
	}, nil
}

// newDirectory creates the configured backend and a function releasing its resources.
func newDirectory(ctx context.Context, cfg *config.Config, logger hclog.Logger) (identity.Directory, func() error, error) {
	switch cfg.Directory.Backend {
	case config.BackendKerberos:
		k, err := ldap.NewKerberosAuthenticator(cfg.LDAPConfig(), logger)
		if err != nil {
			return nil, nil, err
		}
		return k, func() error { return nil }, nil
	default:
		a, err := ldap.NewAuthenticator(ctx, cfg.LDAPConfig(), logger)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	}
}
