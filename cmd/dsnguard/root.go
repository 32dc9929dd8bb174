// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package main

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/dsnguard/dsnguard/internal/config"
	"github.com/dsnguard/dsnguard/internal/dsn"
	"github.com/dsnguard/dsnguard/internal/logging"
	"github.com/dsnguard/dsnguard/internal/observability"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	deps       *Deps
	configFile string
	cfg        config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *observability.Metrics
}

// NewRootCmd creates the root command for the dsnguard CLI.
// If deps is nil, default implementations are used.
func NewRootCmd(deps *Deps) *cobra.Command {
	a := &app{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "dsnguard",
		Short: "Resolve and audit the database DSN a process will use",
		Long: `dsnguard picks the PostgreSQL connection string for a process from
DATABASE_URL (or POSTGRES_DSN), refuses conflicting or remote DSNs,
tags the connection with an application name, and records every
decision in a local audit file.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/dsnguard/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newResolveCmd(a))
	cmd.AddCommand(newCheckCmd(a))
	cmd.AddCommand(newAuditCmd(a))

	return cmd
}

// setup loads configuration and wires logging and metrics.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.SetDefault("dsnguard", version, cfg.Log.Format, cfg.LogLevel(), cmd.ErrOrStderr())
	a.registry = prometheus.NewRegistry()
	a.metrics = observability.NewMetrics(a.registry)
	return nil
}

func (a *app) newResolver() (*dsn.Resolver, error) {
	r, err := dsn.NewResolver(a.cfg.ResolverConfig(),
		dsn.WithLookup(a.deps.Lookup),
		dsn.WithSink(a.cfg.AuditSink(a.logger, a.metrics)),
		dsn.WithLogger(a.logger),
		dsn.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, oops.In("cli").Wrapf(err, "create resolver")
	}
	return r, nil
}

// writeMetrics dumps the registry when a textfile path was given.
func (a *app) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	return observability.WriteTextfile(a.registry, path)
}
