// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsnguard/dsnguard/internal/dsn"
	"github.com/dsnguard/dsnguard/internal/probe"
)

// checkConfig holds configuration for the check command.
type checkConfig struct {
	resolveConfig
	minServerVersion string
	timeout          time.Duration
}

// checkResult is the machine-readable output of check.
type checkResult struct {
	Decision dsn.Decision `json:"decision" yaml:"decision"`
	Server   probe.Report `json:"server" yaml:"server"`
}

const defaultCheckTimeout = 10 * time.Second

func newCheckCmd(a *app) *cobra.Command {
	cfg := &checkConfig{resolveConfig: resolveConfig{strict: true}}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Resolve the DSN and verify the database answers as expected",
		Long: `Resolve the DSN strictly, connect to it, and confirm the session lands
on the expected database with the expected application_name. With
--min-server-version the server version must satisfy the constraint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, a, cfg)
		},
	}

	cfg.addFlags(cmd)
	cmd.Flags().StringVar(&cfg.minServerVersion, "min-server-version", "", "semver constraint the server must satisfy, e.g. '>= 14'")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultCheckTimeout, "connection and query timeout")

	return cmd
}

func runCheck(cmd *cobra.Command, a *app, cfg *checkConfig) error {
	if err := validateFormat(cfg.output); err != nil {
		return err
	}

	r, err := a.newResolver()
	if err != nil {
		return err
	}

	d, err := r.Resolve(cmd.Context(), cfg.options())
	if err != nil {
		_ = a.writeMetrics(cfg.metricsTextfile)
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	report, err := probe.Check(ctx, a.deps.Connector, d.DSN, probe.Expect{
		Database:         d.Database,
		MinServerVersion: cfg.minServerVersion,
	})
	if metricsErr := a.writeMetrics(cfg.metricsTextfile); metricsErr != nil {
		a.logger.Warn("metrics textfile not written", "path", cfg.metricsTextfile, "error", metricsErr)
	}
	if err != nil {
		return err
	}

	if report.ApplicationName != d.ApplicationName {
		a.logger.Warn("server reports a different application_name",
			"expected", d.ApplicationName,
			"actual", report.ApplicationName,
		)
	}

	result := checkResult{Decision: d, Server: report}
	return render(cmd.OutOrStdout(), cfg.output, result, func(w io.Writer) error {
		return printf(w, "ok: %s as %s (%s, server %s, %s)\n",
			report.Database,
			report.User,
			report.ApplicationName,
			report.ServerVersion,
			report.Latency.Round(time.Millisecond),
		)
	})
}
