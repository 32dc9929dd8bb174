// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/dsnguard/dsnguard/internal/dsn"
)

// resolveConfig holds the per-call flags shared by resolve and check.
type resolveConfig struct {
	role            string
	app             string
	strict          bool
	allowRemote     bool
	output          string
	metricsTextfile string
}

func (rc *resolveConfig) options() dsn.Options {
	return dsn.Options{
		Strict:      rc.strict,
		Role:        rc.role,
		App:         rc.app,
		AllowRemote: rc.allowRemote,
	}
}

func (rc *resolveConfig) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&rc.role, "role", "", "role tag for application_name (app:role)")
	cmd.Flags().StringVar(&rc.app, "app", "", "application tag (default: defaults.app from config)")
	cmd.Flags().BoolVar(&rc.allowRemote, "allow-remote", false, "permit a non-local database host")
	cmd.Flags().StringVarP(&rc.output, "output", "o", formatText, "output format (text, json, yaml)")
	cmd.Flags().StringVar(&rc.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
}

func newResolveCmd(a *app) *cobra.Command {
	rc := &resolveConfig{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the DSN this process should use",
		Long: `Resolve the DSN from the environment, add application_name, sslmode
and target_session_attrs when missing, and print it. The text output is
the full connection string, suitable for command substitution; json and
yaml print the decision with the password redacted.

Every run appends one record to the audit file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResolve(cmd, a, rc)
		},
	}

	rc.addFlags(cmd)
	cmd.Flags().BoolVar(&rc.strict, "strict", true, "fail on missing, conflicting or remote DSNs")

	return cmd
}

func runResolve(cmd *cobra.Command, a *app, rc *resolveConfig) error {
	if err := validateFormat(rc.output); err != nil {
		return err
	}

	r, err := a.newResolver()
	if err != nil {
		return err
	}

	d, resolveErr := r.Resolve(cmd.Context(), rc.options())
	if err := a.writeMetrics(rc.metricsTextfile); err != nil {
		a.logger.Warn("metrics textfile not written", "path", rc.metricsTextfile, "error", err)
	}
	if resolveErr != nil {
		return resolveErr
	}

	return render(cmd.OutOrStdout(), rc.output, d, func(w io.Writer) error {
		if !d.Configured() {
			return nil
		}
		return printf(w, "%s\n", d.DSN)
	})
}
