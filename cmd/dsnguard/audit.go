// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package main

import (
	"io"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/dsnguard/dsnguard/internal/audit"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the DSN audit trail",
	}

	cmd.AddCommand(newAuditSchemaCmd())
	cmd.AddCommand(newAuditVerifyCmd(a))

	return cmd
}

func newAuditSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for audit records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := audit.GenerateSchema()
			if err != nil {
				return err
			}
			return printf(cmd.OutOrStdout(), "%s\n", schema)
		},
	}
}

// verifyResult is the machine-readable output of audit verify.
type verifyResult struct {
	Path    string   `json:"path" yaml:"path"`
	Valid   int      `json:"valid" yaml:"valid"`
	Invalid []string `json:"invalid,omitempty" yaml:"invalid,omitempty"`
}

func newAuditVerifyCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Validate every record in an audit file",
		Long: `Validate each line of the audit file against the audit record schema.
The file defaults to the configured audit path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			path := a.auditPath()
			if len(args) == 1 {
				path = args[0]
			}
			return runAuditVerify(cmd.OutOrStdout(), path, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatText, "output format (text, json, yaml)")

	return cmd
}

// auditPath is the file the configured sink writes to.
func (a *app) auditPath() string {
	if a.cfg.Audit.Path != "" {
		return a.cfg.Audit.Path
	}
	if a.cfg.Audit.Mode == string(audit.ModeSnapshot) {
		return audit.DefaultSnapshotPath
	}
	return audit.DefaultAppendPath
}

func runAuditVerify(w io.Writer, path, output string) error {
	f, err := os.Open(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return oops.Code("AUDIT_OPEN").With("path", path).Wrapf(err, "open audit file")
	}
	defer func() { _ = f.Close() }()

	report, err := audit.Verify(f)
	if err != nil {
		return err
	}

	result := verifyResult{Path: path, Valid: report.Valid}
	for _, le := range report.Invalid {
		result.Invalid = append(result.Invalid, le.Error())
	}

	err = render(w, output, result, func(w io.Writer) error {
		if err := printf(w, "%s: %d valid, %d invalid\n", path, report.Valid, len(report.Invalid)); err != nil {
			return err
		}
		for _, line := range result.Invalid {
			if err := printf(w, "  %s\n", line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !report.OK() {
		return oops.Code("AUDIT_INVALID").
			With("path", path).
			With("invalid", len(report.Invalid)).
			Errorf("%d invalid audit records in %s", len(report.Invalid), path)
	}
	return nil
}
