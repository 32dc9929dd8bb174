// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

// Package main is the entry point for the dsnguard CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dsnguard/dsnguard/pkg/errutil"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := NewRootCmd(nil)
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		errutil.LogError(slog.Default(), "dsnguard failed", err)
		os.Exit(exitCode(err))
	}
}
