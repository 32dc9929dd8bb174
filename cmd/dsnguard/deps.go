// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package main

import (
	"github.com/dsnguard/dsnguard/internal/dsn"
	"github.com/dsnguard/dsnguard/internal/probe"
)

// Deps contains injectable dependencies for the CLI.
// All fields with nil values will use their default implementations.
type Deps struct {
	// Lookup reads environment variables.
	// Default: os.LookupEnv
	Lookup dsn.LookupFunc

	// Connector opens a database connection for the check command.
	// Default: probe.Connect
	Connector probe.Connector
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.Connector == nil {
		out.Connector = probe.Connect
	}
	return &out
}
