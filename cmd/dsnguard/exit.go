// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package main

import (
	"github.com/dsnguard/dsnguard/internal/dsn"
	"github.com/dsnguard/dsnguard/pkg/errutil"
)

// Exit codes.
const (
	exitFailure    = 1 // usage, configuration or I/O problem
	exitResolution = 2 // no DSN, mismatch or remote DSN refused
	exitDatabase   = 3 // the database could not be reached or did not match
	exitAudit      = 4 // audit file failed verification
)

func exitCode(err error) int {
	if _, ok := dsn.KindOf(err); ok {
		return exitResolution
	}
	switch errutil.Code(err) {
	case "DB_DSN_INVALID", "DB_NOT_FOUND", "AUTH_FAILED", "DB_UNAVAILABLE",
		"DB_CONNECT_FAILED", "DB_TIMEOUT", "DB_QUERY_FAILED", "DB_MISMATCH",
		"DB_CLOSE_FAILED", "SERVER_VERSION_UNSUPPORTED":
		return exitDatabase
	case "AUDIT_INVALID":
		return exitAudit
	default:
		return exitFailure
	}
}
