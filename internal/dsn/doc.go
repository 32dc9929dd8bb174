// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

// Package dsn resolves which PostgreSQL connection string a process should use.
//
// Two environment variables are consulted: a canonical one (DATABASE_URL)
// and a legacy fallback (POSTGRES_DSN). The canonical value always wins.
// When both are set and name different (host, database) pairs, or when the
// chosen host is not local and ALLOW_REMOTE_DSN is not set, strict resolution
// fails with a typed error (see Kind) and lenient resolution logs a warning.
//
// The chosen DSN is tagged with application_name, sslmode and
// target_session_attrs defaults, never overriding values already present, and
// each call hands one redacted audit.Record to the configured sink.
//
//	dsn, err := dsn.ResolveDSN(ctx, dsn.Options{Strict: true, App: "ingest", Role: "worker"})
//	if dsn.IsKind(err, dsn.KindRemoteDSNRejected) {
//	    // ...
//	}
package dsn
