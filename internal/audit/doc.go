// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

// Package audit records DSN resolution decisions.
//
// # Overview
//
// Every resolution produces one Record. A Sink receives it and must never
// fail observably: the audit trail is diagnostic, so a missing directory or a
// read-only filesystem is logged at debug level and counted, nothing more.
//
// # Modes
//
//   - ModeAppend: one JSON line per record at metrics/dsn_audit.jsonl
//   - ModeSnapshot: only the latest record at dsn_audit.json, replaced atomically
//   - ModeOff: nothing is written
//
// Appends from several processes may interleave. Each record is written with
// a single write call, so lines stay whole in practice, but no locking across
// processes is attempted.
//
// # Metrics
//
//   - dsnguard_audit_failures_total{reason}: records that could not be written
//
// # Schema
//
// GenerateSchema emits the JSON Schema for Record and Verify checks an audit
// file against it. The resolver never reads the audit file back.
//
// # Example Usage
//
//	sink := audit.NewFileSink("", audit.ModeAppend,
//	    audit.WithLogger(logger),
//	    audit.WithMetrics(metrics),
//	)
//	sink.Record(ctx, audit.Record{Src: "DATABASE_URL", Role: "ingest"})
package audit
