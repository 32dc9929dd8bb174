// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/dsnguard/dsnguard/internal/observability"
	"github.com/dsnguard/dsnguard/pkg/errutil"
)

// Mode controls how FileSink persists records.
type Mode string

// Audit file modes.
const (
	ModeAppend   Mode = "append"   // one JSON line per record, never rewritten
	ModeSnapshot Mode = "snapshot" // only the latest record, replaced atomically
	ModeOff      Mode = "off"      // nothing is written
)

// Default audit file locations, relative to the working directory.
const (
	DefaultAppendPath   = "metrics/dsn_audit.jsonl"
	DefaultSnapshotPath = "dsn_audit.json"
)

// ParseMode validates a mode name. Empty means ModeAppend.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAppend:
		return ModeAppend, nil
	case ModeSnapshot, ModeOff:
		return Mode(s), nil
	default:
		return "", oops.Code("CONFIG_INVALID").
			In("audit").
			With("mode", s).
			Errorf("audit mode must be one of append, snapshot, off; got %q", s)
	}
}

// Sink receives audit records. Record must never fail observably: a broken
// audit trail is a diagnostic problem, not a reason to stop the caller.
type Sink interface {
	Record(ctx context.Context, rec Record)
}

// Discard is a Sink that drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, Record) {}

// FileSink writes records to a local file.
type FileSink struct {
	path    string
	mode    Mode
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
	mu      sync.Mutex
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithLogger sets the logger used to report write failures.
func WithLogger(l *slog.Logger) FileSinkOption {
	return func(s *FileSink) { s.logger = l }
}

// WithMetrics sets the metrics that count write failures.
func WithMetrics(m *observability.Metrics) FileSinkOption {
	return func(s *FileSink) { s.metrics = m }
}

// WithClock overrides the clock used to stamp records.
func WithClock(now func() time.Time) FileSinkOption {
	return func(s *FileSink) { s.now = now }
}

// NewFileSink creates a sink writing to path. An empty path selects the
// default location for the mode.
func NewFileSink(path string, mode Mode, opts ...FileSinkOption) *FileSink {
	if mode == "" {
		mode = ModeAppend
	}
	if path == "" {
		path = DefaultAppendPath
		if mode == ModeSnapshot {
			path = DefaultSnapshotPath
		}
	}
	s := &FileSink{
		path:   path,
		mode:   mode,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string { return s.path }

// Mode returns the sink's write mode.
func (s *FileSink) Mode() Mode { return s.mode }

// Record writes rec, swallowing any error after logging and counting it.
func (s *FileSink) Record(ctx context.Context, rec Record) {
	if s.mode == ModeOff {
		return
	}
	if err := s.Write(rec); err != nil {
		s.logger.DebugContext(ctx, "audit record not written",
			"path", s.path,
			"mode", string(s.mode),
			"error", err,
		)
		s.metrics.RecordAuditFailure(failureReason(err))
	}
}

// Write persists rec and reports failures. Record is the caller-facing
// entry point; Write exists so tests can see the error.
func (s *FileSink) Write(rec Record) error {
	rec.Stamp(s.now())

	data, err := json.Marshal(rec)
	if err != nil {
		return oops.Code("AUDIT_ENCODE").With("path", s.path).Wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return oops.Code("AUDIT_MKDIR").With("path", s.path).Wrap(err)
		}
	}

	switch s.mode {
	case ModeSnapshot:
		return s.replace(data)
	default:
		return s.append(data)
	}
}

func (s *FileSink) append(data []byte) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return oops.Code("AUDIT_OPEN").With("path", s.path).Wrap(err)
	}

	// A single write keeps each line intact for readers even when several
	// processes append at once.
	if _, err := fmt.Fprintf(f, "%s\n", data); err != nil {
		_ = f.Close()
		return oops.Code("AUDIT_WRITE").With("path", s.path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("AUDIT_WRITE").With("path", s.path).Wrap(err)
	}
	return nil
}

func (s *FileSink) replace(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".dsn_audit-*.tmp")
	if err != nil {
		return oops.Code("AUDIT_OPEN").With("path", s.path).Wrap(err)
	}
	tmpName := tmp.Name()

	if _, err := fmt.Fprintf(tmp, "%s\n", data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return oops.Code("AUDIT_WRITE").With("path", s.path).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return oops.Code("AUDIT_WRITE").With("path", s.path).Wrap(err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return oops.Code("AUDIT_WRITE").With("path", s.path).Wrap(err)
	}
	return nil
}

// failureReason maps an audit error to a low-cardinality metric label.
func failureReason(err error) string {
	switch errutil.Code(err) {
	case "AUDIT_ENCODE":
		return "encode"
	case "AUDIT_MKDIR":
		return "mkdir"
	case "AUDIT_OPEN":
		return "open"
	case "AUDIT_WRITE":
		return "write"
	default:
		return "unknown"
	}
}
