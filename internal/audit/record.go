// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package audit

import (
	"os"
	"time"

	"github.com/oklog/ulid/v2"
)

// Outcome describes how a resolution call ended.
type Outcome string

// Resolution outcomes.
const (
	OutcomeOK             Outcome = "ok"
	OutcomeUnset          Outcome = "unset"
	OutcomeNoDSN          Outcome = "no_dsn"
	OutcomeMismatch       Outcome = "mismatch"
	OutcomeRemoteRejected Outcome = "remote_rejected"
)

// Record is one audit entry. The DSN is always redacted before it gets here.
type Record struct {
	ID              string    `json:"id" jsonschema:"description=ULID of the record"`
	Timestamp       time.Time `json:"ts"`
	Src             string    `json:"src" jsonschema:"description=Environment variable the DSN was read from or none"`
	Source          string    `json:"source" jsonschema:"enum=primary,enum=fallback,enum=none"`
	Role            string    `json:"role"`
	App             string    `json:"app"`
	ApplicationName string    `json:"application_name,omitempty"`
	DSN             string    `json:"dsn" jsonschema:"description=Redacted connection string"`
	Host            string    `json:"host"`
	Database        string    `json:"database"`
	Mismatch        bool      `json:"mismatch"`
	Remote          bool      `json:"remote"`
	Strict          bool      `json:"strict"`
	Outcome         Outcome   `json:"outcome" jsonschema:"enum=ok,enum=unset,enum=no_dsn,enum=mismatch,enum=remote_rejected"`
	ErrorCode       string    `json:"error_code,omitempty"`
	PID             int       `json:"pid"`
}

// Stamp fills in the ID, timestamp and PID if they are unset.
func (r *Record) Stamp(now time.Time) {
	if r.Timestamp.IsZero() {
		r.Timestamp = now.UTC()
	}
	if r.ID == "" {
		r.ID = ulid.MustNew(ulid.Timestamp(r.Timestamp), ulid.DefaultEntropy()).String()
	}
	if r.PID == 0 {
		r.PID = os.Getpid()
	}
}
