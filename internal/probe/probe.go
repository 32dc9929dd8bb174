// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

// Package probe connects to a resolved DSN and reports what the server says
// about the session.
package probe

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// Conn is the subset of *pgx.Conn a probe needs.
type Conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Connector opens a connection for a DSN.
type Connector func(ctx context.Context, dsn string) (Conn, error)

// Connect opens a single pgx connection. Connection failures are classified
// with Classify.
func Connect(ctx context.Context, dsn string) (Conn, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_DSN_INVALID").In("probe").Wrapf(err, "parse DSN")
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, Classify(err)
	}
	return conn, nil
}

// Classify maps a connection error to a coded error.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		b := oops.In("probe").With("sqlstate", pgErr.Code)
		switch pgErr.Code {
		case pgerrcode.InvalidCatalogName:
			return b.Code("DB_NOT_FOUND").Wrapf(err, "database does not exist")
		case pgerrcode.InvalidPassword, pgerrcode.InvalidAuthorizationSpecification:
			return b.Code("AUTH_FAILED").Wrapf(err, "authentication failed")
		case pgerrcode.TooManyConnections, pgerrcode.CannotConnectNow:
			return b.Code("DB_UNAVAILABLE").Wrapf(err, "server not accepting connections")
		}
		return b.Code("DB_CONNECT_FAILED").Wrapf(err, "connect")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return oops.Code("DB_TIMEOUT").In("probe").Wrapf(err, "connect")
	}
	return oops.Code("DB_CONNECT_FAILED").In("probe").Wrapf(err, "connect")
}

const inspectQuery = `SELECT current_database(), current_user,
	current_setting('application_name'),
	current_setting('server_version'),
	current_setting('server_version_num')::int`

// Report describes the session a DSN produced.
type Report struct {
	Database         string        `json:"database" yaml:"database"`
	User             string        `json:"user" yaml:"user"`
	ApplicationName  string        `json:"application_name" yaml:"application_name"`
	ServerVersion    string        `json:"server_version" yaml:"server_version"`
	ServerVersionNum int           `json:"server_version_num" yaml:"server_version_num"`
	Latency          time.Duration `json:"latency" yaml:"latency"`
}

// Version converts server_version_num into a semantic version: 160002 is
// 16.2.0 and, before release 10, 90624 is 9.6.24.
func (r Report) Version() *semver.Version {
	n := uint64(max(r.ServerVersionNum, 0)) //nolint:gosec // clamped above
	if n >= 100000 {
		return semver.New(n/10000, n%10000, 0, "", "")
	}
	return semver.New(n/10000, (n/100)%100, n%100, "", "")
}

// Inspect queries the session details over conn.
func Inspect(ctx context.Context, conn Conn) (Report, error) {
	var r Report
	start := time.Now()
	err := conn.QueryRow(ctx, inspectQuery).Scan(
		&r.Database,
		&r.User,
		&r.ApplicationName,
		&r.ServerVersion,
		&r.ServerVersionNum,
	)
	if err != nil {
		return Report{}, oops.Code("DB_QUERY_FAILED").In("probe").Wrapf(err, "inspect session")
	}
	r.Latency = time.Since(start)
	return r, nil
}

// CheckServerVersion verifies the server satisfies constraint, for example
// ">= 14". An empty constraint always passes.
func CheckServerVersion(r Report, constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return oops.Code("CONFIG_INVALID").
			In("probe").
			With("constraint", constraint).
			Wrapf(err, "parse server version constraint")
	}
	v := r.Version()
	if !c.Check(v) {
		return oops.Code("SERVER_VERSION_UNSUPPORTED").
			In("probe").
			With("server_version", v.String()).
			With("constraint", constraint).
			Errorf("server version %s does not satisfy %q", v, constraint)
	}
	return nil
}

// Expect lists what the probed session must look like. Empty fields are
// not checked.
type Expect struct {
	Database         string
	MinServerVersion string
}

// Check connects with dsn, inspects the session and verifies it against
// want. The connection is always closed.
func Check(ctx context.Context, connect Connector, dsn string, want Expect) (report Report, err error) {
	if connect == nil {
		connect = Connect
	}
	conn, err := connect(ctx, dsn)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if closeErr := conn.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = oops.Code("DB_CLOSE_FAILED").In("probe").Wrap(closeErr)
		}
	}()

	report, err = Inspect(ctx, conn)
	if err != nil {
		return Report{}, err
	}
	if want.Database != "" && report.Database != want.Database {
		return report, oops.Code("DB_MISMATCH").
			In("probe").
			With("expected", want.Database).
			With("actual", report.Database).
			Errorf("connected to database %q, expected %q", report.Database, want.Database)
	}
	if err := CheckServerVersion(report, want.MinServerVersion); err != nil {
		return report, err
	}
	return report, nil
}
