// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsnguard/dsnguard/internal/probe"
	"github.com/dsnguard/dsnguard/pkg/errutil"
)

// mockConnector returns a connector backed by pgxmock that answers one
// session inspection.
func mockConnector(t *testing.T, database, appName string) (probe.Connector, *string) {
	t.Helper()
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT current_database`).
		WillReturnRows(pgxmock.NewRows([]string{"db", "user", "app", "version", "num"}).
			AddRow(database, "app_user", appName, "16.2", 160002))
	mock.ExpectClose()
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })

	var dsn string
	return func(_ context.Context, got string) (probe.Conn, error) {
		dsn = got
		return mock, nil
	}, &dsn
}

func TestCheck_OK(t *testing.T) {
	connect, gotDSN := mockConnector(t, "app", "billing:check")
	deps := &Deps{
		Lookup:    envDeps(map[string]string{"DATABASE_URL": "postgresql://localhost/app"}).Lookup,
		Connector: connect,
	}

	out, _, err := execute(t, deps, "check", "--app", "billing", "--role", "check", "--min-server-version", ">= 14")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: app as app_user (billing:check, server 16.2")
	assert.Contains(t, *gotDSN, "application_name=billing%3Acheck")
}

func TestCheck_JSON(t *testing.T) {
	connect, _ := mockConnector(t, "app", "x")
	deps := &Deps{
		Lookup:    envDeps(map[string]string{"DATABASE_URL": "postgresql://u:pw@localhost/app"}).Lookup,
		Connector: connect,
	}

	out, _, err := execute(t, deps, "check", "-o", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, ":pw@")

	var got checkResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "app", got.Decision.Database)
	assert.Equal(t, "app", got.Server.Database)
	assert.Equal(t, 160002, got.Server.ServerVersionNum)
}

func TestCheck_DatabaseMismatch(t *testing.T) {
	connect, _ := mockConnector(t, "postgres", "x")
	deps := &Deps{
		Lookup:    envDeps(map[string]string{"DATABASE_URL": "postgresql://localhost/app"}).Lookup,
		Connector: connect,
	}

	_, _, err := execute(t, deps, "check")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_MISMATCH")
	assert.Equal(t, exitDatabase, exitCode(err))
}

func TestCheck_ConnectFailure(t *testing.T) {
	deps := &Deps{
		Lookup: envDeps(map[string]string{"DATABASE_URL": "postgresql://localhost/app"}).Lookup,
		Connector: func(context.Context, string) (probe.Conn, error) {
			return nil, probe.Classify(&pgconn.PgError{Code: pgerrcode.InvalidCatalogName})
		},
	}

	_, _, err := execute(t, deps, "check")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_NOT_FOUND")
	assert.Equal(t, exitDatabase, exitCode(err))
}

func TestCheck_ResolutionFailsBeforeConnecting(t *testing.T) {
	deps := &Deps{
		Lookup: envDeps(map[string]string{"DATABASE_URL": "postgresql://db.example.com/app"}).Lookup,
		Connector: func(context.Context, string) (probe.Conn, error) {
			t.Fatal("connector must not be called")
			return nil, nil
		},
	}

	_, _, err := execute(t, deps, "check")
	require.Error(t, err)
	assert.Equal(t, exitResolution, exitCode(err))
}
