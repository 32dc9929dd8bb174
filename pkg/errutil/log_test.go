// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package errutil_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsnguard/dsnguard/pkg/errutil"
)

func TestCode(t *testing.T) {
	assert.Equal(t, "DSN_MISMATCH", errutil.Code(oops.Code("DSN_MISMATCH").Errorf("x")))
	assert.Equal(t, "", errutil.Code(oops.Errorf("no code")))
	assert.Equal(t, "", errutil.Code(errors.New("plain")))
	assert.Equal(t, "", errutil.Code(nil))
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("REMOTE_DSN_REJECTED").
		With("host", "db.example.com").
		Hint("set ALLOW_REMOTE_DSN=1").
		Errorf("remote DSN detected")

	errutil.LogError(logger, "resolve failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "resolve failed", logEntry["msg"])
	assert.Equal(t, "REMOTE_DSN_REJECTED", logEntry["code"])
	assert.Equal(t, "set ALLOW_REMOTE_DSN=1", logEntry["hint"])

	ctx, ok := logEntry["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "db.example.com", ctx["host"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "resolve failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}
