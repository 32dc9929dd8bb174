// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package dsn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsnguard/dsnguard/pkg/errutil"
)

func TestHostMatcher_Defaults(t *testing.T) {
	m, err := NewHostMatcher(nil)
	require.NoError(t, err)

	tests := []struct {
		host  string
		local bool
	}{
		{"", true},
		{"localhost", true},
		{"LOCALHOST", true},
		{"api.localhost", true},
		{"localhost.localdomain", true},
		{"127.0.0.1", true},
		{"127.1.2.3", true},
		{"::1", true},
		{"[::1]", true},
		{"/var/run/postgresql", true},
		{"/tmp", true},
		{"@abstract", true},
		{"localhost,127.0.0.1", true},
		{"remote.example.com", false},
		{"prod", false},
		{"10.0.0.5", false},
		{"127.evil.example.com", false},
		{"localhost.evil.example.com", false},
		{"localhost,db.example.com", false},
		{"localhost,", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.local, m.IsLocal(tt.host), "host %q", tt.host)
	}
}

func TestHostMatcher_CustomPatterns(t *testing.T) {
	m, err := NewHostMatcher([]string{"db", "*.dev.internal", "10.0.0.*"})
	require.NoError(t, err)

	assert.True(t, m.IsLocal("db"))
	assert.True(t, m.IsLocal("pg.dev.internal"))
	assert.True(t, m.IsLocal("10.0.0.5"))
	assert.True(t, m.IsLocal("127.0.0.1"), "loopback literals are always local")
	assert.False(t, m.IsLocal("localhost"), "custom patterns replace the defaults")
	assert.Equal(t, []string{"db", "*.dev.internal", "10.0.0.*"}, m.Patterns())
}

func TestHostMatcher_InvalidPattern(t *testing.T) {
	_, err := NewHostMatcher([]string{"[unclosed"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "pattern", "[unclosed")
}
