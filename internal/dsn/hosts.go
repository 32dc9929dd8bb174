// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package dsn

import (
	"net"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// DefaultLocalHosts are the host name patterns treated as local when no others
// are configured. Patterns use gobwas/glob syntax without separators, so '*'
// matches any run of characters including dots. Loopback IP literals
// (127.0.0.0/8, ::1) are always local and need no pattern.
var DefaultLocalHosts = []string{
	"localhost",
	"*.localhost",
	"localhost.localdomain",
}

// HostMatcher decides whether a DSN host refers to the local machine.
type HostMatcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewHostMatcher compiles patterns. An empty list falls back to
// DefaultLocalHosts.
func NewHostMatcher(patterns []string) (*HostMatcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultLocalHosts
	}
	m := &HostMatcher{patterns: patterns}
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.ToLower(strings.TrimSpace(pattern)))
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").
				In("dsn").
				With("pattern", pattern).
				Wrapf(err, "invalid local host pattern")
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Patterns returns the patterns the matcher was built from.
func (m *HostMatcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// IsLocal reports whether host is local. An empty host means libpq's default
// unix socket, and absolute paths (or Linux abstract sockets, '@name') are
// socket directories; both are local. A comma-separated host list is local
// only when every entry is.
func (m *HostMatcher) IsLocal(host string) bool {
	host = strings.TrimSpace(host)
	if host == "" {
		return true
	}
	for _, h := range strings.Split(host, ",") {
		if !m.isLocalSingle(h) {
			return false
		}
	}
	return true
}

func (m *HostMatcher) isLocalSingle(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return false
	}
	if strings.HasPrefix(host, "/") || strings.HasPrefix(host, "@") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	for _, g := range m.globs {
		if g.Match(host) {
			return true
		}
	}
	return false
}
