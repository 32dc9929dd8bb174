// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package dsn

import (
	"os"
	"strings"
)

// Environment variables consulted by default.
const (
	DefaultCanonicalVar   = "DATABASE_URL"
	DefaultFallbackVar    = "POSTGRES_DSN"
	DefaultAllowRemoteVar = "ALLOW_REMOTE_DSN"
)

// LookupFunc reads a single environment variable. os.LookupEnv is the
// production implementation; tests inject maps.
type LookupFunc func(key string) (string, bool)

// MapLookup returns a LookupFunc backed by m.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Inputs holds the two candidate DSNs as read from the environment.
// Empty means unset.
type Inputs struct {
	Canonical string
	Fallback  string
}

// Collect reads both DSN variables. Values are trimmed and empty values are
// treated as unset. Nothing is cached.
func Collect(lookup LookupFunc, canonicalVar, fallbackVar string) Inputs {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return Inputs{
		Canonical: readTrimmed(lookup, canonicalVar),
		Fallback:  readTrimmed(lookup, fallbackVar),
	}
}

func readTrimmed(lookup LookupFunc, key string) string {
	if key == "" {
		return ""
	}
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

// truthy reports whether an environment flag value means "on".
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
