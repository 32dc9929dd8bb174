// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package dsn

import (
	"github.com/samber/oops"

	"github.com/dsnguard/dsnguard/pkg/errutil"
)

// Kind classifies the fatal resolution failures. It is carried as the oops
// error code, so callers can switch on it instead of matching messages.
type Kind string

// Resolution failure kinds.
const (
	KindNoDSNConfigured   Kind = "NO_DSN_CONFIGURED"
	KindDSNMismatch       Kind = "DSN_MISMATCH"
	KindRemoteDSNRejected Kind = "REMOTE_DSN_REJECTED"
)

// KindOf extracts the resolution failure kind from err.
func KindOf(err error) (Kind, bool) {
	switch k := Kind(errutil.Code(err)); k {
	case KindNoDSNConfigured, KindDSNMismatch, KindRemoteDSNRejected:
		return k, true
	default:
		return "", false
	}
}

// IsKind reports whether err is a resolution failure of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func errNoDSNConfigured(canonicalVar, fallbackVar string) error {
	return oops.Code(string(KindNoDSNConfigured)).
		In("dsn").
		With("canonical_var", canonicalVar).
		With("fallback_var", fallbackVar).
		Hint("export " + canonicalVar + " with a postgres:// connection string").
		Errorf("no database DSN configured: set %s (preferred) or %s", canonicalVar, fallbackVar)
}

func errDSNMismatch(canonicalVar, fallbackVar string, primary, fallback Target) error {
	return oops.Code(string(KindDSNMismatch)).
		In("dsn").
		With("canonical_var", canonicalVar).
		With("fallback_var", fallbackVar).
		With("primary_host", primary.Host).
		With("primary_database", primary.Database).
		With("fallback_host", fallback.Host).
		With("fallback_database", fallback.Database).
		Hint("unset " + fallbackVar + " or point both variables at the same database").
		Errorf("%s and %s point at different databases: %s=%s, %s=%s",
			canonicalVar, fallbackVar,
			canonicalVar, primary, fallbackVar, fallback)
}

func errRemoteDSNRejected(variable, host, allowRemoteVar string) error {
	return oops.Code(string(KindRemoteDSNRejected)).
		In("dsn").
		With("variable", variable).
		With("host", host).
		With("allow_remote_var", allowRemoteVar).
		Hint("set " + allowRemoteVar + "=1 if connecting to a remote database is intended").
		Errorf("remote DSN detected: %s points at non-local host %q; set %s=1 to allow remote databases",
			variable, host, allowRemoteVar)
}
