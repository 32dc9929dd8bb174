// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package dsn

import (
	"net/url"
	"strings"
)

// Connection parameters set by canonicalization.
const (
	ParamApplicationName    = "application_name"
	ParamSSLMode            = "sslmode"
	ParamTargetSessionAttrs = "target_session_attrs"
)

// ApplicationName builds the application_name tag from app and role.
// Empty parts are dropped, so ("svc", "") yields "svc".
func ApplicationName(app, role string) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{strings.TrimSpace(app), strings.TrimSpace(role)} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ":")
}

// Canonicalize merges defaults into raw. Parameters already present in raw
// are left untouched, defaults with an empty value are skipped, and the
// caller's own text is preserved as written. Applying Canonicalize to its own
// output with the same defaults returns it unchanged.
//
// Input that does not parse as a DSN is returned as is.
func Canonicalize(raw string, defaults []Param) string {
	raw = strings.TrimSpace(raw)
	p, ok := Parse(raw)
	if !ok {
		return raw
	}

	var missing []Param
	for _, d := range defaults {
		if d.Value == "" {
			continue
		}
		if _, present := p.Param(d.Key); present || hasParam(missing, d.Key) {
			continue
		}
		missing = append(missing, d)
	}
	if len(missing) == 0 {
		return raw
	}

	switch p.Format {
	case FormatURL:
		return appendURLParams(raw, missing)
	case FormatKeyValue:
		return raw + " " + renderKeyValue(missing)
	default:
		return raw
	}
}

func hasParam(params []Param, key string) bool {
	for _, p := range params {
		if p.Key == key {
			return true
		}
	}
	return false
}

func appendURLParams(raw string, params []Param) string {
	base, fragment, hasFragment := strings.Cut(raw, "#")

	encoded := make([]string, 0, len(params))
	for _, p := range params {
		encoded = append(encoded, url.QueryEscape(p.Key)+"="+url.QueryEscape(p.Value))
	}
	extra := strings.Join(encoded, "&")

	switch {
	case !strings.Contains(base, "?"):
		base += "?" + extra
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		base += extra
	default:
		base += "&" + extra
	}

	if hasFragment {
		return base + "#" + fragment
	}
	return base
}
