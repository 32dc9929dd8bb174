// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package dsn

import (
	"net/url"
	"strings"
)

const (
	redactedMask = "xxxxx"
	unparsable   = "<unparsable>"
)

// Redact returns raw with every password masked. Input that cannot be parsed
// is replaced entirely, since there is no way to tell where its secret is.
func Redact(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	p, ok := Parse(raw)
	if !ok {
		return unparsable
	}

	switch p.Format {
	case FormatURL:
		u, err := url.Parse(raw)
		if err != nil {
			return unparsable
		}
		if _, ok := p.Param("password"); ok {
			parts := make([]string, 0, len(p.Params))
			for _, kv := range maskPassword(p.Params) {
				parts = append(parts, url.QueryEscape(kv.Key)+"="+url.QueryEscape(kv.Value))
			}
			u.RawQuery = strings.Join(parts, "&")
		}
		return u.Redacted()
	case FormatKeyValue:
		return renderKeyValue(maskPassword(p.Params))
	default:
		return unparsable
	}
}

func maskPassword(params []Param) []Param {
	out := make([]Param, len(params))
	for i, kv := range params {
		if kv.Key == "password" {
			kv.Value = redactedMask
		}
		out[i] = kv
	}
	return out
}
