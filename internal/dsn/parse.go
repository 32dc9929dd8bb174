// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package dsn

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Format identifies the textual shape of a DSN.
type Format int

// DSN formats.
const (
	FormatUnknown  Format = iota
	FormatURL             // postgres://user@host:5432/db?sslmode=disable
	FormatKeyValue        // host=localhost dbname=db sslmode=disable
)

// Param is a single connection parameter in the order it appears in a DSN.
type Param struct {
	Key   string
	Value string
}

// Parsed is the structured view of a DSN. It is derived from the raw string
// on demand and never mutated to produce a new DSN.
type Parsed struct {
	Format Format
	Scheme string
	User   string
	// Host is the host, or comma-separated host list, without ports.
	Host string
	// HostAddr is libpq's hostaddr: numeric addresses dialed instead of Host.
	HostAddr string
	Port     uint16
	Database string
	Params   []Param

	password string
}

// Target identifies the database a DSN points at, for comparing two DSNs.
type Target struct {
	Host     string `json:"host" yaml:"host"`
	Database string `json:"database" yaml:"database"`
}

// String renders the target as host/database.
func (t Target) String() string {
	host := t.Host
	if host == "" {
		host = "<default>"
	}
	return host + "/" + t.Database
}

// Target returns the (host, database) pair of the DSN. The host is the
// address actually dialed, so hostaddr wins over host. Hosts are lowercased.
func (p Parsed) Target() Target {
	return Target{Host: strings.ToLower(p.DialHost()), Database: p.Database}
}

// DialHost returns the host list a driver connects to: HostAddr when set,
// otherwise Host.
func (p Parsed) DialHost() string {
	if p.HostAddr != "" {
		return p.HostAddr
	}
	return p.Host
}

// Param returns the value of the first parameter named key.
func (p Parsed) Param(key string) (string, bool) {
	for _, kv := range p.Params {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// HasPassword reports whether the DSN carries a password in any position.
func (p Parsed) HasPassword() bool {
	if p.password != "" {
		return true
	}
	_, ok := p.Param("password")
	return ok
}

// Parse parses a PostgreSQL DSN in URL or keyword/value form.
// It returns false for input it cannot interpret.
func Parse(raw string) (Parsed, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Parsed{}, false
	}
	if strings.Contains(raw, "://") {
		return parseURL(raw)
	}
	return parseKeyValue(raw)
}

func isPostgresScheme(scheme string) bool {
	return scheme == "postgres" || scheme == "postgresql"
}

func parseURL(raw string) (Parsed, bool) {
	u, err := url.Parse(raw)
	if err != nil || !isPostgresScheme(u.Scheme) {
		return Parsed{}, false
	}

	params, ok := splitQuery(u.RawQuery)
	if !ok {
		return Parsed{}, false
	}

	hosts, port := splitHosts(u.Host)

	p := Parsed{
		Format:   FormatURL,
		Scheme:   u.Scheme,
		Host:     hosts,
		Database: strings.TrimPrefix(u.Path, "/"),
		Params:   params,
	}
	if u.User != nil {
		p.User = u.User.Username()
		p.password, _ = u.User.Password()
	}
	if port != "" {
		if p.Port, ok = parsePort(port); !ok {
			return Parsed{}, false
		}
	}

	// Query parameters override the authority and path, last one winning,
	// the same way libpq and pgconn read them.
	for _, kv := range params {
		switch kv.Key {
		case "host":
			p.Host = kv.Value
		case "hostaddr":
			p.HostAddr = kv.Value
		case "dbname":
			p.Database = kv.Value
		case "user":
			p.User = kv.Value
		case "password":
			p.password = kv.Value
		case "port":
			if p.Port, ok = parsePort(kv.Value); !ok {
				return Parsed{}, false
			}
		}
	}

	return p, true
}

// splitHosts strips the port from every entry of a comma-separated URL
// authority ("a:5432,b:5433") and returns the hosts joined by commas plus the
// first port seen.
func splitHosts(authority string) (hosts, port string) {
	if authority == "" {
		return "", ""
	}
	parts := strings.Split(authority, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		h, pt, err := net.SplitHostPort(part)
		if err != nil {
			h = strings.TrimSuffix(strings.TrimPrefix(part, "["), "]")
		} else if port == "" {
			port = pt
		}
		names = append(names, h)
	}
	return strings.Join(names, ","), port
}

// parsePort reads a port or a comma-separated port list, returning the first.
func parsePort(s string) (uint16, bool) {
	first, _, _ := strings.Cut(s, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(first, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

// splitQuery splits a raw query string into ordered, unescaped parameters.
// url.ParseQuery is not used because it loses ordering.
func splitQuery(rawQuery string) ([]Param, bool) {
	if rawQuery == "" {
		return nil, true
	}
	var params []Param
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, false
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, false
		}
		params = append(params, Param{Key: k, Value: v})
	}
	return params, true
}
