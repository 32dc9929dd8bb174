// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package dsn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// kvLexer tokenizes libpq keyword/value connection strings. A keyword and its
// '=' form one Key token, after which a single value is read: single-quoted,
// or a bare run of non-space characters that may itself contain '='
// (options=-csearch_path=app). Backslash escapes any character.
var kvLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "whitespace", Pattern: `\s+`},
		{Name: "Key", Pattern: `(?:[^\s='\\]|\\.)+\s*=`, Action: lexer.Push("Value")},
	},
	"Value": {
		{Name: "whitespace", Pattern: `\s+`},
		{Name: "Quoted", Pattern: `'(?:[^'\\]|\\.)*'`, Action: lexer.Pop()},
		{Name: "Word", Pattern: `(?:[^\s'\\]|\\.)+`, Action: lexer.Pop()},
	},
})

// kvConnString is the grammar root: zero or more key=value pairs.
type kvConnString struct {
	Pairs []*kvPair `parser:"@@*"`
}

// kvPair matches: Key ( Quoted | Word )
//
// Empty values must be quoted (host=''). As in libpq, whitespace after '='
// is skipped, so "host= dbname=app" sets host to "dbname=app".
type kvPair struct {
	Key    string `parser:"@Key"`
	Quoted string `parser:"( @Quoted"`
	Word   string `parser:"| @Word )"`
}

var kvParser *participle.Parser[kvConnString]

func init() {
	var err error
	kvParser, err = participle.Build[kvConnString](
		participle.Lexer(kvLexer),
		participle.Elide("whitespace"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to build keyword/value DSN parser: %v", err))
	}
}

func (p *kvPair) key() string {
	return unescapeKV(strings.TrimSpace(strings.TrimSuffix(p.Key, "=")))
}

func (p *kvPair) value() string {
	if p.Quoted != "" {
		return unescapeKV(p.Quoted[1 : len(p.Quoted)-1])
	}
	return unescapeKV(p.Word)
}

func unescapeKV(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// quoteKV renders a value so that parseKeyValue reads it back unchanged.
func quoteKV(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\r\n'\\=") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

func parseKeyValue(raw string) (Parsed, bool) {
	conn, err := kvParser.ParseString("", raw)
	if err != nil || len(conn.Pairs) == 0 {
		return Parsed{}, false
	}

	p := Parsed{Format: FormatKeyValue}
	for _, pair := range conn.Pairs {
		key := pair.key()
		value := pair.value()
		p.Params = append(p.Params, Param{Key: key, Value: value})

		switch key {
		case "host":
			p.Host = value
		case "hostaddr":
			p.HostAddr = value
		case "dbname":
			p.Database = value
		case "user":
			p.User = value
		case "password":
			p.password = value
		case "port":
			n, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return Parsed{}, false
			}
			p.Port = uint16(n)
		}
	}
	return p, true
}

// renderKeyValue writes params back out in keyword/value form.
func renderKeyValue(params []Param) string {
	parts := make([]string, 0, len(params))
	for _, kv := range params {
		parts = append(parts, kv.Key+"="+quoteKV(kv.Value))
	}
	return strings.Join(parts, " ")
}
