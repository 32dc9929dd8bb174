// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// SchemaID is the $id of the audit record schema.
const SchemaID = "https://dsnguard.dev/schemas/dsn-audit.schema.json"

var (
	schemaOnce     sync.Once
	schemaCompiled *jschema.Schema
	schemaErr      error
)

// GenerateSchema generates a JSON Schema from the Record struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Record{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "dsnguard audit record"
	schema.Description = "One line of the DSN resolution audit log"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.In("audit").Wrapf(err, "marshal schema")
	}
	return data, nil
}

func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := GenerateSchema()
		if err != nil {
			schemaErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			schemaErr = oops.In("audit").Wrapf(err, "parse schema")
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(SchemaID, doc); err != nil {
			schemaErr = oops.In("audit").Wrapf(err, "add schema resource")
			return
		}
		schemaCompiled, schemaErr = c.Compile(SchemaID)
		if schemaErr != nil {
			schemaErr = oops.In("audit").Wrapf(schemaErr, "compile schema")
		}
	})
	return schemaCompiled, schemaErr
}

// ValidateLine checks one audit line against the record schema.
func ValidateLine(line []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(line))
	if err != nil {
		return oops.Code("AUDIT_LINE_INVALID").Wrapf(err, "invalid JSON")
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code("AUDIT_LINE_INVALID").Wrapf(err, "schema validation failed")
	}
	return nil
}

// LineError is a validation failure for a specific line.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// VerifyReport summarizes an audit file check.
type VerifyReport struct {
	Valid   int
	Invalid []LineError
}

// OK reports whether every line was valid.
func (r VerifyReport) OK() bool { return len(r.Invalid) == 0 }

// Verify validates every non-empty line read from r. Only read errors are
// returned as errors; invalid lines are collected in the report.
func Verify(r io.Reader) (VerifyReport, error) {
	var report VerifyReport
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := ValidateLine(line); err != nil {
			report.Invalid = append(report.Invalid, LineError{Line: n, Err: err})
			continue
		}
		report.Valid++
	}
	if err := scanner.Err(); err != nil {
		return report, oops.In("audit").Wrapf(err, "read audit log")
	}
	return report, nil
}
