// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

// Command gen-schema generates the audit record JSON Schema file.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dsnguard/dsnguard/internal/audit"
)

func main() {
	outPath := filepath.Join("schemas", "dsn-audit.schema.json")
	if err := generate(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s\n", outPath)
}

func generate(outPath string) error {
	schema, err := audit.GenerateSchema()
	if err != nil {
		return fmt.Errorf("generating schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	if err := os.WriteFile(outPath, append(schema, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
