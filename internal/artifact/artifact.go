// Package artifact reads and writes the JSON artifacts the engine persists
// (threshold tables, model files). Every artifact is checked against the
// schema inferred from its Go type before it is decoded.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/jsonschema-go/jsonschema"
)

// Validate checks data against the JSON schema inferred from T.
func Validate[T any](data []byte) error {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return fmt.Errorf("failed to infer schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("failed to resolve schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("malformed json: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}

// Decode validates data and unmarshals it into a T.
func Decode[T any](data []byte) (T, error) {
	var out T
	if err := Validate[T](data); err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode: %w", err)
	}
	return out, nil
}

// ReadFile loads and decodes the artifact at path.
func ReadFile[T any](path string) (T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to read %s: %w", path, err)
	}
	out, err := Decode[T](data)
	if err != nil {
		return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// WriteFile writes v as indented JSON through a temp file and an atomic rename.
func WriteFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp artifact: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename artifact: %w", err)
	}
	return nil
}
