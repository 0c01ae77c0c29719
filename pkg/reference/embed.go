// Copyright 2025 Certen Protocol

package reference

import _ "embed"

//go:embed data/reference.yaml
var defaultTablesYAML []byte

// LoadDefault loads the reference tables shipped inside the binary. Callers
// that need a locally overridden or expanded table set should use Load
// directly with their own YAML bytes.
func LoadDefault() (*Tables, error) {
	return Load(defaultTablesYAML)
}
