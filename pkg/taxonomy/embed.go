// Copyright 2025 Certen Protocol

package taxonomy

import _ "embed"

//go:embed data/taxonomy.yaml
var defaultRulesYAML []byte
