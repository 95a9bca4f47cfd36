// Package configs embeds the annotated configuration template written by
// 'indexgen config init'.
package configs

import _ "embed"

// ConfigTemplate is indexgen.example.yaml. Keys left commented out fall back
// to the defaults in internal/config.
//
//go:embed indexgen.example.yaml
var ConfigTemplate string
