// Package spec ships the OpenAPI contract with the binary so /openapi.yaml
// always matches the deployed build.
package spec

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
