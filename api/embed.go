package api

import _ "embed"

// OpenAPISpec is the raw OpenAPI document served at /api/docs/openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
