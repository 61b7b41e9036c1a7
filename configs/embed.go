// Package configs embeds the configuration templates written by
// `codesearch config init`.
//
// Templates:
//   - user-config.example.yaml: machine settings (data dir, embedding
//     provider, server transport), written to the user config path
//   - project-config.example.yaml: per-repository settings (what to index,
//     search limits), written to .codesearch.yaml in the project root
//
// Every setting in a template is commented out at its default value, so an
// untouched template changes nothing.
package configs

import _ "embed"

// UserConfigTemplate is written by `codesearch config init`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `codesearch config init --project`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
