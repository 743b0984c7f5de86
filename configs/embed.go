// Package configs embeds the commented configuration templates written by
// 'chatmydocs config init'.
//
// The user template holds machine settings (providers, storage, logging) and
// lands at ~/.config/chatmydocs/config.yaml. The project template holds
// document settings (chunking, retrieval, ingestion) and lands at
// .chatmydocs.yaml in the working directory. Both must stay loadable by
// internal/config.
package configs

import _ "embed"

// UserConfigTemplate is written by 'chatmydocs config init'.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by 'chatmydocs config init --project'.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
