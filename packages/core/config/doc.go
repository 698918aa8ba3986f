// Package config handles configuration loading and management for imagic.
//
// It provides functionality for:
//   - Loading configuration from .imagic.yaml, .imagic.yml, imagic.config.json or .imagicrc
//   - Validating files against an embedded JSON schema
//   - Default configuration values and merging of overrides
package config
