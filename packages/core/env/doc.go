// Package env loads .env files and resolves environment variables for imagic.
//
// It provides functionality for:
//   - Parsing .env files in file order (KEY=value, quotes, export prefix, comments)
//   - Exporting parsed values without overriding the existing environment
//   - Expanding ${VAR} and ${VAR:-default} references in configuration files
//   - Typed lookups used as flag defaults
package env
