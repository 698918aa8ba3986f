// Package history records delivered uploads in a SQLite database so past
// runs can be listed and summarised from the CLI.
package history
