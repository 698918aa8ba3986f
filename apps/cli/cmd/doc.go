// Package cmd implements the imagic CLI commands using Cobra.
//
// Available commands:
//   - upload: Send background/depth pairs and save the stereograms
//   - url: Print the upload endpoint URL
//   - serve: Run a local compositing server
//   - history: Show or clear recorded uploads
//   - validate: Check config files against the schema
//   - init: Write a default config file
//   - version: Show imagic version information
//
// Flags default from IMAGIC_* environment variables and override the
// config file. The upload command supports watch mode for iterating on
// depth maps.
package cmd
