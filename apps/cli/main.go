package main

import "github.com/abdul-hamid-achik/imagic/apps/cli/cmd"

// Set by the build with -ldflags "-X main.version=... -X main.buildTime=...".
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.Execute(version, buildTime)
}
