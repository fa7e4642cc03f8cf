package main

import (
	"github.com/conduit-lang/portal/internal/cli/commands"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version   = ""
	gitCommit = ""
	buildDate = ""
)

func main() {
	if version != "" {
		commands.Version = version
	}
	if gitCommit != "" {
		commands.GitCommit = gitCommit
	}
	if buildDate != "" {
		commands.BuildDate = buildDate
	}

	commands.Execute()
}
