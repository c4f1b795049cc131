package main

import "github.com/abdul-hamid-achik/testhost/apps/cli/cmd"

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.Execute(version, buildTime)
}
