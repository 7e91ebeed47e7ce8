// Package main is the single-binary entrypoint for the gateway daemon.
package main

import "github.com/archestra-ai/gateway/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
